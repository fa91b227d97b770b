package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/arbpipeline/shield"
	"github.com/michaelpento.lv/arbpipeline/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func signed(raw string) types.SignedTransaction {
	return types.SignedTransaction{
		OpportunityID: "opp",
		RawBytes:      []byte(raw),
		SignatureHash: crypto.Keccak256Hash([]byte(raw)),
	}
}

func TestBroadcastSucceedsWithSignatureHash(t *testing.T) {
	b := NewBroadcaster(10*time.Millisecond, zaptest.NewLogger(t))
	tx := signed("tx")

	start := time.Now()
	result := b.Broadcast(context.Background(), tx, shield.PassThrough(tx))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	assert.True(t, result.Success)
	assert.Equal(t, tx.SignatureHash, result.TxHash)
	require.NotNil(t, result.BlockNumber)
	assert.Equal(t, MockBlock(tx), *result.BlockNumber)
	assert.Empty(t, result.Error)
}

func TestMockBlockIsDeterministic(t *testing.T) {
	a, b := signed("a"), signed("a")
	assert.Equal(t, MockBlock(a), MockBlock(b))
	assert.GreaterOrEqual(t, MockBlock(a), MockBlockBase)
	assert.Less(t, MockBlock(a), MockBlockBase+1000)
}

func TestBroadcastCancelled(t *testing.T) {
	b := NewBroadcaster(time.Hour, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := b.Broadcast(ctx, signed("tx"), shield.ProviderPayload{})
	assert.False(t, result.Success)
	assert.Equal(t, types.KindCancelled, result.Kind)
}
