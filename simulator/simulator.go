package simulator

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/michaelpento.lv/arbpipeline/shield"
	"github.com/michaelpento.lv/arbpipeline/types"
	"go.uber.org/zap"
)

// MockBlockBase is the lowest block number the simulator reports.
const MockBlockBase uint64 = 19_000_000

// Broadcaster pretends to broadcast. It never touches the network: after a
// fixed delay it reports success with the signature hash as the tx hash.
type Broadcaster struct {
	delay  time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewBroadcaster creates a simulated broadcaster.
func NewBroadcaster(delay time.Duration, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{delay: delay, logger: logger, now: time.Now}
}

// Mode names the broadcaster in logs and reports.
func (b *Broadcaster) Mode() string {
	return "simulated"
}

// Broadcast waits for the simulated delay and succeeds. Only cancellation
// makes it fail.
func (b *Broadcaster) Broadcast(ctx context.Context, tx types.SignedTransaction, _ shield.ProviderPayload) types.BroadcastResult {
	if b.delay > 0 {
		timer := time.NewTimer(b.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return types.BroadcastResult{
				TxHash:     tx.SignatureHash,
				Kind:       types.KindCancelled,
				Error:      ctx.Err().Error(),
				ObservedAt: b.now(),
			}
		case <-timer.C:
		}
	}

	block := MockBlock(tx)
	b.logger.Info("Simulated broadcast",
		zap.String("opportunity", tx.OpportunityID),
		zap.String("txHash", tx.SignatureHash.Hex()),
		zap.Uint64("block", block))

	return types.BroadcastResult{
		Success:     true,
		TxHash:      tx.SignatureHash,
		BlockNumber: &block,
		ObservedAt:  b.now(),
	}
}

// MockBlock derives a stable block number from the transaction hash.
func MockBlock(tx types.SignedTransaction) uint64 {
	return MockBlockBase + uint64(binary.BigEndian.Uint16(tx.SignatureHash[:2]))%1000
}
