package shield

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/flashbots/go-boost-utils/bls"
	"github.com/michaelpento.lv/arbpipeline/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func signedTx(raw string) types.SignedTransaction {
	b := []byte(raw)
	return types.SignedTransaction{
		OpportunityID: raw,
		RawBytes:      b,
		SignatureHash: crypto.Keccak256Hash(b),
	}
}

type fixedHead struct {
	head uint64
	err  error
}

func (f fixedHead) BlockNumber(context.Context) (uint64, error) {
	return f.head, f.err
}

func decode(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestWrapBloxRoute(t *testing.T) {
	tx := signedTx("tx-1")
	c, err := BuildCommitment([]types.SignedTransaction{tx})
	require.NoError(t, err)

	p, err := Wrap(tx, c, nil, BloxRoute)
	require.NoError(t, err)
	assert.Equal(t, c.Root, p.Root)
	assert.True(t, p.Protected())

	body := decode(t, p.Body)
	assert.Equal(t, "blxr_tx", body["method"])
	params := body["params"].(map[string]interface{})
	assert.Equal(t, strings.TrimPrefix(hexutil.Encode(tx.RawBytes), "0x"), params["transaction"])
	assert.Equal(t, "Mainnet", params["blockchain_network"])
	assert.Equal(t, map[string]interface{}{"all": ""}, params["mev_builders"])
	assert.Equal(t, true, params["frontrunning_protection"])
	assert.Equal(t, c.Root.Hex(), params["merkle_root"])
	assert.Equal(t, []interface{}{}, params["merkle_proof"])
	assert.NotContains(t, params, "commitment_signature")
}

func TestWrapQuickNode(t *testing.T) {
	tx := signedTx("tx-1")
	c, err := BuildCommitment([]types.SignedTransaction{tx})
	require.NoError(t, err)

	p, err := Wrap(tx, c, nil, QuickNode)
	require.NoError(t, err)

	body := decode(t, p.Body)
	assert.Equal(t, "eth_sendRawTransaction", body["method"])
	assert.Equal(t, []interface{}{hexutil.Encode(tx.RawBytes)}, body["params"])
	mev := body["mev_protection"].(map[string]interface{})
	assert.Equal(t, true, mev["enabled"])
	assert.Equal(t, c.Root.Hex(), mev["merkle_root"])
}

func TestWrapFlashbots(t *testing.T) {
	tx := signedTx("tx-1")
	c, err := BuildCommitment([]types.SignedTransaction{tx, signedTx("tx-2")})
	require.NoError(t, err)
	proof, err := ProofFor(0, c)
	require.NoError(t, err)

	p, err := WrapWithOptions(tx, c, proof, Flashbots, Options{TargetBlock: 17})
	require.NoError(t, err)

	body := decode(t, p.Body)
	assert.Equal(t, "eth_sendBundle", body["method"])
	bundle := body["params"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, []interface{}{hexutil.Encode(tx.RawBytes)}, bundle["txs"])
	assert.Equal(t, "0x11", bundle["blockNumber"])
	assert.Equal(t, c.Root.Hex(), bundle["merkleRoot"])
	assert.Len(t, bundle["merkleProof"], 1)
}

func TestWrapRejectsUnknownProvider(t *testing.T) {
	tx := signedTx("tx-1")
	_, err := Wrap(tx, types.MerkleCommitment{}, nil, Provider(42))
	assert.Error(t, err)

	_, err = Wrap(types.SignedTransaction{}, types.MerkleCommitment{}, nil, Flashbots)
	assert.Error(t, err)
}

func TestParseProvider(t *testing.T) {
	for name, want := range map[string]Provider{
		"bloxroute": BloxRoute,
		"QuickNode": QuickNode,
		" flashbots": Flashbots,
	} {
		got, err := ParseProvider(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}
	_, err := ParseProvider("eden")
	assert.Error(t, err)
}

func TestProtectDisabledPassesThrough(t *testing.T) {
	s := New(Config{Enabled: false, Provider: Flashbots}, nil, zaptest.NewLogger(t))
	txs := []types.SignedTransaction{signedTx("tx-1"), signedTx("tx-2")}

	batch, err := s.Protect(context.Background(), txs)
	require.NoError(t, err)
	assert.True(t, batch.Commitment.Empty())
	require.Len(t, batch.Payloads, 2)
	for i, p := range batch.Payloads {
		assert.False(t, p.Protected())
		assert.Equal(t, common.Hash{}, p.Root)
		assert.Empty(t, p.Proof)
		assert.Equal(t, txs[i].SignatureHash, p.TxHash)
	}
}

func TestProtectBuildsVerifiablePayloads(t *testing.T) {
	s := New(Config{Enabled: true, Provider: Flashbots}, fixedHead{head: 99}, zaptest.NewLogger(t))
	txs := []types.SignedTransaction{signedTx("a"), signedTx("b"), signedTx("c")}

	batch, err := s.Protect(context.Background(), txs)
	require.NoError(t, err)
	require.Len(t, batch.Payloads, len(txs))

	for i, p := range batch.Payloads {
		assert.Equal(t, batch.Commitment.Root, p.Root)
		assert.True(t, Verify(txs[i].SignatureHash, i, p.Proof, p.Root))

		bundle := decode(t, p.Body)["params"].([]interface{})[0].(map[string]interface{})
		assert.Equal(t, "0x64", bundle["blockNumber"])
	}
}

func TestProtectHeadFailureTargetsZero(t *testing.T) {
	s := New(Config{Enabled: true, Provider: Flashbots}, fixedHead{err: errors.New("offline")}, zaptest.NewLogger(t))
	batch, err := s.Protect(context.Background(), []types.SignedTransaction{signedTx("a")})
	require.NoError(t, err)

	bundle := decode(t, batch.Payloads[0].Body)["params"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "0x0", bundle["blockNumber"])
}

func TestProtectEmptyBatchIsShieldFailure(t *testing.T) {
	s := New(Config{Enabled: true, Provider: BloxRoute}, nil, zaptest.NewLogger(t))
	_, err := s.Protect(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrShieldFailure)
}

func TestProtectAttestsRoot(t *testing.T) {
	sk, pk, err := bls.GenerateNewKeypair()
	require.NoError(t, err)

	s := New(Config{Enabled: true, Provider: QuickNode, AttestationKey: sk}, nil, zaptest.NewLogger(t))
	batch, err := s.Protect(context.Background(), []types.SignedTransaction{signedTx("a")})
	require.NoError(t, err)

	mev := decode(t, batch.Payloads[0].Body)["mev_protection"].(map[string]interface{})
	rawSig, err := hexutil.Decode(mev["commitment_signature"].(string))
	require.NoError(t, err)

	sig, err := bls.SignatureFromBytes(rawSig)
	require.NoError(t, err)
	ok, err := bls.VerifySignature(sig, pk, batch.Commitment.Root.Bytes())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseAttestationKey(t *testing.T) {
	sk, _, err := bls.GenerateNewKeypair()
	require.NoError(t, err)

	parsed, err := ParseAttestationKey(hexutil.Encode(bls.SecretKeyToBytes(sk)))
	require.NoError(t, err)
	assert.Equal(t, bls.SecretKeyToBytes(sk), bls.SecretKeyToBytes(parsed))

	_, err = ParseAttestationKey("0x1234")
	assert.Error(t, err)
}

func TestAttestProducesCompressedSignature(t *testing.T) {
	sk, pk, err := bls.GenerateNewKeypair()
	require.NoError(t, err)
	root := crypto.Keccak256Hash([]byte("root"))

	sig := Attest(sk, root)
	require.Len(t, sig, bls.SignatureLength)

	ok, err := bls.VerifySignatureBytes(root.Bytes(), sig, bls.PublicKeyToBytes(pk))
	require.NoError(t, err)
	assert.True(t, ok)
}
