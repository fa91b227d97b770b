package broadcast

import (
	"context"

	"github.com/michaelpento.lv/arbpipeline/shield"
	"github.com/michaelpento.lv/arbpipeline/types"
	"go.uber.org/zap"
)

// Protected submits the shielded envelope to a relay, then polls for the
// receipt of the hash the relay reported.
type Protected struct {
	relay  Submitter
	poller *ReceiptPoller
	logger *zap.Logger
}

// NewProtected creates a relay-backed broadcaster.
func NewProtected(relay Submitter, poller *ReceiptPoller, logger *zap.Logger) *Protected {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Protected{relay: relay, poller: poller, logger: logger}
}

// Mode names the broadcaster in logs and reports.
func (p *Protected) Mode() string {
	return "protected"
}

// Broadcast never retries a rejected submission.
func (p *Protected) Broadcast(ctx context.Context, tx types.SignedTransaction, payload shield.ProviderPayload) types.BroadcastResult {
	receipt, err := p.relay.Submit(ctx, payload)
	if err != nil {
		p.logger.Error("Relay rejected transaction",
			zap.String("opportunity", tx.OpportunityID),
			zap.String("provider", payload.Provider.String()),
			zap.Error(err))
		return failed(tx.SignatureHash, err)
	}

	mined, err := p.poller.Wait(ctx, receipt.TxHash)
	if err != nil {
		p.logger.Warn("Transaction not confirmed",
			zap.String("opportunity", tx.OpportunityID),
			zap.String("txHash", receipt.TxHash.Hex()),
			zap.Error(err))
	}
	return resultFromReceipt(receipt.TxHash, mined, err)
}
