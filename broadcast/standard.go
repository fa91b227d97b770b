package broadcast

import (
	"context"
	"fmt"

	"github.com/michaelpento.lv/arbpipeline/shield"
	"github.com/michaelpento.lv/arbpipeline/signer"
	"github.com/michaelpento.lv/arbpipeline/types"
	"go.uber.org/zap"
)

// Standard sends the raw transaction through the node's public endpoint.
type Standard struct {
	sender Sender
	poller *ReceiptPoller
	logger *zap.Logger
}

// NewStandard creates an RPC-backed broadcaster.
func NewStandard(sender Sender, poller *ReceiptPoller, logger *zap.Logger) *Standard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Standard{sender: sender, poller: poller, logger: logger}
}

// Mode names the broadcaster in logs and reports.
func (s *Standard) Mode() string {
	return "standard"
}

// Broadcast ignores the payload; only the raw bytes are sent.
func (s *Standard) Broadcast(ctx context.Context, tx types.SignedTransaction, _ shield.ProviderPayload) types.BroadcastResult {
	decoded, err := signer.Decode(tx.RawBytes)
	if err != nil {
		return failed(tx.SignatureHash, types.NewError(types.KindRelaySubmission, "send", err))
	}
	if err := s.sender.SendTransaction(ctx, decoded); err != nil {
		s.logger.Error("Failed to send transaction",
			zap.String("opportunity", tx.OpportunityID),
			zap.Error(err))
		return failed(tx.SignatureHash, types.NewError(types.KindRelaySubmission, "send",
			fmt.Errorf("failed to send transaction: %w", err)))
	}

	hash := decoded.Hash()
	mined, err := s.poller.Wait(ctx, hash)
	if err != nil {
		s.logger.Warn("Transaction not confirmed",
			zap.String("opportunity", tx.OpportunityID),
			zap.String("txHash", hash.Hex()),
			zap.Error(err))
	}
	return resultFromReceipt(hash, mined, err)
}
