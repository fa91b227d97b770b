package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/arbpipeline/types"
	"go.uber.org/zap"
)

// ReceiptSource looks up transaction receipts. *ethclient.Client satisfies it.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// ReceiptPoller waits for a receipt at a fixed interval.
type ReceiptPoller struct {
	source   ReceiptSource
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewReceiptPoller creates a poller checking every interval for up to timeout.
func NewReceiptPoller(source ReceiptSource, interval, timeout time.Duration, logger *zap.Logger) *ReceiptPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptPoller{source: source, interval: interval, timeout: timeout, logger: logger}
}

// Wait polls until a receipt appears. Not seeing one in time is a
// ReceiptTimeout, an aborted context is Cancelled and a receipt with failed
// status is TransactionReverted.
func (p *ReceiptPoller) Wait(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	// the deadline also bounds each lookup, a hung node call must not outlive it
	pollCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	attempts := 0
	operation := func() (*ethtypes.Receipt, error) {
		attempts++
		receipt, err := p.source.TransactionReceipt(pollCtx, hash)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				p.logger.Debug("Receipt lookup failed", zap.String("txHash", hash.Hex()), zap.Error(err))
			}
			return nil, err
		}
		if receipt == nil {
			return nil, ethereum.NotFound
		}
		return receipt, nil
	}

	receipt, err := backoff.Retry(pollCtx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.interval)),
		backoff.WithMaxElapsedTime(p.timeout))
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.KindCancelled, "wait receipt", ctx.Err())
		}
		return nil, types.NewError(types.KindReceiptTimeout, "wait receipt",
			fmt.Errorf("transaction %s unconfirmed after %s (%d polls): %w", hash.Hex(), p.timeout, attempts, err))
	}

	if receipt.Status == ethtypes.ReceiptStatusFailed {
		return receipt, types.NewError(types.KindTransactionReverted, "wait receipt",
			fmt.Errorf("transaction %s reverted in block %s", hash.Hex(), receipt.BlockNumber))
	}
	return receipt, nil
}

// resultFromReceipt builds the final BroadcastResult once polling ends.
func resultFromReceipt(hash common.Hash, receipt *ethtypes.Receipt, err error) types.BroadcastResult {
	result := types.BroadcastResult{TxHash: hash, ObservedAt: time.Now()}
	if receipt != nil && receipt.BlockNumber != nil {
		block := receipt.BlockNumber.Uint64()
		result.BlockNumber = &block
	}
	if err != nil {
		result.Kind = types.KindOf(err)
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}
