package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/arbpipeline/relay"
	"github.com/michaelpento.lv/arbpipeline/shield"
	"github.com/michaelpento.lv/arbpipeline/simulator"
	"github.com/michaelpento.lv/arbpipeline/types"
	"go.uber.org/zap"
)

// Broadcaster submits one signed transaction and reports the outcome.
// Broadcast never returns an error; failures are carried in the result.
type Broadcaster interface {
	Mode() string
	Broadcast(ctx context.Context, tx types.SignedTransaction, payload shield.ProviderPayload) types.BroadcastResult
}

// Sender sends raw transactions. *ethclient.Client satisfies it.
type Sender interface {
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// Chain is the RPC surface live broadcasters need.
type Chain interface {
	Sender
	ReceiptSource
}

// Submitter forwards protected envelopes to a relay. *relay.Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, payload shield.ProviderPayload) (relay.Receipt, error)
}

// Options selects and tunes the broadcaster. The choice is made once.
type Options struct {
	Simulated      bool
	Shielded       bool
	SimulatedDelay time.Duration
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
	CacheSize      int
}

// New returns the simulated, protected or standard broadcaster wrapped in a
// duplicate-submission guard. chain and submitter are ignored in simulation.
func New(opts Options, chain Chain, submitter Submitter, logger *zap.Logger) (Broadcaster, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var inner Broadcaster
	switch {
	case opts.Simulated:
		inner = simulator.NewBroadcaster(opts.SimulatedDelay, logger)
	case opts.Shielded:
		if chain == nil || submitter == nil {
			return nil, fmt.Errorf("protected broadcaster needs a relay and an RPC connection")
		}
		inner = NewProtected(submitter, NewReceiptPoller(chain, opts.PollInterval, opts.ReceiptTimeout, logger), logger)
	default:
		if chain == nil {
			return nil, fmt.Errorf("standard broadcaster needs an RPC connection")
		}
		inner = NewStandard(chain, NewReceiptPoller(chain, opts.PollInterval, opts.ReceiptTimeout, logger), logger)
	}

	guarded, err := NewDeduper(inner, opts.CacheSize, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Broadcaster ready", zap.String("mode", inner.Mode()))
	return guarded, nil
}

func failed(hash common.Hash, err error) types.BroadcastResult {
	return types.BroadcastResult{
		TxHash:     hash,
		Kind:       types.KindOf(err),
		Error:      err.Error(),
		ObservedAt: time.Now(),
	}
}
