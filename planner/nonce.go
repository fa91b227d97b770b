package planner

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// NonceSource reports the pending transaction count. *ethclient.Client satisfies it.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceSequencer hands out strictly increasing nonces for one signer, even
// when plans are built concurrently.
type NonceSequencer struct {
	source  NonceSource
	account common.Address
	logger  *zap.Logger

	mu     sync.Mutex
	issued bool
	last   uint64
}

// NewNonceSequencer creates a sequencer. A nil source behaves as offline.
func NewNonceSequencer(source NonceSource, account common.Address, logger *zap.Logger) *NonceSequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NonceSequencer{source: source, account: account, logger: logger}
}

// Next returns max(pending count, last+1). An unreachable network counts as
// pending 0 and is logged, so the first offline nonce is 0.
func (s *NonceSequencer) Next(ctx context.Context) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending uint64
	if s.source != nil {
		n, err := s.source.PendingNonceAt(ctx, s.account)
		if err != nil {
			s.logger.Warn("Failed to get pending nonce, using placeholder",
				zap.String("account", s.account.Hex()),
				zap.Error(err))
		} else {
			pending = n
		}
	}

	next := pending
	if s.issued && s.last+1 > next {
		next = s.last + 1
	}
	s.issued = true
	s.last = next

	s.logger.Debug("Assigned nonce", zap.Uint64("nonce", next))
	return next
}

// Account returns the signer address nonces are tracked for.
func (s *NonceSequencer) Account() common.Address {
	return s.account
}
