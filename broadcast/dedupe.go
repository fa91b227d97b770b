package broadcast

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
	"github.com/michaelpento.lv/arbpipeline/shield"
	"github.com/michaelpento.lv/arbpipeline/types"
	"go.uber.org/zap"
)

// DefaultCacheSize bounds the duplicate-submission cache.
const DefaultCacheSize = 1024

// Deduper returns the recorded result when the same raw transaction is
// broadcast twice in one process.
type Deduper struct {
	next   Broadcaster
	cache  *lru.Cache
	logger *zap.Logger
}

// NewDeduper wraps next. size <= 0 uses DefaultCacheSize.
func NewDeduper(next Broadcaster, size int, logger *zap.Logger) (*Deduper, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcast cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{next: next, cache: cache, logger: logger}, nil
}

// Mode reports the wrapped broadcaster's mode.
func (d *Deduper) Mode() string {
	return d.next.Mode()
}

// Broadcast forwards unseen transactions. Rejected, cancelled and unconfirmed
// attempts are not cached so they can be retried.
func (d *Deduper) Broadcast(ctx context.Context, tx types.SignedTransaction, payload shield.ProviderPayload) types.BroadcastResult {
	key := xxhash.Sum64(tx.RawBytes)
	if cached, ok := d.cache.Get(key); ok {
		d.logger.Debug("Skipping duplicate broadcast",
			zap.String("opportunity", tx.OpportunityID),
			zap.String("signatureHash", tx.SignatureHash.Hex()))
		return cached.(types.BroadcastResult)
	}

	result := d.next.Broadcast(ctx, tx, payload)
	switch result.Kind {
	case types.KindRelaySubmission, types.KindCancelled, types.KindReceiptTimeout:
	default:
		d.cache.Add(key, result)
	}
	return result
}
