package quotes

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbpipeline/dex"
	"github.com/michaelpento.lv/arbpipeline/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Aggregator fans a quote request out to every venue and keeps the answers
// that arrive within the per-venue timeout.
type Aggregator struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewAggregator creates an aggregator with an independent timeout per venue.
func NewAggregator(timeout time.Duration, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{timeout: timeout, logger: logger}
}

// FetchQuotes queries all venues in parallel. Failed venues are logged and
// dropped; the result keeps the order of venues. The call fails with
// QuoteUnavailable only when no venue answers.
func (a *Aggregator) FetchQuotes(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, venues []dex.Venue) ([]types.Quote, error) {
	if len(venues) == 0 {
		return nil, types.NewError(types.KindQuoteUnavailable, "fetch quotes", fmt.Errorf("no venues configured"))
	}

	req := dex.QuoteRequest{TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: amountIn}
	slots := make([]*types.Quote, len(venues))

	var g errgroup.Group
	for i, venue := range venues {
		g.Go(func() error {
			q, err := a.fetchOne(ctx, venue, req)
			if err != nil {
				a.logger.Warn("Venue quote failed",
					zap.String("venue", venue.Name()),
					zap.Error(err))
				return nil
			}
			slots[i] = q
			return nil
		})
	}
	_ = g.Wait()

	quotes := make([]types.Quote, 0, len(venues))
	for _, q := range slots {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}

	if err := ctx.Err(); err != nil && len(quotes) == 0 {
		return nil, types.NewError(types.KindCancelled, "fetch quotes", err)
	}
	if len(quotes) == 0 {
		return nil, types.NewError(types.KindQuoteUnavailable, "fetch quotes",
			fmt.Errorf("all %d venues failed", len(venues)))
	}

	a.logger.Debug("Fetched quotes",
		zap.Int("venues", len(venues)),
		zap.Int("quotes", len(quotes)))
	return quotes, nil
}

func (a *Aggregator) fetchOne(ctx context.Context, venue dex.Venue, req dex.QuoteRequest) (*types.Quote, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	type result struct {
		q   *types.Quote
		err error
	}
	done := make(chan result, 1)
	go func() {
		q, err := venue.Quote(ctx, req)
		done <- result{q, err}
	}()

	var q *types.Quote
	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		q = r.q
	case <-ctx.Done():
		return nil, fmt.Errorf("quote timed out: %w", ctx.Err())
	}
	if q == nil || q.AmountIn == nil || q.AmountOut == nil {
		return nil, fmt.Errorf("venue returned an empty quote")
	}
	if q.VenueID == "" {
		q.VenueID = venue.Name()
	}
	return q, nil
}
