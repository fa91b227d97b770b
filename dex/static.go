package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/michaelpento.lv/arbpipeline/types"
)

// StaticVenue quotes at a fixed rate. It backs simulation runs and tests.
type StaticVenue struct {
	name string
	rate *big.Float
	gas  uint64

	mu   sync.Mutex
	fail error
	now  func() time.Time
}

// NewStaticVenue creates a venue returning amountIn*rate with a fixed gas estimate.
func NewStaticVenue(name string, rate float64, gasEstimate uint64) *StaticVenue {
	return &StaticVenue{
		name: name,
		rate: big.NewFloat(rate),
		gas:  gasEstimate,
		now:  time.Now,
	}
}

// Name returns the venue name
func (v *StaticVenue) Name() string {
	return v.name
}

// FailWith makes every following Quote call return err. A nil err restores quoting.
func (v *StaticVenue) FailWith(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fail = err
}

// Quote returns amountIn*rate, truncated to base units.
func (v *StaticVenue) Quote(ctx context.Context, req QuoteRequest) (*types.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	fail := v.fail
	v.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return nil, fmt.Errorf("invalid input amount")
	}

	out, _ := new(big.Float).Mul(new(big.Float).SetInt(req.AmountIn), v.rate).Int(nil)
	return &types.Quote{
		VenueID:     v.name,
		TokenIn:     req.TokenIn,
		TokenOut:    req.TokenOut,
		AmountIn:    new(big.Int).Set(req.AmountIn),
		AmountOut:   out,
		Price:       PriceOf(req.AmountIn, out),
		GasEstimate: v.gas,
		ObservedAt:  v.now(),
	}, nil
}
