package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbpipeline/types"
)

// QuoteRequest asks a venue how much TokenOut it returns for AmountIn of TokenIn.
type QuoteRequest struct {
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int
}

// Path returns the two-hop token path of the request.
func (r QuoteRequest) Path() []common.Address {
	return []common.Address{r.TokenIn, r.TokenOut}
}

// Venue represents a quote source
type Venue interface {
	// Name returns the venue identifier used in quotes and opportunities
	Name() string

	// Quote returns a normalized quote for the request
	Quote(ctx context.Context, req QuoteRequest) (*types.Quote, error)
}

// RouterProvider defines an interface for venues that quote through a router contract
type RouterProvider interface {
	RouterAddress() common.Address
}

// PriceOf returns amountOut/amountIn as a float. Zero input yields zero.
func PriceOf(amountIn, amountOut *big.Int) float64 {
	if amountIn == nil || amountOut == nil || amountIn.Sign() == 0 {
		return 0
	}
	price, _ := new(big.Float).Quo(new(big.Float).SetInt(amountOut), new(big.Float).SetInt(amountIn)).Float64()
	return price
}
