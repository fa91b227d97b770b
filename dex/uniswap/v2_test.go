package uniswap

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbpipeline/dex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	amounts []*big.Int
	err     error
	calls   []ethereum.CallMsg
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	if f.err != nil {
		return nil, f.err
	}
	return RouterABI.Methods["getAmountsOut"].Outputs.Pack(f.amounts)
}

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestRouterVenueQuote(t *testing.T) {
	caller := &fakeCaller{amounts: []*big.Int{big.NewInt(1000), big.NewInt(1990)}}
	venue := NewRouterVenue("uni", MainnetRouter, caller, 0)

	q, err := venue.Quote(context.Background(), dex.QuoteRequest{TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(1000)})
	require.NoError(t, err)

	assert.Equal(t, "uni", q.VenueID)
	assert.Equal(t, big.NewInt(1990), q.AmountOut)
	assert.InDelta(t, 1.99, q.Price, 1e-9)
	assert.Equal(t, uint64(GasPerHop), q.GasEstimate)

	require.Len(t, caller.calls, 1)
	assert.Equal(t, MainnetRouter, *caller.calls[0].To)
	assert.Equal(t, RouterABI.Methods["getAmountsOut"].ID, caller.calls[0].Data[:4])
}

func TestRouterVenueErrors(t *testing.T) {
	venue := NewRouterVenue("uni", MainnetRouter, &fakeCaller{err: errors.New("connection refused")}, 0)
	_, err := venue.Quote(context.Background(), dex.QuoteRequest{TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(1)})
	assert.Error(t, err)

	_, err = venue.Quote(context.Background(), dex.QuoteRequest{TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(0)})
	assert.Error(t, err)

	short := NewRouterVenue("uni", MainnetRouter, &fakeCaller{amounts: []*big.Int{big.NewInt(1)}}, 0)
	_, err = short.Quote(context.Background(), dex.QuoteRequest{TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(1)})
	assert.Error(t, err)
}
