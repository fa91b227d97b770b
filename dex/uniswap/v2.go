package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbpipeline/dex"
	"github.com/michaelpento.lv/arbpipeline/types"
)

// Contract addresses
var (
	MainnetRouter = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	WETHAddress   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// GasPerHop is the gas estimate attributed to each swap hop of a V2 path.
const GasPerHop = 150000

// Router contract ABI
const routerABIJson = `[{
	"constant": true,
	"inputs": [
		{"name": "amountIn", "type": "uint256"},
		{"name": "path", "type": "address[]"}
	],
	"name": "getAmountsOut",
	"outputs": [{"name": "amounts", "type": "uint256[]"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// RouterABI is the parsed subset of the V2 router used for quoting.
var RouterABI = mustParseABI(routerABIJson)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse router ABI: %v", err))
	}
	return parsed
}

// RouterVenue quotes through a Uniswap V2 style router's getAmountsOut.
type RouterVenue struct {
	name   string
	router common.Address
	caller ethereum.ContractCaller
	gas    uint64
	now    func() time.Time
}

// NewRouterVenue creates a venue backed by the router at address. A zero
// gasPerHop uses GasPerHop.
func NewRouterVenue(name string, router common.Address, caller ethereum.ContractCaller, gasPerHop uint64) *RouterVenue {
	if gasPerHop == 0 {
		gasPerHop = GasPerHop
	}
	return &RouterVenue{
		name:   name,
		router: router,
		caller: caller,
		gas:    gasPerHop,
		now:    time.Now,
	}
}

// NewUniswapV2 creates a venue on the mainnet Uniswap V2 router.
func NewUniswapV2(caller ethereum.ContractCaller) *RouterVenue {
	return NewRouterVenue("UniswapV2", MainnetRouter, caller, GasPerHop)
}

// Name returns the venue name
func (v *RouterVenue) Name() string {
	return v.name
}

// RouterAddress returns the router contract address
func (v *RouterVenue) RouterAddress() common.Address {
	return v.router
}

// Quote calls getAmountsOut for the request path.
func (v *RouterVenue) Quote(ctx context.Context, req dex.QuoteRequest) (*types.Quote, error) {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return nil, fmt.Errorf("invalid input amount")
	}
	path := req.Path()
	amounts, err := v.AmountsOut(ctx, req.AmountIn, path)
	if err != nil {
		return nil, err
	}

	out := amounts[len(amounts)-1]
	return &types.Quote{
		VenueID:     v.name,
		TokenIn:     req.TokenIn,
		TokenOut:    req.TokenOut,
		AmountIn:    new(big.Int).Set(req.AmountIn),
		AmountOut:   out,
		Price:       dex.PriceOf(req.AmountIn, out),
		GasEstimate: v.gas * uint64(len(path)-1),
		ObservedAt:  v.now(),
	}, nil
}

// AmountsOut returns the router's output amount for every hop of path.
func (v *RouterVenue) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("invalid path length")
	}

	data, err := RouterABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountsOut: %w", err)
	}

	router := v.router
	result, err := v.caller.CallContract(ctx, ethereum.CallMsg{To: &router, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call router: %w", err)
	}

	out, err := RouterABI.Unpack("getAmountsOut", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getAmountsOut: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected getAmountsOut output")
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return nil, fmt.Errorf("failed to parse amounts")
	}
	return amounts, nil
}
