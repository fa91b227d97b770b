package sushiswap

import (
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbpipeline/dex/uniswap"
)

// Router addresses
var (
	MainnetRouter = common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F")
)

// NewRouterVenue creates a venue on a Sushiswap router. Sushiswap is a V2
// fork, so the Uniswap router client is reused. A zero router uses the
// mainnet deployment.
func NewRouterVenue(name string, router common.Address, caller ethereum.ContractCaller, gasPerHop uint64) *uniswap.RouterVenue {
	if router == (common.Address{}) {
		router = MainnetRouter
	}
	if name == "" {
		name = "SushiswapV2"
	}
	return uniswap.NewRouterVenue(name, router, caller, gasPerHop)
}
