package aave

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbpipeline/flashloan"
)

// MainnetPool is the Aave V3 pool on Ethereum mainnet.
var MainnetPool = common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")

// DefaultFeeBps is the Aave flash loan premium (0.09%).
const DefaultFeeBps uint16 = 9

// Provider implements flashloan.Provider for Aave.
type Provider struct {
	config flashloan.ProviderConfig
}

// NewProvider creates an Aave provider. A zero config selects the mainnet pool
// and the default premium.
func NewProvider(config flashloan.ProviderConfig) *Provider {
	if config.ContractAddress == (common.Address{}) {
		config.ContractAddress = MainnetPool
	}
	if config.BaseFee == 0 {
		config.BaseFee = DefaultFeeBps
	}
	return &Provider{config: config}
}

func (p *Provider) Name() string { return flashloan.ProviderAave }

func (p *Provider) Pool() common.Address { return p.config.ContractAddress }

// Fee calculates the premium charged on amount.
func (p *Provider) Fee(amount *big.Int) *big.Int {
	return flashloan.FeeForBasisPoints(amount, p.config.BaseFee)
}
