package balancer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbpipeline/flashloan"
)

const (
	// Mainnet addresses
	VaultAddress = "0xBA12222222228d8Ba445958a75a0704d566BF2C8"
)

// Provider implements the flashloan.Provider interface for Balancer
type Provider struct {
	vault common.Address
}

// NewProvider creates a Balancer provider for vault, or the mainnet vault when zero.
func NewProvider(vault common.Address) *Provider {
	if vault == (common.Address{}) {
		vault = common.HexToAddress(VaultAddress)
	}
	return &Provider{vault: vault}
}

func (p *Provider) Name() string { return flashloan.ProviderBalancer }

func (p *Provider) Pool() common.Address { return p.vault }

// Fee returns zero: Balancer has no flash loan fees.
func (p *Provider) Fee(amount *big.Int) *big.Int {
	return big.NewInt(0)
}
