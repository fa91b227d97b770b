package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Provider names accepted in configuration.
const (
	ProviderAave     = "aave"
	ProviderBalancer = "balancer"
)

// Known reports whether name is a supported loan provider.
func Known(name string) bool {
	switch name {
	case ProviderAave, ProviderBalancer:
		return true
	}
	return false
}

// Provider describes a flash loan source the settlement contract can borrow from.
type Provider interface {
	// Name returns the configuration name of the provider.
	Name() string
	// Pool returns the lending pool or vault address.
	Pool() common.Address
	// Fee returns the loan fee for amount in the same units.
	Fee(amount *big.Int) *big.Int
}

// ProviderConfig contains configuration for flash loan providers
type ProviderConfig struct {
	ContractAddress common.Address
	BaseFee         uint16 // In basis points (1 = 0.01%)
}

// FeeForBasisPoints returns amount * bps / 10000.
func FeeForBasisPoints(amount *big.Int, bps uint16) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return fee.Div(fee, big.NewInt(10000))
}
