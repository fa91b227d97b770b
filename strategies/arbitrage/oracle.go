package arbitrage

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceOracle converts profit-token amounts to USD and prices gas in the
// profit token.
type PriceOracle interface {
	// ToUSD converts amount base units of token to USD
	ToUSD(token common.Address, amount *big.Int) (float64, error)

	// GasCost returns the cost of gasUnits in base units of token
	GasCost(token common.Address, gasUnits uint64) (*big.Int, error)
}

// StaticOracle prices every token at a fixed USD rate per base unit and gas
// at a fixed token price per unit. The zero GasPriceInToken makes gas free.
type StaticOracle struct {
	USDPerUnit      float64
	GasPriceInToken *big.Int
}

// ToUSD returns amount * USDPerUnit.
func (o StaticOracle) ToUSD(_ common.Address, amount *big.Int) (float64, error) {
	if amount == nil {
		return 0, fmt.Errorf("nil amount")
	}
	usd, _ := new(big.Float).Mul(new(big.Float).SetInt(amount), big.NewFloat(o.USDPerUnit)).Float64()
	return usd, nil
}

// GasCost returns gasUnits * GasPriceInToken.
func (o StaticOracle) GasCost(_ common.Address, gasUnits uint64) (*big.Int, error) {
	if o.GasPriceInToken == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gasUnits), o.GasPriceInToken), nil
}
