package gas

import (
	"context"
	"math/big"
	"sync"

	"go.uber.org/zap"
)

// PriceSource suggests a legacy gas price. *ethclient.Client satisfies it.
type PriceSource interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Oracle caps the network gas price at a configured maximum.
type Oracle struct {
	source PriceSource
	max    *big.Int
	logger *zap.Logger

	mu   sync.RWMutex
	last *big.Int
}

// NewOracle creates a gas oracle. A nil source always yields maxPrice.
func NewOracle(source PriceSource, maxPrice *big.Int, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		source: source,
		max:    new(big.Int).Set(maxPrice),
		logger: logger,
	}
}

// GasPrice returns min(network price, max). When the network cannot be
// reached the maximum is used and the condition logged.
func (o *Oracle) GasPrice(ctx context.Context) *big.Int {
	if o.source == nil {
		return new(big.Int).Set(o.max)
	}

	suggested, err := o.source.SuggestGasPrice(ctx)
	if err != nil || suggested == nil {
		o.logger.Warn("Failed to get network gas price, using maximum",
			zap.String("max", o.max.String()),
			zap.Error(err))
		return new(big.Int).Set(o.max)
	}

	price := suggested
	if price.Cmp(o.max) > 0 {
		price = o.max
	}
	price = new(big.Int).Set(price)

	o.mu.Lock()
	o.last = price
	o.mu.Unlock()
	return new(big.Int).Set(price)
}

// Last returns the most recent network-derived price, or nil if none was seen.
func (o *Oracle) Last() *big.Int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return nil
	}
	return new(big.Int).Set(o.last)
}

// EstimateGasCost returns gasPrice * gasLimit.
func EstimateGasCost(gasPrice *big.Int, gasLimit uint64) *big.Int {
	return new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
}

// EstimateArbitrageGas estimates gas for a typical arbitrage transaction
func EstimateArbitrageGas(numHops int) uint64 {
	// Base cost for transaction
	baseCost := uint64(21000)

	// Cost per DEX hop (approximate): storage reads, token transfers and
	// the swap itself
	costPerHop := uint64(152000)

	return baseCost + (costPerHop * uint64(numHops))
}
