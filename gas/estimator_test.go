package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fixedPrice struct {
	price *big.Int
	err   error
}

func (f fixedPrice) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.price, f.err
}

func TestOracleCapsAtMaximum(t *testing.T) {
	ceiling := big.NewInt(100)

	low := NewOracle(fixedPrice{price: big.NewInt(40)}, ceiling, zaptest.NewLogger(t))
	assert.Equal(t, big.NewInt(40), low.GasPrice(context.Background()))
	assert.Equal(t, big.NewInt(40), low.Last())

	high := NewOracle(fixedPrice{price: big.NewInt(400)}, ceiling, zaptest.NewLogger(t))
	assert.Equal(t, big.NewInt(100), high.GasPrice(context.Background()))
}

func TestOracleOfflineUsesMaximum(t *testing.T) {
	ceiling := big.NewInt(100)

	offline := NewOracle(fixedPrice{err: errors.New("dial tcp: connection refused")}, ceiling, zaptest.NewLogger(t))
	assert.Equal(t, big.NewInt(100), offline.GasPrice(context.Background()))
	assert.Nil(t, offline.Last())

	none := NewOracle(nil, ceiling, zaptest.NewLogger(t))
	assert.Equal(t, big.NewInt(100), none.GasPrice(context.Background()))
}

func TestOracleReturnsCopies(t *testing.T) {
	ceiling := big.NewInt(100)
	o := NewOracle(nil, ceiling, nil)
	o.GasPrice(context.Background()).SetInt64(1)
	ceiling.SetInt64(2)
	assert.Equal(t, big.NewInt(100), o.GasPrice(context.Background()))
}

func TestEstimates(t *testing.T) {
	assert.Equal(t, uint64(21000+2*152000), EstimateArbitrageGas(2))
	assert.Equal(t, big.NewInt(300), EstimateGasCost(big.NewInt(3), 100))
}
