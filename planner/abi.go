package planner

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Settlement contract ABI. Only the entry point is needed.
const settlementABIJson = `[{
	"inputs": [
		{"name": "amount", "type": "uint256"},
		{"name": "path", "type": "address[]"},
		{"name": "venues", "type": "string[]"}
	],
	"name": "executeArbitrage",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// SettlementMethod is the settlement entry point name.
const SettlementMethod = "executeArbitrage"

// SettlementABI is the parsed settlement contract ABI.
var SettlementABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(settlementABIJson))
	if err != nil {
		panic(fmt.Sprintf("failed to parse settlement ABI: %v", err))
	}
	SettlementABI = parsed
}

// EncodeSettlement ABI-encodes executeArbitrage(amount, path, venues).
func EncodeSettlement(amount *big.Int, path []common.Address, venues []string) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid settlement amount")
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("settlement path needs at least two tokens, got %d", len(path))
	}
	if len(venues) < 2 {
		return nil, fmt.Errorf("settlement needs at least two venues, got %d", len(venues))
	}
	data, err := SettlementABI.Pack(SettlementMethod, amount, path, venues)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", SettlementMethod, err)
	}
	return data, nil
}
