// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"fmt"
	"math/big"
)

// FormatRaw renders a raw u128 ledger amount as a plain decimal string.
// Unlike currencies with divisible subunits, raiblocks' raw unit is
// never divided for display.
func FormatRaw(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

// ParseRaw parses a decimal string into a raw u128 ledger amount,
// rejecting anything that isn't a non-negative base-10 integer —
// config fields like receive_minimum and inactive_supply are raw
// amounts, never fractional.
func ParseRaw(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("helpers: empty amount string")
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("helpers: invalid amount: %s", s)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("helpers: negative amount: %s", s)
	}
	return amount, nil
}
