package main

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// toBaseUnits converts a human amount such as "1.5" into integer base units.
func toBaseUnits(value string, decimals int32) (string, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if amount.IsNegative() {
		return "", fmt.Errorf("invalid amount %q: negative", value)
	}
	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return "", fmt.Errorf("invalid amount %q: more than %d fractional digits", value, decimals)
	}
	return shifted.Truncate(0).String(), nil
}

// fromBaseUnits renders integer base units with decimals fractional digits.
func fromBaseUnits(value string, decimals int32) string {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return value
	}
	if decimals <= 0 {
		return amount.String()
	}
	return amount.Shift(-decimals).StringFixed(decimals)
}
