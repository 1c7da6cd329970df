package escrow

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseAmount parses an amount string from the API boundary into the
// smallest value unit. Amounts must be whole and positive; clients that
// think in display units are expected to scale before calling.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("amount %q is not a whole number of base units", s)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %q", s)
	}
	return d.BigInt(), nil
}

// FormatAmount renders an amount for API responses.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, 0).String()
}
