// Package units converts between display amounts and the integer base units
// custody operations are denominated in.
package units

import (
	"math/big"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/shopspring/decimal"
)

// UnitScale is the number of decimal places one display unit carries. One
// display unit equals 10^UnitScale base units.
const UnitScale = 9

// Parse converts a display amount like "0.4" into base units (400000000).
// Negative, malformed, and sub-base-precision inputs are rejected.
func Parse(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, custody.NewError(custody.ErrorInvalidAmount, "amount",
			"amount is not a decimal number")
	}

	if d.IsNegative() {
		return nil, custody.NewError(custody.ErrorInvalidAmount, "amount",
			"amount must be non-negative")
	}

	shifted := d.Shift(UnitScale)
	if !shifted.IsInteger() {
		return nil, custody.NewError(custody.ErrorInvalidAmount, "amount",
			"amount has more than 9 decimal places")
	}

	return shifted.BigInt(), nil
}

// Format converts base units back into a display amount: 400000000 → "0.4".
func Format(amount *big.Int) (string, error) {
	if amount == nil || amount.Sign() < 0 {
		return "", custody.NewError(custody.ErrorInvalidAmount, "amount",
			"amount must be a non-negative integer")
	}

	return decimal.NewFromBigInt(amount, -UnitScale).String(), nil
}
