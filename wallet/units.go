package wallet

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human-readable amount into base units of an
// asset with the given decimal precision, rounding to the nearest
// base unit.
func ToBaseUnits(amount float64, decimals uint8) (uint64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("amount is not a finite number")
	}
	if amount < 0 {
		return 0, fmt.Errorf("amount cannot be negative")
	}

	base := decimal.NewFromFloat(amount).Shift(int32(decimals)).Round(0)
	baseInt := base.BigInt()
	if !baseInt.IsUint64() {
		return 0, fmt.Errorf("amount %v overflows base units", amount)
	}
	return baseInt.Uint64(), nil
}

// FromBaseUnits converts base units back into a human-readable
// amount.
func FromBaseUnits(base uint64, decimals uint8) float64 {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(base), -int32(decimals))
	f, _ := d.Float64()
	return f
}

// FormatAmount renders base units as a plain decimal string, without
// trailing zeros.
func FormatAmount(base uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(base), -int32(decimals)).String()
}
