// internal/math/fixedpoint.go
package math

import (
	"errors"
	"math/big"
	"math/bits"

	"github.com/shopspring/decimal"
)

var (
	// ErrOverflow is returned when a checked step leaves the uint64 range.
	// A zero divisor reports ErrOverflow as well.
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrUnderflow is returned by CheckedSub when b > a.
	ErrUnderflow = errors.New("arithmetic underflow")
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int32  // Number of decimal places
	Scale            uint64 // 10^DecimalPrecision
}

// RateScale is S: a stored rate of RateScale represents 1.0.
const RateScale uint64 = 1_000_000

var (
	RateConfig   = DecimalConfig{DecimalPrecision: 6, Scale: RateScale}
	AmountConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001 USDC
)

// CheckedAdd returns a + b or ErrOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a - b or ErrUnderflow.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrUnderflow
	}
	return diff, nil
}

// CheckedMul returns a * b or ErrOverflow if the product needs more than 64 bits.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// CheckedDiv returns floor(a / b).
func CheckedDiv(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrOverflow
	}
	return a / b, nil
}

// SharesForAmount converts a base-asset amount into shares at rate:
// floor(amount * S / rate).
func SharesForAmount(amount, rate uint64) (uint64, error) {
	scaled, err := CheckedMul(amount, RateScale)
	if err != nil {
		return 0, err
	}
	return CheckedDiv(scaled, rate)
}

// AmountForShares converts shares back into base-asset units at rate:
// floor(shares * rate / S).
func AmountForShares(shares, rate uint64) (uint64, error) {
	scaled, err := CheckedMul(shares, rate)
	if err != nil {
		return 0, err
	}
	return CheckedDiv(scaled, RateScale)
}

// ToDecimal renders a scaled uint64 as an exact decimal, e.g. 1_050_000 at
// precision 6 becomes 1.05.
func (c DecimalConfig) ToDecimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -c.DecimalPrecision)
}

// FromDecimal converts a decimal into its scaled uint64 form, truncating any
// digits past the configured precision.
func (c DecimalConfig) FromDecimal(d decimal.Decimal) (uint64, error) {
	if d.IsNegative() {
		return 0, ErrUnderflow
	}
	scaled := d.Shift(c.DecimalPrecision).Truncate(0).BigInt()
	if !scaled.IsUint64() {
		return 0, ErrOverflow
	}
	return scaled.Uint64(), nil
}
