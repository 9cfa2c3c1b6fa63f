// internal/math/growth.go
package math

const (
	// YearlyRateBps is the yearly growth rate expressed against BpsScale
	// (5000 / 100_000 = 5% APR).
	YearlyRateBps uint64 = 5000
	BpsScale      uint64 = 100_000

	SecondsPerYear uint64 = 31_536_000
)

// PriceIncrease returns the simple-interest accrual for elapsed seconds:
//
//	floor(rate * YearlyRateBps * elapsed / SecondsPerYear / BpsScale)
//
// Every step is checked in uint64 and truncates toward zero, so the result
// never exceeds the exact continuous value.
func PriceIncrease(rate, elapsed uint64) (uint64, error) {
	v, err := CheckedMul(rate, YearlyRateBps)
	if err != nil {
		return 0, err
	}
	if v, err = CheckedMul(v, elapsed); err != nil {
		return 0, err
	}
	if v, err = CheckedDiv(v, SecondsPerYear); err != nil {
		return 0, err
	}
	return CheckedDiv(v, BpsScale)
}

// GrowRate returns rate advanced by elapsed seconds of accrual.
func GrowRate(rate, elapsed uint64) (uint64, error) {
	increase, err := PriceIncrease(rate, elapsed)
	if err != nil {
		return 0, err
	}
	return CheckedAdd(rate, increase)
}
