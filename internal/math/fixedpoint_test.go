package math_test

import (
	"errors"
	gomath "math"
	"math/big"
	"testing"

	fpmath "VaultLedger/internal/math"

	"github.com/shopspring/decimal"
)

// ============================================================================
// Test: checked primitives
// ============================================================================

func TestCheckedAdd(t *testing.T) {
	got, err := fpmath.CheckedAdd(gomath.MaxUint64-1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != gomath.MaxUint64 {
		t.Errorf("got %d, want %d", got, uint64(gomath.MaxUint64))
	}

	if _, err := fpmath.CheckedAdd(gomath.MaxUint64, 1); !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestCheckedSub(t *testing.T) {
	got, err := fpmath.CheckedSub(10, 10)
	if err != nil || got != 0 {
		t.Errorf("got (%d, %v), want (0, nil)", got, err)
	}
	if _, err := fpmath.CheckedSub(9, 10); !errors.Is(err, fpmath.ErrUnderflow) {
		t.Errorf("expected ErrUnderflow, got %v", err)
	}
}

func TestCheckedMul(t *testing.T) {
	got, err := fpmath.CheckedMul(1<<32, 1<<31)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1<<63 {
		t.Errorf("got %d, want %d", got, uint64(1<<63))
	}

	if _, err := fpmath.CheckedMul(1<<32, 1<<32); !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestCheckedDiv_ZeroDivisor(t *testing.T) {
	if _, err := fpmath.CheckedDiv(1, 0); !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("expected ErrOverflow for zero divisor, got %v", err)
	}
}

// ============================================================================
// Test: conversions
// ============================================================================

func TestSharesForAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount uint64
		rate   uint64
		want   uint64
	}{
		{"par", 10_000_000, 1_000_000, 10_000_000},
		{"five percent", 10_500_000, 1_050_000, 10_000_000},
		{"truncates", 1, 1_050_000, 0},
		{"truncates larger", 1_000_001, 1_050_000, 952_381},
		{"max amount at par", gomath.MaxUint64 / fpmath.RateScale, 1_000_000, gomath.MaxUint64 / fpmath.RateScale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fpmath.SharesForAmount(tt.amount, tt.rate)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSharesForAmount_Overflow(t *testing.T) {
	amount := gomath.MaxUint64/fpmath.RateScale + 1
	if _, err := fpmath.SharesForAmount(amount, fpmath.RateScale); !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestAmountForShares(t *testing.T) {
	got, err := fpmath.AmountForShares(10_000_000, 1_050_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 10_500_000 {
		t.Errorf("got %d, want 10_500_000", got)
	}

	if _, err := fpmath.AmountForShares(gomath.MaxUint64, 2); !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

// Round trip at a fixed rate never returns more than was deposited.
func TestRoundTripNeverGains(t *testing.T) {
	rates := []uint64{1_000_000, 1_000_001, 1_049_999, 1_050_000, 1_333_333, 2_718_281}
	amounts := []uint64{1, 2, 3, 7, 999, 1_000_000, 1_000_001, 123_456_789, 18_000_000_000_000}

	for _, rate := range rates {
		for _, amount := range amounts {
			shares, err := fpmath.SharesForAmount(amount, rate)
			if err != nil {
				t.Fatalf("shares(%d, %d): %v", amount, rate, err)
			}
			back, err := fpmath.AmountForShares(shares, rate)
			if err != nil {
				t.Fatalf("amount(%d, %d): %v", shares, rate, err)
			}
			if back > amount {
				t.Errorf("rate=%d amount=%d: round trip returned %d", rate, amount, back)
			}
		}
	}
}

// Conversions match exact big-integer floor division.
func TestConversionsMatchExactFloor(t *testing.T) {
	scale := new(big.Int).SetUint64(fpmath.RateScale)
	cases := [][2]uint64{
		{1, 1_000_000}, {17, 1_000_003}, {987_654_321, 1_234_567}, {5_000_000_000_000, 1_999_999},
	}
	for _, c := range cases {
		amount, rate := c[0], c[1]

		want := new(big.Int).Mul(new(big.Int).SetUint64(amount), scale)
		want.Quo(want, new(big.Int).SetUint64(rate))

		got, err := fpmath.SharesForAmount(amount, rate)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want.Uint64() {
			t.Errorf("shares(%d, %d): got %d, want %s", amount, rate, got, want)
		}
	}
}

// ============================================================================
// Test: growth model
// ============================================================================

func TestGrowRate_OneYear(t *testing.T) {
	got, err := fpmath.GrowRate(fpmath.RateScale, fpmath.SecondsPerYear)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1_050_000 {
		t.Errorf("got %d, want 1_050_000", got)
	}
}

func TestGrowRate_ZeroElapsed(t *testing.T) {
	got, err := fpmath.GrowRate(1_234_567, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1_234_567 {
		t.Errorf("got %d, want 1_234_567", got)
	}
}

func TestPriceIncrease_TruncatesShortIntervals(t *testing.T) {
	// 1_000_000 * 5000 * 1 / 31_536_000 / 100_000 < 1
	got, err := fpmath.PriceIncrease(fpmath.RateScale, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("got %d, want 0", got)
	}

	// One day: floor(1e6 * 5000 * 86400 / 31_536_000 / 100_000) = 136
	got, err = fpmath.PriceIncrease(fpmath.RateScale, 86_400)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 136 {
		t.Errorf("got %d, want 136", got)
	}
}

func TestPriceIncrease_NeverExceedsExact(t *testing.T) {
	elapsed := []uint64{1, 59, 3_600, 86_400, 2_592_000, fpmath.SecondsPerYear, 3 * fpmath.SecondsPerYear}
	for _, e := range elapsed {
		got, err := fpmath.PriceIncrease(1_049_999, e)
		if err != nil {
			t.Fatalf("elapsed=%d: %v", e, err)
		}

		exact := new(big.Rat).SetFrac(
			new(big.Int).SetUint64(1_049_999*fpmath.YearlyRateBps*e),
			new(big.Int).SetUint64(fpmath.SecondsPerYear*fpmath.BpsScale),
		)
		if new(big.Rat).SetUint64(got).Cmp(exact) > 0 {
			t.Errorf("elapsed=%d: increase %d exceeds exact %s", e, got, exact.FloatString(6))
		}
	}
}

func TestPriceIncrease_Overflow(t *testing.T) {
	// rate * 5000 fits, * elapsed does not.
	if _, err := fpmath.PriceIncrease(fpmath.RateScale, gomath.MaxUint64/fpmath.RateScale); !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
	if _, err := fpmath.PriceIncrease(gomath.MaxUint64/2, 1); !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

// ============================================================================
// Test: decimal rendering
// ============================================================================

func TestDecimalConfig_RoundTrip(t *testing.T) {
	d := fpmath.RateConfig.ToDecimal(1_050_000)
	if d.String() != "1.05" {
		t.Errorf("got %s, want 1.05", d.String())
	}

	v, err := fpmath.AmountConfig.FromDecimal(decimal.RequireFromString("12.3456789"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 12_345_678 {
		t.Errorf("got %d, want 12_345_678", v)
	}

	maxDec := fpmath.AmountConfig.ToDecimal(gomath.MaxUint64)
	back, err := fpmath.AmountConfig.FromDecimal(maxDec)
	if err != nil || back != gomath.MaxUint64 {
		t.Errorf("max round trip: got (%d, %v)", back, err)
	}
}

func TestRateConfig_MatchesRateScale(t *testing.T) {
	if fpmath.RateConfig.Scale != fpmath.RateScale {
		t.Fatalf("scale %d, want %d", fpmath.RateConfig.Scale, fpmath.RateScale)
	}
	if d := fpmath.RateConfig.ToDecimal(fpmath.RateScale); !d.Equal(decimal.NewFromInt(1)) {
		t.Errorf("RateScale renders as %s, want 1", d)
	}
}

func TestDecimalConfig_FromDecimalRejectsNegative(t *testing.T) {
	if _, err := fpmath.AmountConfig.FromDecimal(decimal.RequireFromString("-1")); !errors.Is(err, fpmath.ErrUnderflow) {
		t.Errorf("expected ErrUnderflow, got %v", err)
	}
}
