package deduction

import (
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, d(want).Equal(got), "want %s got %s", want, got)
}

func TestComputeWaterfallOrder(t *testing.T) {
	res := Compute(d("80"), Balances{AdvancePayment: d("50"), SeedDebt: d("50"), AgriculturalDebt: d("50")})
	requireAmount(t, "50", res.Deductions.Advance)
	requireAmount(t, "30", res.Deductions.Seed)
	requireAmount(t, "0", res.Deductions.Agricultural)
	requireAmount(t, "80", res.Deductions.Total)
	requireAmount(t, "0", res.ActualPayment)
}

func TestComputeFullCoverage(t *testing.T) {
	res := Compute(d("13095"), Balances{SeedDebt: d("2500"), AgriculturalDebt: d("1000")})
	requireAmount(t, "0", res.Deductions.Advance)
	requireAmount(t, "2500", res.Deductions.Seed)
	requireAmount(t, "1000", res.Deductions.Agricultural)
	requireAmount(t, "3500", res.Deductions.Total)
	require.Equal(t, "9595.00", res.ActualPayment.StringFixed(2))
}

func TestComputeDebtExceedsGross(t *testing.T) {
	bal := Balances{SeedDebt: d("2000")}
	res := Compute(d("500"), bal)
	requireAmount(t, "500", res.Deductions.Seed)
	requireAmount(t, "0", res.ActualPayment)
	requireAmount(t, "1500", bal.Remaining(res.Deductions).SeedDebt)
}

func TestComputeZeroGross(t *testing.T) {
	res := Compute(decimal.Zero, Balances{AdvancePayment: d("10"), SeedDebt: d("10"), AgriculturalDebt: d("10")})
	require.True(t, res.Deductions.IsZero())
	requireAmount(t, "0", res.Deductions.Total)
	requireAmount(t, "0", res.ActualPayment)
}

func TestComputeSkipsEmptyBuckets(t *testing.T) {
	res := Compute(d("100"), Balances{AgriculturalDebt: d("40")})
	requireAmount(t, "0", res.Deductions.Advance)
	requireAmount(t, "0", res.Deductions.Seed)
	requireAmount(t, "40", res.Deductions.Agricultural)
	requireAmount(t, "60", res.ActualPayment)
}

func TestComputeTreatsNegativeInputsAsZero(t *testing.T) {
	res := Compute(d("-20"), Balances{AdvancePayment: d("-5"), SeedDebt: d("3")})
	require.True(t, res.Deductions.IsZero())
	requireAmount(t, "0", res.ActualPayment)

	res = Compute(d("20"), Balances{AdvancePayment: d("-5"), SeedDebt: d("3")})
	requireAmount(t, "0", res.Deductions.Advance)
	requireAmount(t, "3", res.Deductions.Seed)
	requireAmount(t, "17", res.ActualPayment)
}

func TestComputeInvariantsHoldForRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	amount := func() decimal.Decimal {
		return decimal.New(rng.Int64N(2_000_000), -2)
	}
	for i := 0; i < 2000; i++ {
		gross := amount()
		bal := Balances{AdvancePayment: amount(), SeedDebt: amount(), AgriculturalDebt: amount()}
		if i%5 == 0 {
			bal.SeedDebt = decimal.Zero
		}
		res := Compute(gross, bal)

		require.True(t, gross.Equal(res.Deductions.Total.Add(res.ActualPayment)), "conservation broken for %s", gross)
		require.False(t, res.ActualPayment.IsNegative())
		require.True(t, res.Deductions.Total.LessThanOrEqual(gross))

		require.False(t, res.Deductions.Advance.IsNegative())
		require.False(t, res.Deductions.Seed.IsNegative())
		require.False(t, res.Deductions.Agricultural.IsNegative())
		require.True(t, res.Deductions.Advance.LessThanOrEqual(bal.AdvancePayment))
		require.True(t, res.Deductions.Seed.LessThanOrEqual(bal.SeedDebt))
		require.True(t, res.Deductions.Agricultural.LessThanOrEqual(bal.AgriculturalDebt))

		// a later bucket is only touched once the earlier ones are exhausted
		if res.Deductions.Seed.IsPositive() {
			require.True(t, res.Deductions.Advance.Equal(bal.AdvancePayment))
		}
		if res.Deductions.Agricultural.IsPositive() {
			require.True(t, res.Deductions.Seed.Equal(bal.SeedDebt))
		}
	}
}
