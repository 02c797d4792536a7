package acquisition

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/farmlink/internal/shared"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeFigures(t *testing.T) {
	m := Measurement{GrossWeight: d("1200"), TareWeight: d("80"), MoistureRate: d("2"), UnitPrice: d("9")}
	f := m.Compute()
	require.Equal(t, "22.40", f.MoistureWeight.StringFixed(2))
	require.Equal(t, "1097.60", f.NetWeight.StringFixed(2))
	require.Equal(t, "9878.40", f.TotalAmount.StringFixed(2))
}

func TestComputeRoundsOnlyAtTheEnd(t *testing.T) {
	// base 100.005 kg keeps its third decimal through the multiplication.
	m := Measurement{GrossWeight: d("100.005"), TareWeight: d("0"), MoistureRate: d("0"), UnitPrice: d("3")}
	f := m.Compute()
	require.Equal(t, "100.01", f.NetWeight.StringFixed(2))
	require.Equal(t, "300.02", f.TotalAmount.StringFixed(2))
}

func TestValidate(t *testing.T) {
	base := Measurement{GrossWeight: d("100"), TareWeight: d("10"), MoistureRate: d("5"), UnitPrice: d("2.5")}
	require.NoError(t, base.Validate())

	m := base
	m.TareWeight = d("120")
	require.ErrorIs(t, m.Validate(), shared.ErrInvalidWeight)

	m = base
	m.MoistureRate = d("101")
	require.ErrorIs(t, m.Validate(), shared.ErrInvalidInput)

	m = base
	m.UnitPrice = d("-1")
	require.ErrorIs(t, m.Validate(), shared.ErrInvalidInput)

	m = base
	m.GrossWeight = decimal.Zero
	m.TareWeight = decimal.Zero
	require.ErrorIs(t, m.Validate(), shared.ErrInvalidInput)
}

func TestCorrectionApply(t *testing.T) {
	price := d("10")
	c := Correction{UnitPrice: &price}
	require.False(t, c.IsEmpty())
	require.True(t, Correction{}.IsEmpty())

	m := c.ApplyTo(Measurement{GrossWeight: d("100"), TareWeight: d("0"), MoistureRate: d("0"), UnitPrice: d("9")})
	require.True(t, m.UnitPrice.Equal(price))
	require.True(t, m.GrossWeight.Equal(d("100")))
}

func TestValidateDeleteReason(t *testing.T) {
	require.ErrorIs(t, ValidateDeleteReason("   "), shared.ErrReasonRequired)
	require.ErrorIs(t, ValidateDeleteReason("typo"), shared.ErrReasonTooShort)
	require.ErrorIs(t, ValidateDeleteReason("录入错误"), shared.ErrReasonTooShort)
	require.NoError(t, ValidateDeleteReason("录入重复了"))
	require.NoError(t, ValidateDeleteReason("duplicate entry"))
}

func TestAdvisoryEstimate(t *testing.T) {
	est := EstimateYield(d("4"))
	require.Equal(t, "1200.00", est.StringFixed(2))
	require.False(t, IsAbnormal(d("1097.6"), est))
	require.True(t, IsAbnormal(d("1900"), est))
	require.True(t, IsAbnormal(d("500"), est))
	require.False(t, IsAbnormal(d("5000"), decimal.Zero))

	a := Acquisition{
		Measurement:     Measurement{GrossWeight: d("2000"), TareWeight: d("0"), MoistureRate: d("0"), UnitPrice: d("1")},
		EstimatedWeight: est,
	}
	a.Recompute()
	require.True(t, a.IsAbnormal)
	require.Equal(t, "2000.00", a.TotalAmount.StringFixed(2))
}
