package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfAwayFromZero(t *testing.T) {
	cases := map[string]string{
		"1.005":   "1.01",
		"2.675":   "2.68",
		"-1.005":  "-1.01",
		"9595":    "9595.00",
		"0.004":   "0.00",
		"1097.6":  "1097.60",
		"10.0049": "10.00",
	}
	for in, want := range cases {
		got := Round(decimal.RequireFromString(in))
		require.Equal(t, want, String(got), "input %s", in)
	}
}

func TestNormalizeClampsNegative(t *testing.T) {
	require.True(t, Normalize(decimal.NewFromInt(-5)).IsZero())
	require.Equal(t, "12.35", String(Normalize(decimal.RequireFromString("12.345"))))
}

func TestFromFloatNonFinite(t *testing.T) {
	require.True(t, FromFloat(math.NaN()).IsZero())
	require.True(t, FromFloat(math.Inf(1)).IsZero())
	require.True(t, FromFloat(math.Inf(-1)).IsZero())
	require.Equal(t, "0.10", String(FromFloat(0.1)))
}

func TestFormatterGroupsThousands(t *testing.T) {
	f := NewFormatter("en")
	require.Equal(t, "9,595.00", f.Format(decimal.RequireFromString("9595")))

	var nilFormatter *Formatter
	require.Equal(t, "12.50", nilFormatter.Format(decimal.RequireFromString("12.5")))
}
