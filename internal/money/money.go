// Package money holds currency arithmetic helpers shared by the settlement core.
package money

import (
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Scale is the number of decimal places persisted for currency and weights.
const Scale int32 = 2

// Round rounds to Scale places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// NonNegative clamps negative amounts to zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Normalize prepares an externally supplied balance for computation:
// negative values become zero and the amount is brought to Scale.
func Normalize(d decimal.Decimal) decimal.Decimal {
	return Round(NonNegative(d))
}

// FromFloat converts a float, treating NaN and infinities as zero.
func FromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// Min returns the smaller of two amounts.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// String renders an amount with exactly Scale places.
func String(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// Formatter renders amounts for human readers using locale grouping.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a Formatter for the BCP 47 locale tag. Unknown tags fall
// back to Chinese (Simplified), the locale used by field staff.
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.SimplifiedChinese
	}
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Format renders d with grouping separators and two decimals, e.g. 9,595.00.
func (f *Formatter) Format(d decimal.Decimal) string {
	if f == nil || f.printer == nil {
		return String(d)
	}
	return f.printer.Sprint(number.Decimal(Round(d).InexactFloat64(), number.Scale(int(Scale))))
}
