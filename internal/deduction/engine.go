// Package deduction computes the settlement deduction waterfall.
//
// Outstanding balances are recovered from a purchase amount in a fixed order:
// cash advance first, then seed debt, then agricultural-input debt. Whatever
// remains is paid to the farmer. The order is business policy and is not
// configurable per call.
package deduction

import (
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink/internal/money"
)

// Balances is a farmer's outstanding position at the moment of computation.
type Balances struct {
	AdvancePayment   decimal.Decimal `json:"advancePayment"`
	SeedDebt         decimal.Decimal `json:"seedDebt"`
	AgriculturalDebt decimal.Decimal `json:"agriculturalDebt"`
}

// Total sums all three balances.
func (b Balances) Total() decimal.Decimal {
	return b.AdvancePayment.Add(b.SeedDebt).Add(b.AgriculturalDebt)
}

// Breakdown is the per-category deduction taken from a purchase amount.
type Breakdown struct {
	Advance      decimal.Decimal `json:"advanceDeduction"`
	Seed         decimal.Decimal `json:"seedDeduction"`
	Agricultural decimal.Decimal `json:"agriculturalDeduction"`
	Total        decimal.Decimal `json:"totalDeduction"`
}

// IsZero reports whether nothing is deducted.
func (b Breakdown) IsZero() bool {
	return b.Advance.IsZero() && b.Seed.IsZero() && b.Agricultural.IsZero()
}

// Result is the outcome of running the waterfall.
type Result struct {
	GrossAmount   decimal.Decimal `json:"grossAmount"`
	Balances      Balances        `json:"balances"`
	Deductions    Breakdown       `json:"deductions"`
	ActualPayment decimal.Decimal `json:"actualPayment"`
}

// Compute runs the waterfall. It has no side effects and is used both for
// previews and for the authoritative step inside approval.
//
// Inputs are persisted currency amounts; negative values count as zero and
// every input is brought to two places before any subtraction, so the result
// satisfies gross == total + actual exactly.
func Compute(gross decimal.Decimal, balances Balances) Result {
	remaining := money.Normalize(gross)
	bal := Balances{
		AdvancePayment:   money.Normalize(balances.AdvancePayment),
		SeedDebt:         money.Normalize(balances.SeedDebt),
		AgriculturalDebt: money.Normalize(balances.AgriculturalDebt),
	}
	res := Result{GrossAmount: remaining, Balances: bal}

	res.Deductions.Advance = money.Min(remaining, bal.AdvancePayment)
	remaining = remaining.Sub(res.Deductions.Advance)

	res.Deductions.Seed = money.Min(remaining, bal.SeedDebt)
	remaining = remaining.Sub(res.Deductions.Seed)

	res.Deductions.Agricultural = money.Min(remaining, bal.AgriculturalDebt)
	remaining = remaining.Sub(res.Deductions.Agricultural)

	res.Deductions.Total = res.Deductions.Advance.Add(res.Deductions.Seed).Add(res.Deductions.Agricultural)
	res.ActualPayment = remaining
	return res
}

// Remaining returns the balances left after b is taken from them.
func (b Balances) Remaining(d Breakdown) Balances {
	return Balances{
		AdvancePayment:   money.NonNegative(b.AdvancePayment.Sub(d.Advance)),
		SeedDebt:         money.NonNegative(b.SeedDebt.Sub(d.Seed)),
		AgriculturalDebt: money.NonNegative(b.AgriculturalDebt.Sub(d.Agricultural)),
	}
}
