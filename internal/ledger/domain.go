// Package ledger owns farmer balances and the cumulative acquisition
// statistics kept on farmers and warehouses. Every mutation goes through
// ApplyDelta.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink/internal/deduction"
	"github.com/farmlink/farmlink/internal/money"
	"github.com/farmlink/farmlink/internal/shared"
)

// Stats are cumulative acquisition figures.
type Stats struct {
	AcquisitionCount  int64           `json:"totalAcquisitionCount"`
	AcquisitionWeight decimal.Decimal `json:"totalAcquisitionWeight"`
	AcquisitionAmount decimal.Decimal `json:"totalAcquisitionAmount"`
}

// Farmer is a farmer's identity and financial position.
type Farmer struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Phone   string          `json:"phone"`
	Acreage decimal.Decimal `json:"acreage"`
	Grade   string          `json:"grade"`
	Deposit decimal.Decimal `json:"deposit"`
	deduction.Balances
	TotalSeedAmount decimal.Decimal `json:"totalSeedAmount"`
	Stats
	TotalPaidAmount decimal.Decimal `json:"totalPaidAmount"`
	Version         int64           `json:"version"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Warehouse carries the warehouse-side statistics aggregate.
type Warehouse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Stats
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Field names a mutable ledger column.
type Field string

const (
	FieldAdvancePayment    Field = "advance_payment"
	FieldSeedDebt          Field = "seed_debt"
	FieldAgriculturalDebt  Field = "agricultural_debt"
	FieldTotalSeedAmount   Field = "total_seed_amount"
	FieldAcquisitionCount  Field = "total_acquisition_count"
	FieldAcquisitionWeight Field = "total_acquisition_weight"
	FieldAcquisitionAmount Field = "total_acquisition_amount"
	FieldPaidAmount        Field = "total_paid_amount"
)

// Delta is a signed change to one field.
type Delta struct {
	Field  Field           `json:"field"`
	Amount decimal.Decimal `json:"amount"`
}

// Kind distinguishes ledger account types.
type Kind string

const (
	KindFarmer    Kind = "farmer"
	KindWarehouse Kind = "warehouse"
)

// Account addresses one farmer or warehouse.
type Account struct {
	Kind Kind
	ID   int64
}

// FarmerAccount addresses a farmer.
func FarmerAccount(id int64) Account { return Account{Kind: KindFarmer, ID: id} }

// WarehouseAccount addresses a warehouse.
func WarehouseAccount(id int64) Account { return Account{Kind: KindWarehouse, ID: id} }

// addFloor adds delta and floors the result at zero.
func addFloor(v, delta decimal.Decimal) decimal.Decimal {
	return money.Round(money.NonNegative(v.Add(delta)))
}

// addStat adds delta to a cumulative statistic. Statistics only shrink by
// reversing what was recorded, so a negative result is rejected.
func addStat(field Field, v, delta decimal.Decimal) (decimal.Decimal, error) {
	out := money.Round(v.Add(delta))
	if out.IsNegative() {
		return v, shared.Errorf(shared.CodeInvalidStateTransition, "%s would drop below zero", field)
	}
	return out, nil
}

// apply reports handled=false for fields that are not statistics.
func (s *Stats) apply(d Delta) (handled bool, err error) {
	switch d.Field {
	case FieldAcquisitionCount:
		count := s.AcquisitionCount + d.Amount.IntPart()
		if count < 0 {
			return true, shared.Errorf(shared.CodeInvalidStateTransition, "%s would drop below zero", d.Field)
		}
		s.AcquisitionCount = count
	case FieldAcquisitionWeight:
		s.AcquisitionWeight, err = addStat(d.Field, s.AcquisitionWeight, d.Amount)
	case FieldAcquisitionAmount:
		s.AcquisitionAmount, err = addStat(d.Field, s.AcquisitionAmount, d.Amount)
	default:
		return false, nil
	}
	return true, err
}

func (f *Farmer) apply(d Delta) error {
	switch d.Field {
	case FieldAdvancePayment:
		f.AdvancePayment = addFloor(f.AdvancePayment, d.Amount)
	case FieldSeedDebt:
		f.SeedDebt = addFloor(f.SeedDebt, d.Amount)
	case FieldAgriculturalDebt:
		f.AgriculturalDebt = addFloor(f.AgriculturalDebt, d.Amount)
	case FieldTotalSeedAmount:
		f.TotalSeedAmount = addFloor(f.TotalSeedAmount, d.Amount)
	case FieldPaidAmount:
		f.TotalPaidAmount = addFloor(f.TotalPaidAmount, d.Amount)
	default:
		handled, err := f.Stats.apply(d)
		if err != nil {
			return err
		}
		if !handled {
			return fmt.Errorf("ledger: unknown farmer field %q", d.Field)
		}
	}
	return nil
}

func (w *Warehouse) apply(d Delta) error {
	handled, err := w.Stats.apply(d)
	if err != nil {
		return err
	}
	if !handled {
		return shared.Errorf(shared.CodeInvalidInput, "field %s is not tracked on warehouses", d.Field)
	}
	return nil
}

// StatsDelta is the statistics footprint of one acquisition.
type StatsDelta struct {
	Count  int64
	Weight decimal.Decimal
	Amount decimal.Decimal
}

// Negate returns the inverse footprint.
func (s StatsDelta) Negate() StatsDelta {
	return StatsDelta{Count: -s.Count, Weight: s.Weight.Neg(), Amount: s.Amount.Neg()}
}

// IsZero reports whether applying s would change nothing.
func (s StatsDelta) IsZero() bool {
	return s.Count == 0 && s.Weight.IsZero() && s.Amount.IsZero()
}

func (s StatsDelta) deltas() []Delta {
	var out []Delta
	if s.Count != 0 {
		out = append(out, Delta{Field: FieldAcquisitionCount, Amount: decimal.NewFromInt(s.Count)})
	}
	if !s.Weight.IsZero() {
		out = append(out, Delta{Field: FieldAcquisitionWeight, Amount: s.Weight})
	}
	if !s.Amount.IsZero() {
		out = append(out, Delta{Field: FieldAcquisitionAmount, Amount: s.Amount})
	}
	return out
}

// DistributionKind enumerates debt-issuing events.
type DistributionKind string

const (
	DistributeSeed    DistributionKind = "seed"
	DistributeInput   DistributionKind = "input"
	DistributeAdvance DistributionKind = "advance"
)

func (k DistributionKind) deltas(amount decimal.Decimal) ([]Delta, error) {
	switch k {
	case DistributeSeed:
		return []Delta{{Field: FieldSeedDebt, Amount: amount}, {Field: FieldTotalSeedAmount, Amount: amount}}, nil
	case DistributeInput:
		return []Delta{{Field: FieldAgriculturalDebt, Amount: amount}}, nil
	case DistributeAdvance:
		return []Delta{{Field: FieldAdvancePayment, Amount: amount}}, nil
	}
	return nil, shared.Errorf(shared.CodeInvalidInput, "unknown distribution kind %q", k)
}

// SeedDebtBaseline is the legacy derivation of seed debt, used only by the
// one-time backfill: cumulative seedling cost less the deposit, floored at 0.
func SeedDebtBaseline(totalSeedAmount, deposit decimal.Decimal) decimal.Decimal {
	return money.Normalize(totalSeedAmount.Sub(deposit))
}
