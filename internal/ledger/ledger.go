package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink/internal/deduction"
	"github.com/farmlink/farmlink/internal/shared"
)

// Tx is the storage surface ApplyDelta needs. Store methods must compare the
// loaded version and report db.ErrConflict when it moved.
type Tx interface {
	LoadFarmer(ctx context.Context, id int64, forUpdate bool) (Farmer, error)
	StoreFarmer(ctx context.Context, farmer Farmer) error
	LoadWarehouse(ctx context.Context, id int64, forUpdate bool) (Warehouse, error)
	StoreWarehouse(ctx context.Context, warehouse Warehouse) error
}

// ApplyDelta is the only sanctioned mutation path for ledger fields. It reads
// the account inside tx, applies all deltas and writes it back under a
// version check. Balances floor at zero. A statistic that would go negative
// fails the whole call and nothing is written.
func ApplyDelta(ctx context.Context, tx Tx, account Account, deltas ...Delta) error {
	if len(deltas) == 0 {
		return nil
	}
	switch account.Kind {
	case KindFarmer:
		farmer, err := tx.LoadFarmer(ctx, account.ID, true)
		if err != nil {
			return err
		}
		for _, d := range deltas {
			if err := farmer.apply(d); err != nil {
				return err
			}
		}
		if err := tx.StoreFarmer(ctx, farmer); err != nil {
			return fmt.Errorf("ledger: store farmer %d: %w", account.ID, err)
		}
	case KindWarehouse:
		warehouse, err := tx.LoadWarehouse(ctx, account.ID, true)
		if err != nil {
			return err
		}
		for _, d := range deltas {
			if err := warehouse.apply(d); err != nil {
				return err
			}
		}
		if err := tx.StoreWarehouse(ctx, warehouse); err != nil {
			return fmt.Errorf("ledger: store warehouse %d: %w", account.ID, err)
		}
	default:
		return fmt.Errorf("ledger: unknown account kind %q", account.Kind)
	}
	return nil
}

// GetBalances reads a farmer's three outstanding balances.
func GetBalances(ctx context.Context, tx Tx, farmerID int64) (deduction.Balances, error) {
	farmer, err := tx.LoadFarmer(ctx, farmerID, false)
	if err != nil {
		return deduction.Balances{}, err
	}
	return farmer.Balances, nil
}

func breakdownDeltas(b deduction.Breakdown, sign decimal.Decimal) []Delta {
	var out []Delta
	if !b.Advance.IsZero() {
		out = append(out, Delta{Field: FieldAdvancePayment, Amount: b.Advance.Mul(sign)})
	}
	if !b.Seed.IsZero() {
		out = append(out, Delta{Field: FieldSeedDebt, Amount: b.Seed.Mul(sign)})
	}
	if !b.Agricultural.IsZero() {
		out = append(out, Delta{Field: FieldAgriculturalDebt, Amount: b.Agricultural.Mul(sign)})
	}
	return out
}

var minusOne = decimal.NewFromInt(-1)

// ApplyDeduction decrements the balances that carry a nonzero deduction.
func ApplyDeduction(ctx context.Context, tx Tx, farmerID int64, b deduction.Breakdown) error {
	return ApplyDelta(ctx, tx, FarmerAccount(farmerID), breakdownDeltas(b, minusOne)...)
}

// RestoreDeduction is the inverse of ApplyDeduction.
func RestoreDeduction(ctx context.Context, tx Tx, farmerID int64, b deduction.Breakdown) error {
	return ApplyDelta(ctx, tx, FarmerAccount(farmerID), breakdownDeltas(b, decimal.NewFromInt(1))...)
}

// AddStatistics applies a signed statistics change to one account.
func AddStatistics(ctx context.Context, tx Tx, account Account, s StatsDelta) error {
	return ApplyDelta(ctx, tx, account, s.deltas()...)
}

// RecordAcquisition adds an acquisition's footprint to the farmer and the warehouse.
func RecordAcquisition(ctx context.Context, tx Tx, farmerID, warehouseID int64, s StatsDelta) error {
	if err := AddStatistics(ctx, tx, FarmerAccount(farmerID), s); err != nil {
		return err
	}
	return AddStatistics(ctx, tx, WarehouseAccount(warehouseID), s)
}

// ReverseStatistics subtracts an acquisition's footprint from the farmer and the warehouse.
func ReverseStatistics(ctx context.Context, tx Tx, farmerID, warehouseID int64, s StatsDelta) error {
	return RecordAcquisition(ctx, tx, farmerID, warehouseID, s.Negate())
}

// RecordPayment adds a completed payout to the farmer's paid total.
func RecordPayment(ctx context.Context, tx Tx, farmerID int64, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}
	return ApplyDelta(ctx, tx, FarmerAccount(farmerID), Delta{Field: FieldPaidAmount, Amount: amount})
}

// RecordDistribution increases the debt matching kind.
func RecordDistribution(ctx context.Context, tx Tx, farmerID int64, kind DistributionKind, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.Errorf(shared.CodeInvalidInput, "distribution amount must be positive")
	}
	deltas, err := kind.deltas(amount)
	if err != nil {
		return err
	}
	return ApplyDelta(ctx, tx, FarmerAccount(farmerID), deltas...)
}
