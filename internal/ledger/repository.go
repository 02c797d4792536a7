package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink/internal/platform/db"
	"github.com/farmlink/farmlink/internal/shared"
)

// ErrSeedDebtNotBackfilled marks a legacy farmer row whose seed debt was never
// converted to the stored field.
var ErrSeedDebtNotBackfilled = errors.New("ledger: seed debt not backfilled, run `farmlink backfill seed-debt`")

// Repository provides PostgreSQL access to farmers and warehouses.
type Repository struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

// NewRepository constructs the repository. maxAttempts bounds conflict retries.
func NewRepository(pool *pgxpool.Pool, maxAttempts int) *Repository {
	return &Repository{pool: pool, maxAttempts: maxAttempts}
}

// WithTx runs fn inside a retried repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithRetryTx(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		return fn(ctx, NewPGTx(tx))
	})
}

// GetFarmer reads a farmer outside any transaction.
func (r *Repository) GetFarmer(ctx context.Context, id int64) (Farmer, error) {
	return loadFarmer(ctx, r.pool, id, false)
}

// PGTx implements Tx over a pgx transaction.
type PGTx struct {
	tx pgx.Tx
}

// NewPGTx wraps tx.
func NewPGTx(tx pgx.Tx) *PGTx {
	return &PGTx{tx: tx}
}

const farmerColumns = `id, name, phone, acreage, grade, deposit, advance_payment, seed_debt, agricultural_debt,
total_seed_amount, total_acquisition_count, total_acquisition_weight, total_acquisition_amount,
total_paid_amount, version, updated_at`

func loadFarmer(ctx context.Context, q shared.DBTX, id int64, forUpdate bool) (Farmer, error) {
	sql := `SELECT ` + farmerColumns + ` FROM farmers WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var f Farmer
	var seedDebt decimal.NullDecimal
	err := q.QueryRow(ctx, sql, id).Scan(&f.ID, &f.Name, &f.Phone, &f.Acreage, &f.Grade, &f.Deposit,
		&f.AdvancePayment, &seedDebt, &f.AgriculturalDebt, &f.TotalSeedAmount,
		&f.AcquisitionCount, &f.AcquisitionWeight, &f.AcquisitionAmount,
		&f.TotalPaidAmount, &f.Version, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Farmer{}, shared.ErrFarmerNotFound
		}
		return Farmer{}, err
	}
	if !seedDebt.Valid {
		return Farmer{}, fmt.Errorf("farmer %d: %w", id, ErrSeedDebtNotBackfilled)
	}
	f.SeedDebt = seedDebt.Decimal
	return f, nil
}

// LoadFarmer implements Tx.
func (t *PGTx) LoadFarmer(ctx context.Context, id int64, forUpdate bool) (Farmer, error) {
	return loadFarmer(ctx, t.tx, id, forUpdate)
}

// StoreFarmer implements Tx.
func (t *PGTx) StoreFarmer(ctx context.Context, f Farmer) error {
	tag, err := t.tx.Exec(ctx, `UPDATE farmers SET advance_payment=$3, seed_debt=$4, agricultural_debt=$5,
total_seed_amount=$6, total_acquisition_count=$7, total_acquisition_weight=$8, total_acquisition_amount=$9,
total_paid_amount=$10, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$2`, f.ID, f.Version, f.AdvancePayment, f.SeedDebt, f.AgriculturalDebt,
		f.TotalSeedAmount, f.AcquisitionCount, f.AcquisitionWeight, f.AcquisitionAmount, f.TotalPaidAmount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrConflict
	}
	return nil
}

// LoadWarehouse implements Tx.
func (t *PGTx) LoadWarehouse(ctx context.Context, id int64, forUpdate bool) (Warehouse, error) {
	sql := `SELECT id, name, total_acquisition_count, total_acquisition_weight, total_acquisition_amount, version, updated_at
FROM warehouses WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var w Warehouse
	err := t.tx.QueryRow(ctx, sql, id).Scan(&w.ID, &w.Name, &w.AcquisitionCount, &w.AcquisitionWeight,
		&w.AcquisitionAmount, &w.Version, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, shared.ErrWarehouseNotFound
		}
		return Warehouse{}, err
	}
	return w, nil
}

// StoreWarehouse implements Tx.
func (t *PGTx) StoreWarehouse(ctx context.Context, w Warehouse) error {
	tag, err := t.tx.Exec(ctx, `UPDATE warehouses SET total_acquisition_count=$3, total_acquisition_weight=$4,
total_acquisition_amount=$5, version=version+1, updated_at=NOW() WHERE id=$1 AND version=$2`,
		w.ID, w.Version, w.AcquisitionCount, w.AcquisitionWeight, w.AcquisitionAmount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrConflict
	}
	return nil
}
