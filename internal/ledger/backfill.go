package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink/internal/platform/db"
)

// SeedDebtBackfillRow is one legacy farmer converted by the backfill.
type SeedDebtBackfillRow struct {
	FarmerID        int64
	TotalSeedAmount decimal.Decimal
	Deposit         decimal.Decimal
	SeedDebt        decimal.Decimal
}

// SeedDebtBackfillSummary reports what the backfill did or would do.
type SeedDebtBackfillSummary struct {
	Rows    []SeedDebtBackfillRow
	Applied bool
	Total   decimal.Decimal
}

// BackfillSeedDebt derives seed_debt for farmers imported without it. When
// apply is false the conversion runs inside a rolled-back transaction. After
// an applied run the column is made NOT NULL, so runtime code never derives
// seed debt again.
func (r *Repository) BackfillSeedDebt(ctx context.Context, apply bool) (SeedDebtBackfillSummary, error) {
	summary := SeedDebtBackfillSummary{Applied: apply, Total: decimal.Zero}
	errDryRun := errors.New("dry run")
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, total_seed_amount, deposit FROM farmers WHERE seed_debt IS NULL ORDER BY id FOR UPDATE`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var row SeedDebtBackfillRow
			if err := rows.Scan(&row.FarmerID, &row.TotalSeedAmount, &row.Deposit); err != nil {
				rows.Close()
				return err
			}
			row.SeedDebt = SeedDebtBaseline(row.TotalSeedAmount, row.Deposit)
			summary.Rows = append(summary.Rows, row)
			summary.Total = summary.Total.Add(row.SeedDebt)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, row := range summary.Rows {
			if _, err := tx.Exec(ctx, `UPDATE farmers SET seed_debt=$2, version=version+1, updated_at=NOW() WHERE id=$1`, row.FarmerID, row.SeedDebt); err != nil {
				return fmt.Errorf("backfill farmer %d: %w", row.FarmerID, err)
			}
		}
		if !apply {
			return errDryRun
		}
		_, err = tx.Exec(ctx, `ALTER TABLE farmers ALTER COLUMN seed_debt SET DEFAULT 0, ALTER COLUMN seed_debt SET NOT NULL`)
		return err
	})
	if errors.Is(err, errDryRun) {
		err = nil
	}
	return summary, err
}
