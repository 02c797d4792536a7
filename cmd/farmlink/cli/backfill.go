package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/farmlink/farmlink/internal/ledger"
)

// SeedDebtBackfiller converts legacy farmer rows to the seed_debt column.
type SeedDebtBackfiller interface {
	BackfillSeedDebt(ctx context.Context, apply bool) (ledger.SeedDebtBackfillSummary, error)
}

// SeedDebtOptions configures the seed-debt backfill command.
type SeedDebtOptions struct {
	Apply      bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

type seedDebtRowJSON struct {
	FarmerID        int64  `json:"farmer_id"`
	TotalSeedAmount string `json:"total_seed_amount"`
	Deposit         string `json:"deposit"`
	SeedDebt        string `json:"seed_debt"`
}

// SeedDebtCommand previews or applies the backfill and returns the exit code.
func SeedDebtCommand(ctx context.Context, backfiller SeedDebtBackfiller, opts SeedDebtOptions) int {
	summary, err := backfiller.BackfillSeedDebt(ctx, opts.Apply)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "backfill seed-debt: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		rows := make([]seedDebtRowJSON, 0, len(summary.Rows))
		for _, row := range summary.Rows {
			rows = append(rows, seedDebtRowJSON{
				FarmerID:        row.FarmerID,
				TotalSeedAmount: row.TotalSeedAmount.StringFixed(2),
				Deposit:         row.Deposit.StringFixed(2),
				SeedDebt:        row.SeedDebt.StringFixed(2),
			})
		}
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{
			"applied": summary.Applied,
			"total":   summary.Total.StringFixed(2),
			"rows":    rows,
		}); err != nil {
			fmt.Fprintf(opts.Stderr, "encode summary: %v\n", err)
			return 1
		}
		return 0
	}

	if len(summary.Rows) == 0 {
		fmt.Fprintln(opts.Stdout, "no farmers need seed debt backfill")
		return 0
	}
	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FARMER\tSEED TOTAL\tDEPOSIT\tSEED DEBT")
	for _, row := range summary.Rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", row.FarmerID, row.TotalSeedAmount.StringFixed(2), row.Deposit.StringFixed(2), row.SeedDebt.StringFixed(2))
	}
	_ = tw.Flush()
	mode := "dry run, nothing written (pass -apply to persist)"
	if summary.Applied {
		mode = "applied"
	}
	fmt.Fprintf(opts.Stdout, "%d farmers, total seed debt %s: %s\n", len(summary.Rows), summary.Total.StringFixed(2), mode)
	return 0
}
