package settlement

import (
	"context"
	"log/slog"

	"github.com/farmlink/farmlink/internal/ledger"
	"github.com/farmlink/farmlink/internal/shared"
)

// RepairSummary reports a ledger integrity pass.
type RepairSummary struct {
	Applied    []string `json:"applied"`
	Imbalanced []string `json:"imbalanced"`
}

// RepairLedger applies the frozen deduction of approved settlements whose
// ledger write never landed, and reports settlements whose gross differs from
// deductions plus payment. Each deduction is applied at most once.
func (s *Service) RepairLedger(ctx context.Context, limit int) (RepairSummary, error) {
	var summary RepairSummary
	pending, err := s.repo.ListUnapplied(ctx, limit)
	if err != nil {
		return summary, err
	}
	for _, stl := range pending {
		applied, err := s.applyFrozen(ctx, stl)
		if err != nil {
			s.logger.Error("repair ledger", slog.String("settlement", stl.No), slog.Any("error", err))
			continue
		}
		if applied {
			summary.Applied = append(summary.Applied, stl.No)
		}
	}
	imbalanced, err := s.repo.ListImbalanced(ctx, limit)
	if err != nil {
		return summary, err
	}
	for _, stl := range imbalanced {
		summary.Imbalanced = append(summary.Imbalanced, stl.No)
	}
	if len(summary.Applied) > 0 || len(summary.Imbalanced) > 0 {
		s.logger.Warn("ledger integrity findings", slog.Int("applied", len(summary.Applied)), slog.Int("imbalanced", len(summary.Imbalanced)))
	}
	return summary, nil
}

func (s *Service) applyFrozen(ctx context.Context, candidate Settlement) (bool, error) {
	release, err := s.lock(ctx, candidate.FarmerID)
	if err != nil {
		return false, err
	}
	defer release()

	var applied bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		applied = false
		stl, err := tx.LoadSettlement(ctx, candidate.No, true)
		if err != nil {
			return err
		}
		if !stl.State.Frozen() || stl.LedgerAppliedAt != nil {
			return nil
		}
		before, after := stl, stl
		now := s.now().UTC()
		frozen := stl.Deductions
		steps := []shared.Step{
			{
				Name:       "apply deduction",
				Run:        func(ctx context.Context) error { return ledger.ApplyDeduction(ctx, tx, stl.FarmerID, frozen) },
				Compensate: func(ctx context.Context) error { return ledger.RestoreDeduction(ctx, tx, stl.FarmerID, frozen) },
			},
			s.saveSettlementStep("mark ledger applied", tx, before, &after),
		}
		after.LedgerAppliedAt = &now
		if err := s.run(ctx, tx, steps); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err == nil && applied {
		s.recordAudit(ctx, 0, "LEDGER_REPAIR", "settlement", candidate.No, nil, map[string]any{"deductions": deductionView(candidate.Deductions)})
	}
	return applied, err
}
