package settlement

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink/internal/acquisition"
	"github.com/farmlink/farmlink/internal/ledger"
	"github.com/farmlink/farmlink/internal/notify"
	"github.com/farmlink/farmlink/internal/shared"
)

// saveSettlement writes s under its current version and advances it.
func (s *Service) saveSettlement(ctx context.Context, tx TxRepository, stl *Settlement) error {
	stl.UpdatedAt = s.now().UTC()
	if err := tx.UpdateSettlement(ctx, *stl); err != nil {
		return err
	}
	stl.Version++
	return nil
}

func (s *Service) saveAcquisition(ctx context.Context, tx TxRepository, acq *acquisition.Acquisition) error {
	if err := tx.UpdateAcquisition(ctx, *acq); err != nil {
		return err
	}
	acq.Version++
	return nil
}

// saveSettlementStep persists after; its compensation writes before back
// over whatever version is current.
func (s *Service) saveSettlementStep(name string, tx TxRepository, before Settlement, after *Settlement) shared.Step {
	return shared.Step{
		Name: name,
		Run:  func(ctx context.Context) error { return s.saveSettlement(ctx, tx, after) },
		Compensate: func(ctx context.Context) error {
			current, err := tx.LoadSettlement(ctx, before.No, true)
			if err != nil {
				return err
			}
			restored := before
			restored.Version = current.Version
			return tx.UpdateSettlement(ctx, restored)
		},
	}
}

func (s *Service) saveAcquisitionStep(name string, tx TxRepository, before acquisition.Acquisition, after *acquisition.Acquisition) shared.Step {
	return shared.Step{
		Name: name,
		Run:  func(ctx context.Context) error { return s.saveAcquisition(ctx, tx, after) },
		Compensate: func(ctx context.Context) error {
			current, err := tx.LoadAcquisitionByID(ctx, before.ID, true)
			if err != nil {
				return err
			}
			restored := before
			restored.Version = current.Version
			return tx.UpdateAcquisition(ctx, restored)
		},
	}
}

// statisticsSteps adds delta to the farmer and then the warehouse, one write
// per step so a failed warehouse write compensates the farmer write.
func statisticsSteps(tx TxRepository, farmerID, warehouseID int64, delta ledger.StatsDelta) []shared.Step {
	step := func(name string, account ledger.Account) shared.Step {
		return shared.Step{
			Name:       name,
			Run:        func(ctx context.Context) error { return ledger.AddStatistics(ctx, tx, account, delta) },
			Compensate: func(ctx context.Context) error { return ledger.AddStatistics(ctx, tx, account, delta.Negate()) },
		}
	}
	return []shared.Step{
		step("farmer statistics", ledger.FarmerAccount(farmerID)),
		step("warehouse statistics", ledger.WarehouseAccount(warehouseID)),
	}
}

func (s *Service) lock(ctx context.Context, farmerID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Acquire(ctx, farmerID)
}

func (s *Service) observe(transition Transition, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(shared.CodeOf(err))
	}
	s.metrics.ObserveTransition(string(transition), result)
}

func (s *Service) format(d decimal.Decimal) string {
	if s.formatter == nil {
		return d.StringFixed(2)
	}
	return s.formatter.Format(d)
}

// The writes below happen after commit. Failures are logged and never undo
// the transition.

func (s *Service) recordHistory(ctx context.Context, ref uuid.UUID, actorID int64, action shared.ApprovalAction, note string) {
	if s.history == nil {
		return
	}
	log := shared.ApprovalLog{
		Module:  Module,
		RefID:   ref,
		ActorID: actorID,
		Action:  action,
		Note:    note,
		At:      s.now().UTC(),
	}
	if err := s.history.Record(ctx, log); err != nil {
		s.logger.Warn("record approval history", slog.String("action", string(action)), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity, entityID string, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Before:   before,
		After:    after,
		At:       s.now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, msg notify.Message) {
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Warn("send notification", slog.String("type", string(msg.Type)), slog.Any("error", err))
	}
}
