package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/farmlink/farmlink/internal/acquisition"
	"github.com/farmlink/farmlink/internal/deduction"
	"github.com/farmlink/farmlink/internal/ledger"
	"github.com/farmlink/farmlink/internal/money"
	"github.com/farmlink/farmlink/internal/notify"
	"github.com/farmlink/farmlink/internal/rbac"
	"github.com/farmlink/farmlink/internal/shared"
)

// maxKeyAttempts bounds business key regeneration after a collision.
const maxKeyAttempts = 5

// Dependencies collects the collaborators of Service.
type Dependencies struct {
	Repo      RepositoryPort
	Actors    rbac.Directory
	History   HistoryPort
	Audit     AuditPort
	Notifier  notify.Sink
	Locker    Locker
	Metrics   Observer
	Formatter *money.Formatter
	Logger    *slog.Logger
	Now       func() time.Time
	NewKey    shared.KeyGenerator
}

// Service orchestrates acquisition and settlement transitions.
type Service struct {
	repo      RepositoryPort
	actors    rbac.Directory
	history   HistoryPort
	audit     AuditPort
	notifier  notify.Sink
	locker    Locker
	metrics   Observer
	formatter *money.Formatter
	logger    *slog.Logger
	now       func() time.Time
	newKey    shared.KeyGenerator
	previews  singleflight.Group
}

// NewService constructs the settlement service.
func NewService(deps Dependencies) *Service {
	s := &Service{
		repo:      deps.Repo,
		actors:    deps.Actors,
		history:   deps.History,
		audit:     deps.Audit,
		notifier:  deps.Notifier,
		locker:    deps.Locker,
		metrics:   deps.Metrics,
		formatter: deps.Formatter,
		logger:    deps.Logger,
		now:       deps.Now,
		newKey:    deps.NewKey,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newKey == nil {
		s.newKey = shared.NewBusinessKey
	}
	if s.notifier == nil {
		s.notifier = notify.LogSink{Logger: s.logger}
	}
	return s
}

// CreateInput describes a new acquisition.
type CreateInput struct {
	FarmerID    int64
	WarehouseID int64
	acquisition.Measurement
}

// createTarget scopes a create key to the farmer and warehouse it books.
func createTarget(in CreateInput) string {
	return fmt.Sprintf("farmer-%d:warehouse-%d", in.FarmerID, in.WarehouseID)
}

// CreateResult identifies the records created for an acquisition.
type CreateResult struct {
	AcquisitionID string `json:"acquisitionId"`
	SettlementID  string `json:"settlementId"`
	NetWeight     string `json:"netWeight"`
	TotalAmount   string `json:"totalAmount"`
	IsAbnormal    bool   `json:"isAbnormal"`
}

// CreateAcquisition records a purchase together with its pending settlement
// and adds the purchase to the farmer and warehouse statistics.
func (s *Service) CreateAcquisition(ctx context.Context, actorID int64, key string, in CreateInput) (res CreateResult, err error) {
	defer func() { s.observe(TransitionCreate, err) }()
	actor, err := s.actors.Actor(ctx, actorID)
	if err != nil {
		return CreateResult{}, err
	}
	if err := rbac.Require(actor.CanCreateAcquisition(in.WarehouseID)); err != nil {
		return CreateResult{}, err
	}
	if err := in.Measurement.Validate(); err != nil {
		return CreateResult{}, err
	}
	release, err := s.lock(ctx, in.FarmerID)
	if err != nil {
		return CreateResult{}, err
	}
	defer release()

	var acq acquisition.Acquisition
	var stl Settlement
	var replayed bool
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		now := s.now().UTC()
		acqNo := s.newKey(shared.PrefixAcquisition, now)
		stlNo := s.newKey(shared.PrefixSettlement, now)
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			g := newGuard(tx, TransitionCreate, createTarget(in), key)
			var claimErr error
			if replayed, claimErr = g.claim(ctx, &res); claimErr != nil || replayed {
				return claimErr
			}
			farmer, err := tx.LoadFarmer(ctx, in.FarmerID, false)
			if err != nil {
				return g.abort(ctx, err)
			}
			if _, err := tx.LoadWarehouse(ctx, in.WarehouseID, false); err != nil {
				return g.abort(ctx, err)
			}
			acq = acquisition.Acquisition{
				ID:              uuid.New(),
				No:              acqNo,
				FarmerID:        in.FarmerID,
				WarehouseID:     in.WarehouseID,
				Measurement:     in.Measurement,
				EstimatedWeight: acquisition.EstimateYield(farmer.Acreage),
				Status:          acquisition.StatusConfirmed,
				CreatedBy:       actorID,
				Version:         1,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			acq.Recompute()
			stl = Settlement{
				ID:            uuid.New(),
				No:            stlNo,
				AcquisitionID: acq.ID,
				AcquisitionNo: acq.No,
				FarmerID:      acq.FarmerID,
				WarehouseID:   acq.WarehouseID,
				GrossAmount:   acq.TotalAmount,
				State:         StatePending,
				Version:       1,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			stl.resetDeductions()
			res = CreateResult{
				AcquisitionID: acq.No,
				SettlementID:  stl.No,
				NetWeight:     acq.NetWeight.StringFixed(2),
				TotalAmount:   acq.TotalAmount.StringFixed(2),
				IsAbnormal:    acq.IsAbnormal,
			}
			stats := footprint(acq)
			steps := []shared.Step{
				{
					Name:       "insert acquisition",
					Run:        func(ctx context.Context) error { return tx.InsertAcquisition(ctx, acq) },
					Compensate: func(ctx context.Context) error { return tx.DiscardAcquisition(ctx, acq.ID) },
				},
				{
					Name:       "insert settlement",
					Run:        func(ctx context.Context) error { return tx.InsertSettlement(ctx, stl) },
					Compensate: func(ctx context.Context) error { return tx.DiscardSettlement(ctx, stl.ID) },
				},
			}
			steps = append(steps, statisticsSteps(tx, acq.FarmerID, acq.WarehouseID, stats)...)
			steps = append(steps, g.complete(&res))
			return g.abort(ctx, s.run(ctx, tx, steps))
		})
		if !errors.Is(err, ErrDuplicateKey) {
			break
		}
		s.logger.Warn("business key collision, retrying", slog.String("acquisition", acqNo), slog.Int("attempt", attempt+1))
	}
	if err != nil {
		return CreateResult{}, err
	}
	if replayed {
		return res, nil
	}

	s.recordHistory(ctx, stl.ID, actorID, shared.ApprovalSubmit, "")
	s.recordAudit(ctx, actorID, "ACQUISITION_CREATE", "acquisition", acq.No, nil, map[string]any{
		"acquisition": acquisition.ViewOf(acq),
		"settlement":  ViewOf(stl),
	})
	s.notify(ctx, notify.Message{
		Roles:    []rbac.Role{rbac.RoleFinance},
		Type:     notify.TypeSettlementPendingAudit,
		Priority: notify.PriorityNormal,
		Title:    "Settlement awaiting audit",
		Body:     fmt.Sprintf("Settlement %s for acquisition %s, gross amount %s.", stl.No, acq.No, s.format(stl.GrossAmount)),
		Payload:  map[string]any{"settlementId": stl.No, "acquisitionId": acq.No, "isAbnormal": acq.IsAbnormal},
	})
	return res, nil
}

// PreviewResult is the deduction a settlement would receive, or received.
type PreviewResult struct {
	SettlementID  string        `json:"settlementId"`
	GrossAmount   string        `json:"grossAmount"`
	Deductions    DeductionView `json:"deductions"`
	ActualPayment string        `json:"actualPayment"`
	// Frozen is true once approval has fixed the breakdown.
	Frozen bool `json:"frozen"`
}

// PreviewDeduction runs the waterfall against the farmer's live balances for
// a settlement awaiting audit, or returns the frozen breakdown once approved.
// Concurrent previews of one settlement share a single read.
func (s *Service) PreviewDeduction(ctx context.Context, actorID int64, settlementNo string) (PreviewResult, error) {
	if _, err := s.actors.Actor(ctx, actorID); err != nil {
		return PreviewResult{}, err
	}
	v, err, _ := s.previews.Do(settlementNo, func() (any, error) {
		return s.preview(context.WithoutCancel(ctx), settlementNo)
	})
	if err != nil {
		return PreviewResult{}, err
	}
	return v.(PreviewResult), nil
}

func (s *Service) preview(ctx context.Context, settlementNo string) (PreviewResult, error) {
	stl, err := s.repo.GetSettlement(ctx, settlementNo)
	if err != nil {
		return PreviewResult{}, err
	}
	switch {
	case stl.State == StateDeleted:
		return PreviewResult{}, shared.ErrAlreadyDeleted
	case stl.State.Frozen():
		return PreviewResult{
			SettlementID:  stl.No,
			GrossAmount:   stl.GrossAmount.StringFixed(2),
			Deductions:    deductionView(stl.Deductions),
			ActualPayment: stl.ActualPayment.StringFixed(2),
			Frozen:        true,
		}, nil
	}
	farmer, err := s.repo.GetFarmer(ctx, stl.FarmerID)
	if err != nil {
		return PreviewResult{}, err
	}
	computed := deduction.Compute(stl.GrossAmount, farmer.Balances)
	return PreviewResult{
		SettlementID:  stl.No,
		GrossAmount:   computed.GrossAmount.StringFixed(2),
		Deductions:    deductionView(computed.Deductions),
		ActualPayment: computed.ActualPayment.StringFixed(2),
	}, nil
}

// AuditInput is an approve or reject decision.
type AuditInput struct {
	SettlementID string
	Approved     bool
	Remark       string
}

// AuditResult reports the outcome of an audit. Deductions are set on approval only.
type AuditResult struct {
	SettlementID  string         `json:"settlementId"`
	Status        State          `json:"status"`
	Deductions    *DeductionView `json:"deductions,omitempty"`
	ActualPayment string         `json:"actualPayment,omitempty"`
}

// Audit approves or rejects a pending settlement. Approval computes the
// deduction against the farmer's balances read inside the transaction,
// freezes it on the settlement and decrements the balances.
func (s *Service) Audit(ctx context.Context, actorID int64, key string, in AuditInput) (res AuditResult, err error) {
	transition := TransitionReject
	if in.Approved {
		transition = TransitionApprove
	}
	defer func() { s.observe(transition, err) }()

	actor, err := s.actors.Actor(ctx, actorID)
	if err != nil {
		return AuditResult{}, err
	}
	if err := rbac.Require(actor.CanAudit()); err != nil {
		return AuditResult{}, err
	}
	remark := strings.TrimSpace(in.Remark)
	if !in.Approved && remark == "" {
		return AuditResult{}, shared.ErrReasonRequired
	}
	current, err := s.repo.GetSettlement(ctx, in.SettlementID)
	if err != nil {
		return AuditResult{}, err
	}
	release, err := s.lock(ctx, current.FarmerID)
	if err != nil {
		return AuditResult{}, err
	}
	defer release()

	var before, after Settlement
	var acq acquisition.Acquisition
	var balancesBefore, balancesAfter deduction.Balances
	var replayed bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g := newGuard(tx, transition, in.SettlementID, key)
		var claimErr error
		if replayed, claimErr = g.claim(ctx, &res); claimErr != nil || replayed {
			return claimErr
		}
		stl, err := tx.LoadSettlement(ctx, in.SettlementID, true)
		if err != nil {
			return g.abort(ctx, err)
		}
		next, err := stl.State.Next(transition)
		if err != nil {
			return g.abort(ctx, err)
		}
		if acq, err = tx.LoadAcquisitionByID(ctx, stl.AcquisitionID, true); err != nil {
			return g.abort(ctx, err)
		}
		now := s.now().UTC()
		before, after = stl, stl
		after.State = next
		after.AuditedBy = actorID
		after.AuditedAt = &now
		after.AuditRemark = remark

		var steps []shared.Step
		if in.Approved {
			farmer, err := tx.LoadFarmer(ctx, stl.FarmerID, true)
			if err != nil {
				return g.abort(ctx, err)
			}
			computed := deduction.Compute(stl.GrossAmount, farmer.Balances)
			balancesBefore = farmer.Balances
			balancesAfter = farmer.Balances.Remaining(computed.Deductions)
			after.Deductions = computed.Deductions
			after.ActualPayment = computed.ActualPayment
			view := deductionView(computed.Deductions)
			res = AuditResult{SettlementID: stl.No, Status: next, Deductions: &view, ActualPayment: computed.ActualPayment.StringFixed(2)}
			steps = s.approveSteps(tx, before, &after, computed.Deductions, now)
		} else {
			after.RejectReason = remark
			rejectedAcq := acq
			rejectedAcq.Status = acquisition.StatusAuditRejected
			rejectedAcq.UpdatedBy = actorID
			rejectedAcq.UpdatedAt = now
			res = AuditResult{SettlementID: stl.No, Status: next}
			steps = []shared.Step{
				s.saveSettlementStep("reject settlement", tx, before, &after),
				s.saveAcquisitionStep("mark acquisition correctable", tx, acq, &rejectedAcq),
			}
		}
		steps = append(steps, g.complete(&res))
		return g.abort(ctx, s.run(ctx, tx, steps))
	})
	if err != nil || replayed {
		return res, err
	}

	if in.Approved {
		s.recordHistory(ctx, after.ID, actorID, shared.ApprovalApprove, remark)
		s.recordAudit(ctx, actorID, "SETTLEMENT_APPROVE", "settlement", after.No,
			map[string]any{"settlement": ViewOf(before), "balances": balancesBefore},
			map[string]any{"settlement": ViewOf(after), "balances": balancesAfter})
		priority := notify.PriorityNormal
		if acq.IsAbnormal {
			priority = notify.PriorityHigh
		}
		s.notify(ctx, notify.Message{
			Roles:    []rbac.Role{rbac.RoleCashier},
			Type:     notify.TypeSettlementApproved,
			Priority: priority,
			Title:    "Settlement ready for payment",
			Body: fmt.Sprintf("Settlement %s approved: gross %s, deductions %s, payable %s.",
				after.No, s.format(after.GrossAmount), s.format(after.Deductions.Total), s.format(after.ActualPayment)),
			Payload: map[string]any{"settlementId": after.No, "actualPayment": after.ActualPayment.StringFixed(2)},
		})
		return res, nil
	}
	s.recordHistory(ctx, after.ID, actorID, shared.ApprovalReject, remark)
	s.recordAudit(ctx, actorID, "SETTLEMENT_REJECT", "settlement", after.No,
		map[string]any{"settlement": ViewOf(before)}, map[string]any{"settlement": ViewOf(after)})
	s.notify(ctx, notify.Message{
		RecipientID: acq.CreatedBy,
		Type:        notify.TypeSettlementRejected,
		Priority:    notify.PriorityNormal,
		Title:       "Acquisition rejected at audit",
		Body:        fmt.Sprintf("Acquisition %s was rejected: %s", acq.No, remark),
		Payload:     map[string]any{"settlementId": after.No, "acquisitionId": acq.No},
	})
	return res, nil
}

// approveSteps freezes the deduction on the settlement before the farmer
// balances move, then marks the ledger applied. A store that cannot commit
// both atomically is left with an approved settlement lacking
// LedgerAppliedAt, which RepairLedger completes.
func (s *Service) approveSteps(tx TxRepository, before Settlement, after *Settlement, b deduction.Breakdown, now time.Time) []shared.Step {
	return []shared.Step{
		s.saveSettlementStep("freeze deduction", tx, before, after),
		{
			Name:       "apply deduction",
			Run:        func(ctx context.Context) error { return ledger.ApplyDeduction(ctx, tx, after.FarmerID, b) },
			Compensate: func(ctx context.Context) error { return ledger.RestoreDeduction(ctx, tx, after.FarmerID, b) },
		},
		{
			Name: "mark ledger applied",
			Run: func(ctx context.Context) error {
				after.LedgerAppliedAt = &now
				return s.saveSettlement(ctx, tx, after)
			},
		},
	}
}

// PaymentInput describes a payment transition.
type PaymentInput struct {
	SettlementID  string
	PaymentMethod string
	Remark        string
}

// PaymentResult reports a payment transition.
type PaymentResult struct {
	SettlementID  string `json:"settlementId"`
	Status        State  `json:"status"`
	ActualPayment string `json:"actualPayment"`
	PaymentMethod string `json:"paymentMethod"`
}

// MarkPaying records that a payout has started. No money moves.
func (s *Service) MarkPaying(ctx context.Context, actorID int64, key string, in PaymentInput) (res PaymentResult, err error) {
	defer func() { s.observe(TransitionMarkPaying, err) }()
	actor, err := s.actors.Actor(ctx, actorID)
	if err != nil {
		return PaymentResult{}, err
	}
	if err := rbac.Require(actor.CanMarkPaying()); err != nil {
		return PaymentResult{}, err
	}
	method := strings.TrimSpace(in.PaymentMethod)
	if method == "" {
		return PaymentResult{}, shared.Errorf(shared.CodeInvalidInput, "payment method is required")
	}

	var after Settlement
	var replayed bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g := newGuard(tx, TransitionMarkPaying, in.SettlementID, key)
		var claimErr error
		if replayed, claimErr = g.claim(ctx, &res); claimErr != nil || replayed {
			return claimErr
		}
		stl, err := tx.LoadSettlement(ctx, in.SettlementID, true)
		if err != nil {
			return g.abort(ctx, err)
		}
		next, err := stl.State.Next(TransitionMarkPaying)
		if err != nil {
			return g.abort(ctx, err)
		}
		now := s.now().UTC()
		after = stl
		after.State = next
		after.PaymentMethod = method
		after.PayingBy = actorID
		after.PayingAt = &now
		res = PaymentResult{SettlementID: stl.No, Status: next, ActualPayment: stl.ActualPayment.StringFixed(2), PaymentMethod: method}
		steps := []shared.Step{
			s.saveSettlementStep("mark paying", tx, stl, &after),
			g.complete(&res),
		}
		return g.abort(ctx, s.run(ctx, tx, steps))
	})
	if err != nil || replayed {
		return res, err
	}
	s.recordHistory(ctx, after.ID, actorID, shared.ApprovalPaying, method)
	s.recordAudit(ctx, actorID, "SETTLEMENT_PAYING", "settlement", after.No, nil, map[string]any{"paymentMethod": method})
	return res, nil
}

// CompletePayment closes a payout and adds it to the farmer's paid total.
// A settlement already paid is refused, so the total is incremented once.
func (s *Service) CompletePayment(ctx context.Context, actorID int64, key string, in PaymentInput) (res PaymentResult, err error) {
	defer func() { s.observe(TransitionCompletePayment, err) }()
	actor, err := s.actors.Actor(ctx, actorID)
	if err != nil {
		return PaymentResult{}, err
	}
	if err := rbac.Require(actor.CanCompletePayment()); err != nil {
		return PaymentResult{}, err
	}
	current, err := s.repo.GetSettlement(ctx, in.SettlementID)
	if err != nil {
		return PaymentResult{}, err
	}
	release, err := s.lock(ctx, current.FarmerID)
	if err != nil {
		return PaymentResult{}, err
	}
	defer release()

	var after Settlement
	var acq acquisition.Acquisition
	var replayed bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g := newGuard(tx, TransitionCompletePayment, in.SettlementID, key)
		var claimErr error
		if replayed, claimErr = g.claim(ctx, &res); claimErr != nil || replayed {
			return claimErr
		}
		stl, err := tx.LoadSettlement(ctx, in.SettlementID, true)
		if err != nil {
			return g.abort(ctx, err)
		}
		next, err := stl.State.Next(TransitionCompletePayment)
		if err != nil {
			return g.abort(ctx, err)
		}
		if acq, err = tx.LoadAcquisitionByID(ctx, stl.AcquisitionID, false); err != nil {
			return g.abort(ctx, err)
		}
		now := s.now().UTC()
		after = stl
		after.State = next
		if method := strings.TrimSpace(in.PaymentMethod); method != "" {
			after.PaymentMethod = method
		}
		after.PaymentRemark = strings.TrimSpace(in.Remark)
		after.PaidBy = actorID
		after.PaidAt = &now
		res = PaymentResult{SettlementID: stl.No, Status: next, ActualPayment: stl.ActualPayment.StringFixed(2), PaymentMethod: after.PaymentMethod}
		paid := stl.ActualPayment
		steps := []shared.Step{
			s.saveSettlementStep("complete payment", tx, stl, &after),
			{
				Name:       "record paid amount",
				Run:        func(ctx context.Context) error { return ledger.RecordPayment(ctx, tx, stl.FarmerID, paid) },
				Compensate: func(ctx context.Context) error { return ledger.RecordPayment(ctx, tx, stl.FarmerID, paid.Neg()) },
			},
			g.complete(&res),
		}
		return g.abort(ctx, s.run(ctx, tx, steps))
	})
	if err != nil || replayed {
		return res, err
	}
	s.recordHistory(ctx, after.ID, actorID, shared.ApprovalPaid, after.PaymentRemark)
	s.recordAudit(ctx, actorID, "SETTLEMENT_PAID", "settlement", after.No,
		map[string]any{"state": current.State}, map[string]any{"state": after.State, "paid": after.ActualPayment.StringFixed(2), "paymentMethod": after.PaymentMethod})
	s.notify(ctx, notify.Message{
		RecipientID: acq.CreatedBy,
		Type:        notify.TypeSettlementPaid,
		Priority:    notify.PriorityNormal,
		Title:       "Settlement paid",
		Body:        fmt.Sprintf("Settlement %s paid %s via %s.", after.No, s.format(after.ActualPayment), after.PaymentMethod),
		Payload:     map[string]any{"settlementId": after.No},
	})
	return res, nil
}

// CorrectResult reports the recomputed acquisition.
type CorrectResult struct {
	AcquisitionID string `json:"acquisitionId"`
	SettlementID  string `json:"settlementId"`
	NetWeight     string `json:"netWeight"`
	TotalAmount   string `json:"totalAmount"`
	Status        State  `json:"status"`
}

// CorrectAcquisition amends a rejected acquisition and resubmits its
// settlement. The signed weight and amount change is added to the farmer and
// warehouse statistics.
func (s *Service) CorrectAcquisition(ctx context.Context, actorID int64, key, acquisitionNo string, c acquisition.Correction) (res CorrectResult, err error) {
	defer func() { s.observe(TransitionResubmit, err) }()
	actor, err := s.actors.Actor(ctx, actorID)
	if err != nil {
		return CorrectResult{}, err
	}
	if c.IsEmpty() {
		return CorrectResult{}, shared.Errorf(shared.CodeInvalidInput, "nothing to correct")
	}
	current, err := s.repo.GetAcquisition(ctx, acquisitionNo)
	if err != nil {
		return CorrectResult{}, err
	}
	if err := rbac.Require(actor.CanCorrect(current.CreatedBy)); err != nil {
		return CorrectResult{}, err
	}
	if err := c.ApplyTo(current.Measurement).Validate(); err != nil {
		return CorrectResult{}, err
	}
	release, err := s.lock(ctx, current.FarmerID)
	if err != nil {
		return CorrectResult{}, err
	}
	defer release()

	var beforeAcq, afterAcq acquisition.Acquisition
	var afterStl Settlement
	var replayed bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g := newGuard(tx, TransitionResubmit, acquisitionNo, key)
		var claimErr error
		if replayed, claimErr = g.claim(ctx, &res); claimErr != nil || replayed {
			return claimErr
		}
		acq, err := tx.LoadAcquisition(ctx, acquisitionNo, true)
		if err != nil {
			return g.abort(ctx, err)
		}
		switch acq.Status {
		case acquisition.StatusDeleted:
			return g.abort(ctx, shared.ErrAlreadyDeleted)
		case acquisition.StatusAuditRejected:
		default:
			return g.abort(ctx, shared.ErrNotRejected)
		}
		stl, err := tx.LoadSettlementByAcquisition(ctx, acq.ID, true)
		if err != nil {
			return g.abort(ctx, err)
		}
		next, err := stl.State.Next(TransitionResubmit)
		if err != nil {
			return g.abort(ctx, err)
		}
		now := s.now().UTC()
		beforeAcq, afterAcq = acq, acq
		afterAcq.Measurement = c.ApplyTo(acq.Measurement)
		if err := afterAcq.Measurement.Validate(); err != nil {
			return g.abort(ctx, err)
		}
		afterAcq.Recompute()
		afterAcq.Status = acquisition.StatusConfirmed
		afterAcq.UpdatedBy = actorID
		afterAcq.UpdatedAt = now

		afterStl = stl
		afterStl.State = next
		afterStl.GrossAmount = afterAcq.TotalAmount
		afterStl.resetDeductions()
		afterStl.AuditedBy = 0
		afterStl.AuditedAt = nil
		afterStl.AuditRemark = ""

		delta := ledger.StatsDelta{
			Weight: afterAcq.NetWeight.Sub(beforeAcq.NetWeight),
			Amount: afterAcq.TotalAmount.Sub(beforeAcq.TotalAmount),
		}
		res = CorrectResult{
			AcquisitionID: afterAcq.No,
			SettlementID:  afterStl.No,
			NetWeight:     afterAcq.NetWeight.StringFixed(2),
			TotalAmount:   afterAcq.TotalAmount.StringFixed(2),
			Status:        next,
		}
		steps := []shared.Step{
			s.saveAcquisitionStep("update acquisition", tx, acq, &afterAcq),
			s.saveSettlementStep("resubmit settlement", tx, stl, &afterStl),
		}
		if !delta.IsZero() {
			steps = append(steps, statisticsSteps(tx, acq.FarmerID, acq.WarehouseID, delta)...)
		}
		steps = append(steps, g.complete(&res))
		return g.abort(ctx, s.run(ctx, tx, steps))
	})
	if err != nil || replayed {
		return res, err
	}
	s.recordHistory(ctx, afterStl.ID, actorID, shared.ApprovalResubmit, "")
	s.recordAudit(ctx, actorID, "ACQUISITION_CORRECT", "acquisition", afterAcq.No,
		map[string]any{"acquisition": acquisition.ViewOf(beforeAcq)}, map[string]any{"acquisition": acquisition.ViewOf(afterAcq)})
	s.notify(ctx, notify.Message{
		Roles:    []rbac.Role{rbac.RoleFinance},
		Type:     notify.TypeSettlementPendingAudit,
		Priority: notify.PriorityNormal,
		Title:    "Corrected settlement awaiting audit",
		Body:     fmt.Sprintf("Settlement %s was corrected, gross amount %s.", afterStl.No, s.format(afterStl.GrossAmount)),
		Payload:  map[string]any{"settlementId": afterStl.No, "acquisitionId": afterAcq.No},
	})
	return res, nil
}

// DeleteResult reports a soft delete.
type DeleteResult struct {
	AcquisitionID string `json:"acquisitionId"`
	SettlementID  string `json:"settlementId"`
	Status        State  `json:"status"`
}

// DeleteAcquisition soft-deletes an acquisition and its settlement and
// reverses the statistics the acquisition added. Deductions already applied
// to the farmer by an approval are restored. Paid settlements are refused.
func (s *Service) DeleteAcquisition(ctx context.Context, actorID int64, key, acquisitionNo, reason string) (res DeleteResult, err error) {
	defer func() { s.observe(TransitionDelete, err) }()
	actor, err := s.actors.Actor(ctx, actorID)
	if err != nil {
		return DeleteResult{}, err
	}
	if err := rbac.Require(actor.CanDelete()); err != nil {
		return DeleteResult{}, err
	}
	if err := acquisition.ValidateDeleteReason(reason); err != nil {
		return DeleteResult{}, err
	}
	reason = strings.TrimSpace(reason)
	current, err := s.repo.GetAcquisition(ctx, acquisitionNo)
	if err != nil {
		return DeleteResult{}, err
	}
	release, err := s.lock(ctx, current.FarmerID)
	if err != nil {
		return DeleteResult{}, err
	}
	defer release()

	var beforeAcq, afterAcq acquisition.Acquisition
	var beforeStl, afterStl Settlement
	var replayed bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g := newGuard(tx, TransitionDelete, acquisitionNo, key)
		var claimErr error
		if replayed, claimErr = g.claim(ctx, &res); claimErr != nil || replayed {
			return claimErr
		}
		acq, err := tx.LoadAcquisition(ctx, acquisitionNo, true)
		if err != nil {
			return g.abort(ctx, err)
		}
		if acq.Status == acquisition.StatusDeleted {
			return g.abort(ctx, shared.ErrAlreadyDeleted)
		}
		stl, err := tx.LoadSettlementByAcquisition(ctx, acq.ID, true)
		if err != nil {
			return g.abort(ctx, err)
		}
		next, err := stl.State.Next(TransitionDelete)
		if err != nil {
			return g.abort(ctx, err)
		}
		now := s.now().UTC()
		beforeAcq, afterAcq = acq, acq
		afterAcq.Status = acquisition.StatusDeleted
		afterAcq.DeletedBy = actorID
		afterAcq.DeletedAt = &now
		afterAcq.DeleteReason = reason
		afterAcq.UpdatedAt = now

		beforeStl, afterStl = stl, stl
		afterStl.State = next
		afterStl.DeletedFrom = stl.State

		stats := footprint(acq)
		res = DeleteResult{AcquisitionID: acq.No, SettlementID: stl.No, Status: next}
		steps := []shared.Step{
			s.saveAcquisitionStep("delete acquisition", tx, acq, &afterAcq),
			s.saveSettlementStep("delete settlement", tx, stl, &afterStl),
		}
		steps = append(steps, statisticsSteps(tx, acq.FarmerID, acq.WarehouseID, stats.Negate())...)
		if stl.State.Frozen() && stl.LedgerAppliedAt != nil {
			frozen := stl.Deductions
			steps = append(steps, shared.Step{
				Name:       "restore deduction",
				Run:        func(ctx context.Context) error { return ledger.RestoreDeduction(ctx, tx, stl.FarmerID, frozen) },
				Compensate: func(ctx context.Context) error { return ledger.ApplyDeduction(ctx, tx, stl.FarmerID, frozen) },
			})
		}
		steps = append(steps, g.complete(&res))
		return g.abort(ctx, s.run(ctx, tx, steps))
	})
	if err != nil || replayed {
		return res, err
	}
	s.recordHistory(ctx, afterStl.ID, actorID, shared.ApprovalDelete, reason)
	s.recordAudit(ctx, actorID, "ACQUISITION_DELETE", "acquisition", afterAcq.No,
		map[string]any{"acquisition": acquisition.ViewOf(beforeAcq), "settlement": ViewOf(beforeStl)},
		map[string]any{"acquisition": acquisition.ViewOf(afterAcq), "settlement": ViewOf(afterStl), "reason": reason})
	s.notify(ctx, notify.Message{
		RecipientID: afterAcq.CreatedBy,
		Type:        notify.TypeAcquisitionDeleted,
		Priority:    notify.PriorityNormal,
		Title:       "Acquisition deleted",
		Body:        fmt.Sprintf("Acquisition %s was deleted: %s", afterAcq.No, reason),
		Payload:     map[string]any{"acquisitionId": afterAcq.No, "settlementId": afterStl.No},
	})
	return res, nil
}

// Get returns a settlement.
func (s *Service) Get(ctx context.Context, actorID int64, settlementNo string) (Settlement, error) {
	if _, err := s.actors.Actor(ctx, actorID); err != nil {
		return Settlement{}, err
	}
	return s.repo.GetSettlement(ctx, settlementNo)
}

// GetAcquisition returns an acquisition.
func (s *Service) GetAcquisition(ctx context.Context, actorID int64, acquisitionNo string) (acquisition.Acquisition, error) {
	if _, err := s.actors.Actor(ctx, actorID); err != nil {
		return acquisition.Acquisition{}, err
	}
	return s.repo.GetAcquisition(ctx, acquisitionNo)
}

// History lists the approval trail of a settlement.
func (s *Service) History(ctx context.Context, actorID int64, settlementNo string) ([]shared.ApprovalLog, error) {
	if _, err := s.actors.Actor(ctx, actorID); err != nil {
		return nil, err
	}
	stl, err := s.repo.GetSettlement(ctx, settlementNo)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, nil
	}
	return s.history.List(ctx, Module, stl.ID)
}

func (s *Service) run(ctx context.Context, tx TxRepository, steps []shared.Step) error {
	return shared.Pipeline{Steps: steps, Atomic: tx.Atomic()}.Run(ctx)
}
