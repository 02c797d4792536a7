package ledger

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink/internal/rbac"
	"github.com/farmlink/farmlink/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	GetFarmer(ctx context.Context, id int64) (Farmer, error)
}

// Locker serialises writes per farmer.
type Locker interface {
	Acquire(ctx context.Context, farmerID int64) (func(), error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes farmer balances and debt issuance.
type Service struct {
	repo   RepositoryPort
	actors rbac.Directory
	locker Locker
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, actors rbac.Directory, locker Locker, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, actors: actors, locker: locker, audit: audit, logger: logger}
}

// GetBalances returns the farmer's balances and statistics.
func (s *Service) GetBalances(ctx context.Context, actorID, farmerID int64) (Farmer, error) {
	actor, err := s.actors.Actor(ctx, actorID)
	if err != nil {
		return Farmer{}, err
	}
	if err := rbac.Require(actor.CanViewLedger()); err != nil {
		return Farmer{}, err
	}
	return s.repo.GetFarmer(ctx, farmerID)
}

// DistributionInput describes a seed, input or cash advance issued to a farmer.
type DistributionInput struct {
	FarmerID int64
	Kind     DistributionKind
	Amount   decimal.Decimal
	Note     string
}

// RecordDistribution increases the farmer's matching debt.
func (s *Service) RecordDistribution(ctx context.Context, actorID int64, in DistributionInput) (Farmer, error) {
	actor, err := s.actors.Actor(ctx, actorID)
	if err != nil {
		return Farmer{}, err
	}
	if err := rbac.Require(actor.CanIssueDebt()); err != nil {
		return Farmer{}, err
	}
	if !in.Amount.IsPositive() {
		return Farmer{}, shared.Errorf(shared.CodeInvalidInput, "amount must be positive")
	}
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, in.FarmerID)
		if err != nil {
			return Farmer{}, err
		}
		defer release()
	}
	var before, after Farmer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if before, err = tx.LoadFarmer(ctx, in.FarmerID, true); err != nil {
			return err
		}
		if err := RecordDistribution(ctx, tx, in.FarmerID, in.Kind, in.Amount); err != nil {
			return err
		}
		after, err = tx.LoadFarmer(ctx, in.FarmerID, false)
		return err
	})
	if err != nil {
		return Farmer{}, err
	}
	s.recordAudit(ctx, actorID, "LEDGER_"+string(in.Kind), in.FarmerID, before.Balances, after.Balances, in)
	return after, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, farmerID int64, before, after any, in DistributionInput) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "farmer",
		EntityID: strconv.FormatInt(farmerID, 10),
		Before:   map[string]any{"balances": before},
		After:    map[string]any{"balances": after},
		Meta:     map[string]any{"amount": in.Amount.StringFixed(2), "note": in.Note},
	})
	if err != nil {
		s.logger.Warn("ledger audit log", slog.Any("error", err))
	}
}
