package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/farmlink/farmlink/internal/acquisition"
	"github.com/farmlink/farmlink/internal/ledger"
	"github.com/farmlink/farmlink/internal/shared"
)

// ErrDuplicateKey reports a business key collision on insert.
var ErrDuplicateKey = errors.New("settlement: business key already taken")

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSettlement(ctx context.Context, no string) (Settlement, error)
	GetAcquisition(ctx context.Context, no string) (acquisition.Acquisition, error)
	GetFarmer(ctx context.Context, id int64) (ledger.Farmer, error)
	ListUnapplied(ctx context.Context, limit int) ([]Settlement, error)
	ListImbalanced(ctx context.Context, limit int) ([]Settlement, error)
}

// TxRepository exposes transactional operations. Update methods write only
// when the stored version equals the given one and then increment it;
// otherwise they return db.ErrConflict.
type TxRepository interface {
	ledger.Tx
	// Atomic reports whether a failed transaction discards every write made
	// through it. Non-atomic stores get compensating writes instead.
	Atomic() bool
	InsertAcquisition(ctx context.Context, a acquisition.Acquisition) error
	DiscardAcquisition(ctx context.Context, id uuid.UUID) error
	UpdateAcquisition(ctx context.Context, a acquisition.Acquisition) error
	LoadAcquisition(ctx context.Context, no string, forUpdate bool) (acquisition.Acquisition, error)
	LoadAcquisitionByID(ctx context.Context, id uuid.UUID, forUpdate bool) (acquisition.Acquisition, error)
	InsertSettlement(ctx context.Context, s Settlement) error
	DiscardSettlement(ctx context.Context, id uuid.UUID) error
	UpdateSettlement(ctx context.Context, s Settlement) error
	LoadSettlement(ctx context.Context, no string, forUpdate bool) (Settlement, error)
	LoadSettlementByAcquisition(ctx context.Context, acquisitionID uuid.UUID, forUpdate bool) (Settlement, error)
	ClaimIdempotency(ctx context.Context, key string) ([]byte, error)
	CompleteIdempotency(ctx context.Context, key string, result []byte) error
	ReleaseIdempotency(ctx context.Context, key string) error
}

// HistoryPort records and lists approval history rows.
type HistoryPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Locker serialises writes touching one farmer's ledger.
type Locker interface {
	Acquire(ctx context.Context, farmerID int64) (func(), error)
}

// Observer counts transitions by outcome.
type Observer interface {
	ObserveTransition(transition, result string)
}
