package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farmlink/farmlink/internal/acquisition"
	"github.com/farmlink/farmlink/internal/ledger"
	"github.com/farmlink/farmlink/internal/platform/db"
	"github.com/farmlink/farmlink/internal/shared"
)

// Repository provides PostgreSQL persistence for acquisitions and settlements.
type Repository struct {
	pool        *pgxpool.Pool
	idem        *shared.IdempotencyStore
	maxAttempts int
}

// NewRepository constructs a repository. maxAttempts bounds conflict retries.
func NewRepository(pool *pgxpool.Pool, idem *shared.IdempotencyStore, maxAttempts int) *Repository {
	return &Repository{pool: pool, idem: idem, maxAttempts: maxAttempts}
}

// WithTx runs fn inside a retried repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithRetryTx(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{PGTx: ledger.NewPGTx(tx), tx: tx, idem: r.idem})
	})
}

// GetSettlement reads a settlement by business key.
func (r *Repository) GetSettlement(ctx context.Context, no string) (Settlement, error) {
	return scanSettlement(r.pool.QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlements s
JOIN acquisitions a ON a.id = s.acquisition_id WHERE s.no=$1`, no))
}

// GetAcquisition reads an acquisition by business key.
func (r *Repository) GetAcquisition(ctx context.Context, no string) (acquisition.Acquisition, error) {
	return scanAcquisition(r.pool.QueryRow(ctx, `SELECT `+acquisitionColumns+` FROM acquisitions WHERE no=$1`, no))
}

// GetFarmer reads a farmer's balances.
func (r *Repository) GetFarmer(ctx context.Context, id int64) (ledger.Farmer, error) {
	return ledger.NewRepository(r.pool, r.maxAttempts).GetFarmer(ctx, id)
}

// ListUnapplied returns settlements past approval whose deduction never
// reached the farmer ledger.
func (r *Repository) ListUnapplied(ctx context.Context, limit int) ([]Settlement, error) {
	return r.list(ctx, `SELECT `+settlementColumns+` FROM settlements s
JOIN acquisitions a ON a.id = s.acquisition_id
WHERE s.state IN ('approved', 'paying', 'completed') AND s.ledger_applied_at IS NULL
ORDER BY s.created_at LIMIT $1`, limit)
}

// ListImbalanced returns live settlements whose gross differs from total
// deduction plus actual payment.
func (r *Repository) ListImbalanced(ctx context.Context, limit int) ([]Settlement, error) {
	return r.list(ctx, `SELECT `+settlementColumns+` FROM settlements s
JOIN acquisitions a ON a.id = s.acquisition_id
WHERE s.state <> 'deleted' AND s.gross_amount <> s.total_deduction + s.actual_payment
ORDER BY s.created_at LIMIT $1`, limit)
}

func (r *Repository) list(ctx context.Context, sql string, limit int) ([]Settlement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type pgTx struct {
	*ledger.PGTx
	tx   pgx.Tx
	idem *shared.IdempotencyStore
}

func (t *pgTx) Atomic() bool { return true }

const acquisitionColumns = `id, no, farmer_id, warehouse_id, gross_weight, tare_weight, moisture_rate, moisture_weight,
net_weight, unit_price, total_amount, estimated_weight, is_abnormal, status, created_by, updated_by, deleted_by,
delete_reason, deleted_at, version, created_at, updated_at`

func scanAcquisition(row pgx.Row) (acquisition.Acquisition, error) {
	var a acquisition.Acquisition
	var status string
	var updatedBy, deletedBy *int64
	err := row.Scan(&a.ID, &a.No, &a.FarmerID, &a.WarehouseID, &a.GrossWeight, &a.TareWeight, &a.MoistureRate,
		&a.MoistureWeight, &a.NetWeight, &a.UnitPrice, &a.TotalAmount, &a.EstimatedWeight, &a.IsAbnormal,
		&status, &a.CreatedBy, &updatedBy, &deletedBy, &a.DeleteReason, &a.DeletedAt, &a.Version,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return acquisition.Acquisition{}, shared.ErrAcquisitionNotFound
		}
		return acquisition.Acquisition{}, err
	}
	a.Status = acquisition.Status(status)
	a.UpdatedBy = deref(updatedBy)
	a.DeletedBy = deref(deletedBy)
	return a, nil
}

func (t *pgTx) InsertAcquisition(ctx context.Context, a acquisition.Acquisition) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO acquisitions (id, no, farmer_id, warehouse_id, gross_weight, tare_weight,
moisture_rate, moisture_weight, net_weight, unit_price, total_amount, estimated_weight, is_abnormal, status,
created_by, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,1,$16,$16)`,
		a.ID, a.No, a.FarmerID, a.WarehouseID, a.GrossWeight, a.TareWeight, a.MoistureRate, a.MoistureWeight,
		a.NetWeight, a.UnitPrice, a.TotalAmount, a.EstimatedWeight, a.IsAbnormal, string(a.Status), a.CreatedBy, a.CreatedAt)
	if db.IsUniqueViolation(err, "acquisitions_no_key") {
		return ErrDuplicateKey
	}
	return err
}

func (t *pgTx) DiscardAcquisition(ctx context.Context, id uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM acquisitions WHERE id=$1`, id)
	return err
}

func (t *pgTx) UpdateAcquisition(ctx context.Context, a acquisition.Acquisition) error {
	tag, err := t.tx.Exec(ctx, `UPDATE acquisitions SET gross_weight=$3, tare_weight=$4, moisture_rate=$5,
moisture_weight=$6, net_weight=$7, unit_price=$8, total_amount=$9, is_abnormal=$10, status=$11, updated_by=$12,
deleted_by=$13, delete_reason=$14, deleted_at=$15, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$2`,
		a.ID, a.Version, a.GrossWeight, a.TareWeight, a.MoistureRate, a.MoistureWeight, a.NetWeight, a.UnitPrice,
		a.TotalAmount, a.IsAbnormal, string(a.Status), nullable(a.UpdatedBy), nullable(a.DeletedBy), a.DeleteReason, a.DeletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrConflict
	}
	return nil
}

func (t *pgTx) LoadAcquisition(ctx context.Context, no string, forUpdate bool) (acquisition.Acquisition, error) {
	return scanAcquisition(t.tx.QueryRow(ctx, `SELECT `+acquisitionColumns+` FROM acquisitions WHERE no=$1`+lockClause(forUpdate), no))
}

func (t *pgTx) LoadAcquisitionByID(ctx context.Context, id uuid.UUID, forUpdate bool) (acquisition.Acquisition, error) {
	return scanAcquisition(t.tx.QueryRow(ctx, `SELECT `+acquisitionColumns+` FROM acquisitions WHERE id=$1`+lockClause(forUpdate), id))
}

const settlementColumns = `s.id, s.no, s.acquisition_id, a.no, s.farmer_id, s.warehouse_id, s.gross_amount,
s.advance_deduction, s.seed_deduction, s.agricultural_deduction, s.total_deduction, s.actual_payment, s.state,
s.deleted_from, s.audited_by, s.audited_at, s.audit_remark, s.reject_reason, s.payment_method, s.payment_remark,
s.paying_by, s.paying_at, s.paid_by, s.paid_at, s.ledger_applied_at, s.version, s.created_at, s.updated_at`

func scanSettlement(row pgx.Row) (Settlement, error) {
	var s Settlement
	var state, deletedFrom string
	var auditedBy, payingBy, paidBy *int64
	err := row.Scan(&s.ID, &s.No, &s.AcquisitionID, &s.AcquisitionNo, &s.FarmerID, &s.WarehouseID, &s.GrossAmount,
		&s.Deductions.Advance, &s.Deductions.Seed, &s.Deductions.Agricultural, &s.Deductions.Total, &s.ActualPayment,
		&state, &deletedFrom, &auditedBy, &s.AuditedAt, &s.AuditRemark, &s.RejectReason, &s.PaymentMethod,
		&s.PaymentRemark, &payingBy, &s.PayingAt, &paidBy, &s.PaidAt, &s.LedgerAppliedAt, &s.Version,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settlement{}, shared.ErrSettlementNotFound
		}
		return Settlement{}, err
	}
	s.State = State(state)
	s.DeletedFrom = State(deletedFrom)
	s.AuditedBy = deref(auditedBy)
	s.PayingBy = deref(payingBy)
	s.PaidBy = deref(paidBy)
	return s, nil
}

func (t *pgTx) InsertSettlement(ctx context.Context, s Settlement) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO settlements (id, no, acquisition_id, farmer_id, warehouse_id, gross_amount,
advance_deduction, seed_deduction, agricultural_deduction, total_deduction, actual_payment, state, version,
created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,1,$13,$13)`,
		s.ID, s.No, s.AcquisitionID, s.FarmerID, s.WarehouseID, s.GrossAmount, s.Deductions.Advance,
		s.Deductions.Seed, s.Deductions.Agricultural, s.Deductions.Total, s.ActualPayment, string(s.State), s.CreatedAt)
	if db.IsUniqueViolation(err, "settlements_no_key") {
		return ErrDuplicateKey
	}
	return err
}

func (t *pgTx) DiscardSettlement(ctx context.Context, id uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM settlements WHERE id=$1`, id)
	return err
}

func (t *pgTx) UpdateSettlement(ctx context.Context, s Settlement) error {
	tag, err := t.tx.Exec(ctx, `UPDATE settlements SET gross_amount=$3, advance_deduction=$4, seed_deduction=$5,
agricultural_deduction=$6, total_deduction=$7, actual_payment=$8, state=$9, deleted_from=$10, audited_by=$11,
audited_at=$12, audit_remark=$13, reject_reason=$14, payment_method=$15, payment_remark=$16, paying_by=$17,
paying_at=$18, paid_by=$19, paid_at=$20, ledger_applied_at=$21, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$2`,
		s.ID, s.Version, s.GrossAmount, s.Deductions.Advance, s.Deductions.Seed, s.Deductions.Agricultural,
		s.Deductions.Total, s.ActualPayment, string(s.State), string(s.DeletedFrom), nullable(s.AuditedBy),
		s.AuditedAt, s.AuditRemark, s.RejectReason, s.PaymentMethod, s.PaymentRemark, nullable(s.PayingBy),
		s.PayingAt, nullable(s.PaidBy), s.PaidAt, s.LedgerAppliedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrConflict
	}
	return nil
}

func (t *pgTx) LoadSettlement(ctx context.Context, no string, forUpdate bool) (Settlement, error) {
	return scanSettlement(t.tx.QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlements s
JOIN acquisitions a ON a.id = s.acquisition_id WHERE s.no=$1`+lockClause(forUpdate, "s"), no))
}

func (t *pgTx) LoadSettlementByAcquisition(ctx context.Context, acquisitionID uuid.UUID, forUpdate bool) (Settlement, error) {
	return scanSettlement(t.tx.QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlements s
JOIN acquisitions a ON a.id = s.acquisition_id WHERE s.acquisition_id=$1`+lockClause(forUpdate, "s"), acquisitionID))
}

func (t *pgTx) ClaimIdempotency(ctx context.Context, key string) ([]byte, error) {
	return t.idem.Claim(ctx, t.tx, Module, key)
}

func (t *pgTx) CompleteIdempotency(ctx context.Context, key string, result []byte) error {
	return t.idem.Complete(ctx, t.tx, Module, key, result)
}

// ReleaseIdempotency is never needed: rollback discards the claim.
func (t *pgTx) ReleaseIdempotency(context.Context, string) error { return nil }

func lockClause(forUpdate bool, tables ...string) string {
	if !forUpdate {
		return ""
	}
	if len(tables) > 0 {
		return ` FOR UPDATE OF ` + tables[0]
	}
	return ` FOR UPDATE`
}

func nullable(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func deref(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
