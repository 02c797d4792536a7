package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farmlink/farmlink/internal/acquisition"
	"github.com/farmlink/farmlink/internal/ledger"
	"github.com/farmlink/farmlink/internal/platform/db"
	"github.com/farmlink/farmlink/internal/shared"
)

// memoryStore serialises transactions but never rolls back, so failures are
// repaired by pipeline compensation only.
type memoryStore struct {
	mu           sync.Mutex
	book         *ledger.Book
	acquisitions map[uuid.UUID]acquisition.Acquisition
	settlements  map[uuid.UUID]Settlement
	keys         map[string][]byte
	failOn       map[string]error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		book:         ledger.NewBook(),
		acquisitions: make(map[uuid.UUID]acquisition.Acquisition),
		settlements:  make(map[uuid.UUID]Settlement),
		keys:         make(map[string][]byte),
		failOn:       make(map[string]error),
	}
}

// failNext makes the next call of op return err.
func (m *memoryStore) failNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[op] = err
}

func (m *memoryStore) fail(op string) error {
	if err, ok := m.failOn[op]; ok {
		delete(m.failOn, op)
		return err
	}
	return nil
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, &memoryTx{Book: m.book, store: m})
}

func (m *memoryStore) GetSettlement(ctx context.Context, no string) (Settlement, error) {
	if err := ctx.Err(); err != nil {
		return Settlement{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{Book: m.book, store: m}).LoadSettlement(ctx, no, false)
}

func (m *memoryStore) GetAcquisition(ctx context.Context, no string) (acquisition.Acquisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{Book: m.book, store: m}).LoadAcquisition(ctx, no, false)
}

func (m *memoryStore) GetFarmer(ctx context.Context, id int64) (ledger.Farmer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.LoadFarmer(ctx, id, false)
}

func (m *memoryStore) ListUnapplied(_ context.Context, _ int) ([]Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Settlement
	for _, s := range m.settlements {
		if s.State.Frozen() && s.LedgerAppliedAt == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryStore) ListImbalanced(_ context.Context, _ int) ([]Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Settlement
	for _, s := range m.settlements {
		if s.State != StateDeleted && !s.Balanced() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryStore) farmer(id int64) ledger.Farmer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.Farmers[id]
}

func (m *memoryStore) warehouse(id int64) ledger.Warehouse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.Warehouses[id]
}

type memoryTx struct {
	*ledger.Book
	store *memoryStore
}

func (t *memoryTx) Atomic() bool { return false }

func (t *memoryTx) StoreFarmer(ctx context.Context, f ledger.Farmer) error {
	if err := t.store.fail("StoreFarmer"); err != nil {
		return err
	}
	return t.Book.StoreFarmer(ctx, f)
}

func (t *memoryTx) StoreWarehouse(ctx context.Context, w ledger.Warehouse) error {
	if err := t.store.fail("StoreWarehouse"); err != nil {
		return err
	}
	return t.Book.StoreWarehouse(ctx, w)
}

func (t *memoryTx) InsertAcquisition(_ context.Context, a acquisition.Acquisition) error {
	if err := t.store.fail("InsertAcquisition"); err != nil {
		return err
	}
	for _, existing := range t.store.acquisitions {
		if existing.No == a.No {
			return ErrDuplicateKey
		}
	}
	t.store.acquisitions[a.ID] = a
	return nil
}

func (t *memoryTx) DiscardAcquisition(_ context.Context, id uuid.UUID) error {
	delete(t.store.acquisitions, id)
	return nil
}

func (t *memoryTx) UpdateAcquisition(_ context.Context, a acquisition.Acquisition) error {
	if err := t.store.fail("UpdateAcquisition"); err != nil {
		return err
	}
	cur, ok := t.store.acquisitions[a.ID]
	if !ok {
		return shared.ErrAcquisitionNotFound
	}
	if cur.Version != a.Version {
		return db.ErrConflict
	}
	a.Version++
	t.store.acquisitions[a.ID] = a
	return nil
}

func (t *memoryTx) LoadAcquisition(_ context.Context, no string, _ bool) (acquisition.Acquisition, error) {
	for _, a := range t.store.acquisitions {
		if a.No == no {
			return a, nil
		}
	}
	return acquisition.Acquisition{}, shared.ErrAcquisitionNotFound
}

func (t *memoryTx) LoadAcquisitionByID(_ context.Context, id uuid.UUID, _ bool) (acquisition.Acquisition, error) {
	a, ok := t.store.acquisitions[id]
	if !ok {
		return acquisition.Acquisition{}, shared.ErrAcquisitionNotFound
	}
	return a, nil
}

func (t *memoryTx) InsertSettlement(_ context.Context, s Settlement) error {
	if err := t.store.fail("InsertSettlement"); err != nil {
		return err
	}
	for _, existing := range t.store.settlements {
		if existing.No == s.No {
			return ErrDuplicateKey
		}
	}
	t.store.settlements[s.ID] = s
	return nil
}

func (t *memoryTx) DiscardSettlement(_ context.Context, id uuid.UUID) error {
	delete(t.store.settlements, id)
	return nil
}

func (t *memoryTx) UpdateSettlement(_ context.Context, s Settlement) error {
	if err := t.store.fail("UpdateSettlement"); err != nil {
		return err
	}
	cur, ok := t.store.settlements[s.ID]
	if !ok {
		return shared.ErrSettlementNotFound
	}
	if cur.Version != s.Version {
		return fmt.Errorf("settlement %s: %w", s.No, db.ErrConflict)
	}
	s.Version++
	t.store.settlements[s.ID] = s
	return nil
}

func (t *memoryTx) LoadSettlement(_ context.Context, no string, _ bool) (Settlement, error) {
	for _, s := range t.store.settlements {
		if s.No == no {
			return s, nil
		}
	}
	return Settlement{}, shared.ErrSettlementNotFound
}

func (t *memoryTx) LoadSettlementByAcquisition(_ context.Context, id uuid.UUID, _ bool) (Settlement, error) {
	for _, s := range t.store.settlements {
		if s.AcquisitionID == id {
			return s, nil
		}
	}
	return Settlement{}, shared.ErrSettlementNotFound
}

func (t *memoryTx) ClaimIdempotency(_ context.Context, key string) ([]byte, error) {
	if stored, ok := t.store.keys[key]; ok {
		if stored == nil {
			stored = []byte("null")
		}
		return stored, shared.ErrIdempotencyConflict
	}
	t.store.keys[key] = nil
	return nil, nil
}

func (t *memoryTx) CompleteIdempotency(_ context.Context, key string, result []byte) error {
	t.store.keys[key] = result
	return nil
}

func (t *memoryTx) ReleaseIdempotency(_ context.Context, key string) error {
	delete(t.store.keys, key)
	return nil
}

type memoryHistory struct {
	mu   sync.Mutex
	logs []shared.ApprovalLog
}

func (h *memoryHistory) Record(_ context.Context, log shared.ApprovalLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs = append(h.logs, log)
	return nil
}

func (h *memoryHistory) List(_ context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []shared.ApprovalLog
	for _, l := range h.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type sequenceKeys struct {
	mu   sync.Mutex
	next int
}

func (k *sequenceKeys) generate(prefix string, at time.Time) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.next++
	return fmt.Sprintf("%s_%s_%04d", prefix, at.Format("20060102"), k.next)
}
