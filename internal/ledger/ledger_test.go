package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/farmlink/internal/deduction"
	"github.com/farmlink/farmlink/internal/platform/db"
	"github.com/farmlink/farmlink/internal/rbac"
	"github.com/farmlink/farmlink/internal/shared"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newBook() *Book {
	b := NewBook()
	b.Farmers[1] = Farmer{ID: 1, Name: "Li", Balances: deduction.Balances{
		AdvancePayment: d("100"), SeedDebt: d("2500"), AgriculturalDebt: d("1000"),
	}, TotalSeedAmount: d("3000"), Deposit: d("500"), Version: 1}
	b.Warehouses[9] = Warehouse{ID: 9, Name: "North", Version: 1}
	return b
}

func TestApplyDeductionWritesOnlyNonzeroBuckets(t *testing.T) {
	ctx := context.Background()
	book := newBook()
	res := deduction.Compute(d("13095"), book.Farmers[1].Balances)

	require.NoError(t, ApplyDeduction(ctx, book, 1, res.Deductions))
	f := book.Farmers[1]
	require.True(t, f.AdvancePayment.IsZero())
	require.True(t, f.SeedDebt.IsZero())
	require.True(t, f.AgriculturalDebt.IsZero())
	require.Equal(t, int64(2), f.Version)

	require.NoError(t, RestoreDeduction(ctx, book, 1, res.Deductions))
	require.Equal(t, "2500.00", book.Farmers[1].SeedDebt.StringFixed(2))

	require.NoError(t, ApplyDeduction(ctx, book, 1, deduction.Breakdown{}))
	require.Equal(t, int64(3), book.Farmers[1].Version, "empty breakdown must not write")
}

func TestApplyDeltaFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	book := newBook()
	require.NoError(t, ApplyDelta(ctx, book, FarmerAccount(1), Delta{Field: FieldAdvancePayment, Amount: d("-500")}))
	require.True(t, book.Farmers[1].AdvancePayment.IsZero())

	err := ApplyDelta(ctx, book, WarehouseAccount(9), Delta{Field: FieldSeedDebt, Amount: d("1")})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestRecordAndReverseStatistics(t *testing.T) {
	ctx := context.Background()
	book := newBook()
	footprint := StatsDelta{Count: 1, Weight: d("1097.6"), Amount: d("9878.4")}

	require.NoError(t, RecordAcquisition(ctx, book, 1, 9, footprint))
	require.Equal(t, int64(1), book.Warehouses[9].AcquisitionCount)
	require.Equal(t, "9878.40", book.Farmers[1].AcquisitionAmount.StringFixed(2))

	require.NoError(t, ReverseStatistics(ctx, book, 1, 9, footprint))
	for _, s := range []Stats{book.Farmers[1].Stats, book.Warehouses[9].Stats} {
		require.Zero(t, s.AcquisitionCount)
		require.True(t, s.AcquisitionWeight.IsZero())
		require.True(t, s.AcquisitionAmount.IsZero())
	}
}

func TestReverseStatisticsRejectsNegativeResult(t *testing.T) {
	ctx := context.Background()
	book := newBook()
	require.NoError(t, RecordAcquisition(ctx, book, 1, 9, StatsDelta{Count: 1, Weight: d("100"), Amount: d("900")}))

	err := ReverseStatistics(ctx, book, 1, 9, StatsDelta{Count: 1, Weight: d("100"), Amount: d("900.01")})
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
	require.Equal(t, "900.00", book.Farmers[1].AcquisitionAmount.StringFixed(2))
	require.Equal(t, int64(1), book.Farmers[1].AcquisitionCount)

	err = ApplyDelta(ctx, book, WarehouseAccount(9), Delta{Field: FieldAcquisitionCount, Amount: d("-2")})
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
	require.Equal(t, int64(1), book.Warehouses[9].AcquisitionCount)
}

func TestRecordDistribution(t *testing.T) {
	ctx := context.Background()
	book := newBook()
	require.NoError(t, RecordDistribution(ctx, book, 1, DistributeSeed, d("200")))
	require.Equal(t, "2700.00", book.Farmers[1].SeedDebt.StringFixed(2))
	require.Equal(t, "3200.00", book.Farmers[1].TotalSeedAmount.StringFixed(2))

	require.ErrorIs(t, RecordDistribution(ctx, book, 1, DistributeInput, d("0")), shared.ErrInvalidInput)
	require.ErrorIs(t, RecordDistribution(ctx, book, 1, DistributionKind("gift"), d("5")), shared.ErrInvalidInput)
	require.ErrorIs(t, RecordDistribution(ctx, book, 77, DistributeAdvance, d("5")), shared.ErrFarmerNotFound)
}

func TestStoreFarmerDetectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	book := newBook()
	stale, err := book.LoadFarmer(ctx, 1, true)
	require.NoError(t, err)
	require.NoError(t, ApplyDelta(ctx, book, FarmerAccount(1), Delta{Field: FieldPaidAmount, Amount: d("10")}))
	require.ErrorIs(t, book.StoreFarmer(ctx, stale), db.ErrConflict)
}

func TestSeedDebtBaseline(t *testing.T) {
	require.Equal(t, "2500.00", SeedDebtBaseline(d("3000"), d("500")).StringFixed(2))
	require.Equal(t, "0.00", SeedDebtBaseline(d("300"), d("500")).StringFixed(2))
}

type memoryLedgerRepo struct {
	mu   sync.Mutex
	book *Book
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.book.Clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	r.book = work
	return nil
}

func (r *memoryLedgerRepo) GetFarmer(ctx context.Context, id int64) (Farmer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.book.LoadFarmer(ctx, id, false)
}

type recordingAudit struct{ logs []shared.AuditLog }

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestServiceRecordDistribution(t *testing.T) {
	repo := &memoryLedgerRepo{book: newBook()}
	audit := &recordingAudit{}
	actors := rbac.StaticDirectory{
		1: {ID: 1, Role: rbac.RoleFinance},
		2: {ID: 2, Role: rbac.RoleWarehouseOperator, WarehouseID: 9},
	}
	svc := NewService(repo, actors, nil, audit, nil)
	ctx := context.Background()

	farmer, err := svc.RecordDistribution(ctx, 1, DistributionInput{FarmerID: 1, Kind: DistributeAdvance, Amount: d("50"), Note: "fuel"})
	require.NoError(t, err)
	require.Equal(t, "150.00", farmer.AdvancePayment.StringFixed(2))
	require.Len(t, audit.logs, 1)
	require.Equal(t, "LEDGER_advance", audit.logs[0].Action)

	_, err = svc.RecordDistribution(ctx, 2, DistributionInput{FarmerID: 1, Kind: DistributeAdvance, Amount: d("50")})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	_, err = svc.RecordDistribution(ctx, 1, DistributionInput{FarmerID: 1, Kind: DistributeSeed, Amount: d("-1")})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	got, err := svc.GetBalances(ctx, 2, 1)
	require.NoError(t, err)
	require.Equal(t, "150.00", got.AdvancePayment.StringFixed(2))

	_, err = svc.GetBalances(ctx, 99, 1)
	require.ErrorIs(t, err, shared.ErrActorNotFound)
}
