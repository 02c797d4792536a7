package ledger

import (
	"context"

	"github.com/farmlink/farmlink/internal/platform/db"
	"github.com/farmlink/farmlink/internal/shared"
)

// Book is an in-memory Tx with the same version semantics as PGTx. It is not
// safe for concurrent use; callers serialise access.
type Book struct {
	Farmers    map[int64]Farmer
	Warehouses map[int64]Warehouse
}

// NewBook returns an empty Book.
func NewBook() *Book {
	return &Book{Farmers: make(map[int64]Farmer), Warehouses: make(map[int64]Warehouse)}
}

// Clone deep-copies the book; amounts are immutable values.
func (b *Book) Clone() *Book {
	out := NewBook()
	for id, f := range b.Farmers {
		out.Farmers[id] = f
	}
	for id, w := range b.Warehouses {
		out.Warehouses[id] = w
	}
	return out
}

// LoadFarmer implements Tx.
func (b *Book) LoadFarmer(_ context.Context, id int64, _ bool) (Farmer, error) {
	f, ok := b.Farmers[id]
	if !ok {
		return Farmer{}, shared.ErrFarmerNotFound
	}
	return f, nil
}

// StoreFarmer implements Tx.
func (b *Book) StoreFarmer(_ context.Context, f Farmer) error {
	cur, ok := b.Farmers[f.ID]
	if !ok {
		return shared.ErrFarmerNotFound
	}
	if cur.Version != f.Version {
		return db.ErrConflict
	}
	f.Version++
	b.Farmers[f.ID] = f
	return nil
}

// LoadWarehouse implements Tx.
func (b *Book) LoadWarehouse(_ context.Context, id int64, _ bool) (Warehouse, error) {
	w, ok := b.Warehouses[id]
	if !ok {
		return Warehouse{}, shared.ErrWarehouseNotFound
	}
	return w, nil
}

// StoreWarehouse implements Tx.
func (b *Book) StoreWarehouse(_ context.Context, w Warehouse) error {
	cur, ok := b.Warehouses[w.ID]
	if !ok {
		return shared.ErrWarehouseNotFound
	}
	if cur.Version != w.Version {
		return db.ErrConflict
	}
	w.Version++
	b.Warehouses[w.ID] = w
	return nil
}
