package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farmlink/farmlink/internal/shared"
)

// Directory resolves actors and role members.
type Directory interface {
	Actor(ctx context.Context, id int64) (Actor, error)
	ByRole(ctx context.Context, roles ...Role) ([]Actor, error)
}

// Service is the PostgreSQL-backed actor directory.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Actor fetches an active actor by ID.
func (s *Service) Actor(ctx context.Context, id int64) (Actor, error) {
	var a Actor
	var role string
	var warehouseID *int64
	err := s.pool.QueryRow(ctx, `SELECT id, name, role, warehouse_id FROM actors WHERE id=$1 AND active`, id).
		Scan(&a.ID, &a.Name, &role, &warehouseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, shared.ErrActorNotFound
		}
		return Actor{}, err
	}
	a.Role = Role(role)
	if warehouseID != nil {
		a.WarehouseID = *warehouseID
	}
	return a, nil
}

// ByRole lists active actors holding any of roles.
func (s *Service) ByRole(ctx context.Context, roles ...Role) ([]Actor, error) {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	rows, err := s.pool.Query(ctx, `SELECT id, name, role, warehouse_id FROM actors WHERE active AND role = ANY($1) ORDER BY id`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var actors []Actor
	for rows.Next() {
		var a Actor
		var role string
		var warehouseID *int64
		if err := rows.Scan(&a.ID, &a.Name, &role, &warehouseID); err != nil {
			return nil, err
		}
		a.Role = Role(role)
		if warehouseID != nil {
			a.WarehouseID = *warehouseID
		}
		actors = append(actors, a)
	}
	return actors, rows.Err()
}

// StaticDirectory is an in-memory Directory, used by tests and local tooling.
type StaticDirectory map[int64]Actor

// Actor implements Directory.
func (d StaticDirectory) Actor(_ context.Context, id int64) (Actor, error) {
	a, ok := d[id]
	if !ok {
		return Actor{}, shared.ErrActorNotFound
	}
	return a, nil
}

// ByRole implements Directory.
func (d StaticDirectory) ByRole(_ context.Context, roles ...Role) ([]Actor, error) {
	var out []Actor
	for _, a := range d {
		if a.is(roles...) {
			out = append(out, a)
		}
	}
	return out, nil
}
