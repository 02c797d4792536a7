package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farmlink/farmlink/internal/rbac"
)

// Store persists a delivered notification for one recipient.
type Store interface {
	Insert(ctx context.Context, recipientID int64, msg Message) error
}

// PGStore writes into the notifications table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs the store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Insert implements Store.
func (s *PGStore) Insert(ctx context.Context, recipientID int64, msg Message) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO notifications (recipient_id, type, priority, title, body, payload)
VALUES ($1, $2, $3, $4, $5, $6)`, recipientID, string(msg.Type), string(msg.Priority), msg.Title, msg.Body, payload)
	return err
}

// Deliverer handles TaskTypeDeliver on the worker.
type Deliverer struct {
	store  Store
	actors rbac.Directory
	logger *slog.Logger
}

// NewDeliverer constructs a Deliverer.
func NewDeliverer(store Store, actors rbac.Directory, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{store: store, actors: actors, logger: logger}
}

// Handle implements asynq.HandlerFunc.
func (d *Deliverer) Handle(ctx context.Context, task *asynq.Task) error {
	var msg Message
	if err := json.Unmarshal(task.Payload(), &msg); err != nil {
		return fmt.Errorf("notify: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	recipients, err := d.recipients(ctx, msg)
	if err != nil {
		return err
	}
	for _, id := range recipients {
		if err := d.store.Insert(ctx, id, msg); err != nil {
			return fmt.Errorf("notify: insert for %d: %w", id, err)
		}
	}
	d.logger.Debug("notification delivered", slog.String("type", string(msg.Type)), slog.Int("recipients", len(recipients)))
	return nil
}

func (d *Deliverer) recipients(ctx context.Context, msg Message) ([]int64, error) {
	seen := make(map[int64]struct{})
	var ids []int64
	add := func(id int64) {
		if _, ok := seen[id]; ok || id == 0 {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	add(msg.RecipientID)
	if len(msg.Roles) > 0 {
		members, err := d.actors.ByRole(ctx, msg.Roles...)
		if err != nil {
			return nil, fmt.Errorf("notify: resolve roles: %w", err)
		}
		for _, m := range members {
			add(m.ID)
		}
	}
	return ids, nil
}
