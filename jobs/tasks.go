package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/farmlink/farmlink/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans frozen settlements for deductions that never
	// reached the farmer book.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LedgerIntegrityPayload bounds one integrity scan.
type LedgerIntegrityPayload struct {
	Limit int `json:"limit"`
}

// IdempotencyCleanupPayload overrides the configured retention when set.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// NewLedgerIntegrityTask builds a ledger integrity task.
func NewLedgerIntegrityTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerIntegrityPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewIdempotencyCleanupTask builds a cleanup task. A zero retention uses the
// worker's configured value.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// TaskByName resolves the short names accepted by `farmlink jobs trigger`.
func TaskByName(name string) (*asynq.Task, error) {
	switch name {
	case "ledger-integrity", TaskLedgerIntegrity:
		return NewLedgerIntegrityTask(0)
	case "idempotency-cleanup", TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask(0)
	default:
		return nil, fmt.Errorf("jobs: unknown task %q", name)
	}
}

// Queues lists every queue the worker consumes, keyed by priority.
func Queues() map[string]int {
	return map[string]int{
		notify.QueueNotifications: 3,
		QueueDefault:              1,
	}
}
