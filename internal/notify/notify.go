// Package notify delivers in-app notifications. Producers enqueue through a
// Sink; the worker resolves recipients and stores rows in notifications.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/farmlink/farmlink/internal/rbac"
)

// TaskTypeDeliver is the asynq task type carrying a Message.
const TaskTypeDeliver = "notification:deliver"

// QueueNotifications is the asynq queue notifications are enqueued on.
const QueueNotifications = "notifications"

// Type classifies a notification.
type Type string

const (
	TypeSettlementPendingAudit Type = "settlement_pending_audit"
	TypeSettlementApproved     Type = "settlement_approved"
	TypeSettlementRejected     Type = "settlement_rejected"
	TypeSettlementPaid         Type = "settlement_paid"
	TypeAcquisitionDeleted     Type = "acquisition_deleted"
)

// Priority orders notifications in the inbox.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Message addresses either one user or every active member of Roles.
type Message struct {
	RecipientID int64          `json:"recipientId,omitempty"`
	Roles       []rbac.Role    `json:"roles,omitempty"`
	Type        Type           `json:"type"`
	Priority    Priority       `json:"priority"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Validate checks the message is addressable.
func (m Message) Validate() error {
	if m.RecipientID == 0 && len(m.Roles) == 0 {
		return errors.New("notify: recipient or roles required")
	}
	if m.Type == "" {
		return errors.New("notify: type required")
	}
	return nil
}

// Sink accepts notifications. Implementations are fire-and-forget from the
// caller's perspective; errors are reported for logging only.
type Sink interface {
	Notify(ctx context.Context, msg Message) error
}

// NewDeliverTask wraps msg in an asynq task.
func NewDeliverTask(msg Message) (*asynq.Task, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDeliver, data, asynq.MaxRetry(5)), nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink enqueues notifications for the worker.
type QueueSink struct {
	client Enqueuer
}

// NewQueueSink constructs a QueueSink.
func NewQueueSink(client Enqueuer) *QueueSink {
	return &QueueSink{client: client}
}

// Notify implements Sink.
func (s *QueueSink) Notify(ctx context.Context, msg Message) error {
	if msg.Priority == "" {
		msg.Priority = PriorityNormal
	}
	task, err := NewDeliverTask(msg)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task, asynq.Queue(QueueNotifications))
	return err
}

// LogSink only logs; used when no queue is configured.
type LogSink struct {
	Logger *slog.Logger
}

// Notify implements Sink.
func (s LogSink) Notify(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", slog.String("type", string(msg.Type)), slog.String("priority", string(msg.Priority)), slog.String("title", msg.Title))
	return nil
}
