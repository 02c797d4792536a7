package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/farmlink/farmlink/internal/jobs"
	"github.com/farmlink/farmlink/internal/settlement"
)

const defaultIntegrityLimit = 200

// LedgerRepairer applies missing deductions for frozen settlements.
type LedgerRepairer interface {
	RepairLedger(ctx context.Context, limit int) (settlement.RepairSummary, error)
}

// LedgerIntegrityJob reconciles frozen settlements with the farmer book.
type LedgerIntegrityJob struct {
	Repairer LedgerRepairer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewLedgerIntegrityJob initialises the integrity handler.
func NewLedgerIntegrityJob(repairer LedgerRepairer, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{
		Repairer: repairer,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one scan.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Repairer == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultIntegrityLimit
	}

	start := j.now()
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.Int("limit", payload.Limit))
	logger.Info("starting ledger integrity scan")

	summary, err := j.Repairer.RepairLedger(ctx, payload.Limit)
	for _, no := range summary.Applied {
		logger.Warn("applied missing deduction", slog.String("settlement_no", no))
	}
	for _, no := range summary.Imbalanced {
		logger.Error("settlement amounts do not balance", slog.String("settlement_no", no))
	}
	j.Metrics.AddFindings("applied", len(summary.Applied))
	j.Metrics.AddFindings("imbalanced", len(summary.Imbalanced))
	if err != nil {
		logger.Error("ledger integrity scan failed", slog.Any("error", err))
		return err
	}

	logger.Info("completed ledger integrity scan",
		slog.Int("applied", len(summary.Applied)),
		slog.Int("imbalanced", len(summary.Imbalanced)),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *LedgerIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
