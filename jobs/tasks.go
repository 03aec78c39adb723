package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/balanza-erp/balanza-erp/internal/jobs"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity recomputes the ledger and flags drift.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskSeriesWarmup refreshes the cached balance series.
	TaskSeriesWarmup = "ledger:series-warmup"
)

// NewLedgerIntegrityTask constructs the integrity check task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// NewSeriesWarmupTask constructs the series warmup task.
func NewSeriesWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskSeriesWarmup, nil)
}

// LedgerIntegrityHandler returns the handler for TaskLedgerIntegrity. The
// check is read-only; drift aborts the task so the failure lands in the
// asynq retry/dead queue where operators see it.
func LedgerIntegrityHandler(svc *ledger.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskLedgerIntegrity)
		if err := svc.CheckIntegrity(ctx); err != nil {
			logger.Error("ledger integrity check failed", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("ledger integrity check passed", slog.String("job", TaskLedgerIntegrity))
		return tracker.End(nil)
	}
}

// SeriesWarmupHandler returns the handler for TaskSeriesWarmup.
func SeriesWarmupHandler(svc *ledger.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskSeriesWarmup)
		series, err := svc.RefreshSeries(ctx)
		if err != nil {
			logger.Error("series warmup failed", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("series warmup completed", slog.Int("points", len(series)))
		return tracker.End(nil)
	}
}
