package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/migration"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeMigrateOrder transplants one intake order into the ledger.
	TaskTypeMigrateOrder = "migration:order"
	// TaskTypeRetryErrored sweeps error-status intake orders back onto the
	// queue.
	TaskTypeRetryErrored = "migration:retry_errored"
)

// MigrateOrderPayload identifies one intake order and its ledger destination.
type MigrateOrderPayload struct {
	IntakeOrderID int64                   `json:"intake_order_id"`
	Params        migration.MigrateParams `json:"params"`
}

// NewMigrateOrderTask constructs an Asynq task for one migration run.
func NewMigrateOrderTask(payload MigrateOrderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeMigrateOrder, data), nil
}

// NewRetryErroredTask constructs the periodic retry sweep task.
func NewRetryErroredTask() *asynq.Task {
	return asynq.NewTask(TaskTypeRetryErrored, nil)
}

// MigrationHandlers processes the migration task types against the
// reconciler and intake store.
type MigrationHandlers struct {
	reconciler *migration.Reconciler
	intake     migration.IntakeStore
	client     *Client
	fallback   migration.MigrateParams
	logger     *slog.Logger
	metrics    *jobmetrics.Metrics
}

// NewMigrationHandlers wires the migration task handlers.
func NewMigrationHandlers(reconciler *migration.Reconciler, intake migration.IntakeStore, client *Client, fallback migration.MigrateParams, logger *slog.Logger, metrics *jobmetrics.Metrics) *MigrationHandlers {
	return &MigrationHandlers{
		reconciler: reconciler,
		intake:     intake,
		client:     client,
		fallback:   fallback,
		logger:     logger,
		metrics:    metrics,
	}
}

// HandleMigrateOrder processes TaskTypeMigrateOrder tasks. Terminal outcomes
// (already synced, unresolvable references, orphans) skip Asynq's retry.
func (h *MigrationHandlers) HandleMigrateOrder(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track("migrate_order")
	var payload MigrateOrderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(asynq.SkipRetry)
	}

	result, err := h.reconciler.Migrate(ctx, payload.IntakeOrderID, payload.Params)
	if err != nil {
		h.logger.Error("migration task failed",
			slog.Int64("intake_order_id", payload.IntakeOrderID), slog.Any("error", err))
		if migration.IsTerminal(err) {
			return tracker.End(asynq.SkipRetry)
		}
		return tracker.End(err)
	}

	h.logger.Info("intake order migrated",
		slog.Int64("intake_order_id", payload.IntakeOrderID),
		slog.Int64("order_id", result.OrderID),
		slog.String("sequence", result.Sequence))
	return tracker.End(nil)
}

// retrySweepBatch bounds one sweep so a long error backlog cannot stall the
// queue.
const retrySweepBatch = 100

// HandleRetryErrored re-enqueues migrations for intake orders stuck in error
// status.
func (h *MigrationHandlers) HandleRetryErrored(ctx context.Context, _ *asynq.Task) error {
	tracker := h.metrics.Track("retry_errored")

	ids, err := h.intake.ListErrored(ctx, retrySweepBatch)
	if err != nil {
		return tracker.End(err)
	}
	for _, id := range ids {
		if _, err := h.client.EnqueueMigration(ctx, id, h.fallback); err != nil {
			h.logger.Warn("retry enqueue failed",
				slog.Int64("intake_order_id", id), slog.Any("error", err))
		}
	}
	if len(ids) > 0 {
		h.logger.Info("errored intake orders re-enqueued", slog.Int("count", len(ids)))
	}
	return tracker.End(nil)
}
