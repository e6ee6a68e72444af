package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
)

// SessionPurger removes sessions past their expiry.
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionCleanupArgs removes expired rows from the session table. Redis
// expires its own keys, so the job is only scheduled for the postgres and
// memory backends.
type SessionCleanupArgs struct{}

// Kind returns the job kind identifier.
func (SessionCleanupArgs) Kind() string { return "session_cleanup" }

// InsertOpts allows one queued cleanup per hour.
func (SessionCleanupArgs) InsertOpts() river.InsertOpts {
	opts := dailyInsertOpts()
	opts.UniqueOpts.ByPeriod = time.Hour
	return opts
}

// SessionCleanupWorker runs SessionCleanupArgs.
type SessionCleanupWorker struct {
	river.WorkerDefaults[SessionCleanupArgs]
	store   SessionPurger
	metrics *metrics.Collector
}

// NewSessionCleanupWorker creates the worker.
func NewSessionCleanupWorker(store SessionPurger, m *metrics.Collector) *SessionCleanupWorker {
	return &SessionCleanupWorker{store: store, metrics: m}
}

// Work deletes expired sessions.
func (w *SessionCleanupWorker) Work(ctx context.Context, _ *river.Job[SessionCleanupArgs]) error {
	if w.store == nil {
		// Redis backend: nothing to do.
		return nil
	}
	deleted, err := w.store.DeleteExpired(ctx)
	w.metrics.Job(SessionCleanupArgs{}.Kind(), err)
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	if deleted > 0 {
		logger.Info("session cleanup completed", zap.Int64("deleted_rows", deleted))
	}
	return nil
}
