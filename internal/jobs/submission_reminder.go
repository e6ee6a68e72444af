package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
)

// DefaultReminderWindow is how far ahead of the due date reminders start.
const DefaultReminderWindow = 14 * 24 * time.Hour

// DueLister finds draft assessments due in a time range.
type DueLister interface {
	DueBetween(ctx context.Context, from, to time.Time) ([]domain.Assessment, error)
}

// EventNotifier turns assessment events into inbox notifications.
type EventNotifier interface {
	OnAssessmentSubmitted(ctx context.Context, p domain.AssessmentEventPayload, submittedBy string) error
	OnAssessmentCompleted(ctx context.Context, p domain.AssessmentEventPayload, createdBy int64) error
	OnSubmissionDue(ctx context.Context, a domain.Assessment) error
}

// SubmissionReminderArgs is the daily reminder sweep.
type SubmissionReminderArgs struct{}

// Kind returns the job kind identifier.
func (SubmissionReminderArgs) Kind() string { return "submission_reminder" }

// InsertOpts allows one sweep per day.
func (SubmissionReminderArgs) InsertOpts() river.InsertOpts { return dailyInsertOpts() }

// SubmissionReminderWorker reminds organisation leads about drafts that fall
// due within the window.
type SubmissionReminderWorker struct {
	river.WorkerDefaults[SubmissionReminderArgs]
	assessments DueLister
	notifier    EventNotifier
	window      time.Duration
	metrics     *metrics.Collector
	now         func() time.Time
}

// NewSubmissionReminderWorker creates the worker. Non-positive window falls
// back to DefaultReminderWindow.
func NewSubmissionReminderWorker(assessments DueLister, notifier EventNotifier, window time.Duration, m *metrics.Collector) *SubmissionReminderWorker {
	if window <= 0 {
		window = DefaultReminderWindow
	}
	return &SubmissionReminderWorker{
		assessments: assessments,
		notifier:    notifier,
		window:      window,
		metrics:     m,
		now:         time.Now,
	}
}

// Work sends one reminder per due draft. A failed reminder does not stop the
// others; the job reports every failure.
func (w *SubmissionReminderWorker) Work(ctx context.Context, _ *river.Job[SubmissionReminderArgs]) error {
	now := w.now().UTC()
	due, err := w.assessments.DueBetween(ctx, now, now.Add(w.window))
	if err != nil {
		w.metrics.Job(SubmissionReminderArgs{}.Kind(), err)
		return fmt.Errorf("list due assessments: %w", err)
	}

	var errs []error
	for _, a := range due {
		if err := w.notifier.OnSubmissionDue(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("assessment %d: %w", a.ID, err))
		}
	}
	err = errors.Join(errs...)
	w.metrics.Job(SubmissionReminderArgs{}.Kind(), err)

	logger.Info("submission reminders sent",
		zap.Int("due", len(due)),
		zap.Int("failed", len(errs)),
		zap.Duration("window", w.window),
	)
	return err
}
