// Package jobs defines the River job types WebCAF runs in the background.
//
// Jobs carry ids and small display values only; workers reload anything else
// they need. Periodic maintenance jobs are unique per day so a restart does not
// enqueue duplicates.
package jobs

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/governance/audit"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
)

// dailyInsertOpts is shared by the periodic maintenance jobs.
func dailyInsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// logAudit writes an audit entry for a job. Failures are logged at warn level
// but never propagated.
func logAudit(ctx context.Context, auditLogger *audit.Logger, action, resourceType, resourceID string, details map[string]interface{}) {
	if auditLogger == nil {
		return
	}
	if err := auditLogger.LogAction(ctx, action, resourceType, resourceID, "system", details); err != nil {
		logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
	}
}

// Deps are the collaborators the workers need.
type Deps struct {
	Notifications NotificationPurger
	Sessions      SessionPurger
	Assessments   DueLister
	Triggers      EventNotifier
	Audit         *audit.Logger
	Metrics       *metrics.Collector

	NotificationRetention time.Duration
	ReminderWindow        time.Duration
}

// Register adds every worker to workers.
func Register(workers *river.Workers, deps Deps) error {
	if err := river.AddWorkerSafely(workers, NewNotificationCleanupWorker(deps.Notifications, deps.NotificationRetention, deps.Metrics)); err != nil {
		return err
	}
	if err := river.AddWorkerSafely(workers, NewSessionCleanupWorker(deps.Sessions, deps.Metrics)); err != nil {
		return err
	}
	if err := river.AddWorkerSafely(workers, NewSubmissionReminderWorker(deps.Assessments, deps.Triggers, deps.ReminderWindow, deps.Metrics)); err != nil {
		return err
	}
	if err := river.AddWorkerSafely(workers, NewAssessmentSubmittedWorker(deps.Triggers, deps.Audit, deps.Metrics)); err != nil {
		return err
	}
	return river.AddWorkerSafely(workers, NewAssessmentCompletedWorker(deps.Triggers, deps.Audit, deps.Metrics))
}

// PeriodicJobs returns the maintenance schedule. Each job also runs once at
// start-up; the daily uniqueness window absorbs the extra run.
func PeriodicJobs() []*river.PeriodicJob {
	opts := &river.PeriodicJobOpts{RunOnStart: true}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(river.PeriodicInterval(time.Hour), func() (river.JobArgs, *river.InsertOpts) {
			return SessionCleanupArgs{}, nil
		}, opts),
		river.NewPeriodicJob(river.PeriodicInterval(24*time.Hour), func() (river.JobArgs, *river.InsertOpts) {
			return NotificationCleanupArgs{}, nil
		}, opts),
		river.NewPeriodicJob(river.PeriodicInterval(24*time.Hour), func() (river.JobArgs, *river.InsertOpts) {
			return SubmissionReminderArgs{}, nil
		}, opts),
	}
}
