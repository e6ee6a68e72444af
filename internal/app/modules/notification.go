package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"webcaf.gov.uk/webcaf/internal/api/handlers"
	"webcaf.gov.uk/webcaf/internal/jobs"
	"webcaf.gov.uk/webcaf/internal/notification"
)

// NotificationModule wires the inbox, the lifecycle triggers and the River
// workers that deliver them.
type NotificationModule struct {
	infra    *Infrastructure
	notifier *notification.Triggers
}

// NewNotificationModule creates the inbox sender and triggers.
func NewNotificationModule(infra *Infrastructure) *NotificationModule {
	inbox := notification.NewInboxSender(infra.Store.Notifications)
	return &NotificationModule{
		infra:    infra,
		notifier: notification.NewTriggers(inbox, infra.Store.Profiles),
	}
}

func (m *NotificationModule) Name() string { return "notification" }

func (m *NotificationModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Inbox = m.infra.Store.Notifications
}

func (m *NotificationModule) RegisterWorkers(workers *river.Workers) error {
	if workers == nil || m.infra == nil {
		return fmt.Errorf("notification module requires a worker registry")
	}
	cfg := m.infra.Config.Notification
	return jobs.Register(workers, jobs.Deps{
		Notifications:         m.infra.Store.Notifications,
		Sessions:              m.infra.SessionPurger,
		Assessments:           m.infra.Store.Assessments,
		Triggers:              m.notifier,
		Audit:                 m.infra.AuditLogger,
		Metrics:               m.infra.Metrics,
		NotificationRetention: cfg.Retention,
		ReminderWindow:        cfg.ReminderWindow,
	})
}

// AttachQueue routes submitted and completed events to River. It needs the
// River client, so bootstrap calls it after InitRiver.
func (m *NotificationModule) AttachQueue() error {
	if m == nil || m.infra == nil || m.infra.RiverClient == nil {
		return fmt.Errorf("notification module requires a river client")
	}
	jobs.NewEventEnqueuer(m.infra.RiverClient, m.infra.Store.Assessments).Register(m.infra.Events)
	return nil
}

func (m *NotificationModule) Shutdown(context.Context) error { return nil }
