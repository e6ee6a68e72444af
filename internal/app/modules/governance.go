package modules

import (
	"context"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/api/handlers"
	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/pkg/worker"
)

// GovernanceModule subscribes the audit trail to every domain event. Audit
// rows are written on the general pool so a slow insert never holds up the
// request that raised the event.
type GovernanceModule struct {
	infra *Infrastructure
}

func NewGovernanceModule(infra *Infrastructure) *GovernanceModule {
	m := &GovernanceModule{infra: infra}
	infra.Events.RegisterAll(m.auditEvent)
	return m
}

func (m *GovernanceModule) auditEvent(_ context.Context, event *domain.DomainEvent) error {
	return m.infra.Pools.SubmitDetached(worker.PoolGeneral, func(ctx context.Context) {
		if err := m.infra.AuditLogger.HandleEvent(ctx, event); err != nil {
			logger.Warn("audit side-write failed",
				zap.String("event_type", string(event.EventType)),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
		}
	})
}

func (m *GovernanceModule) Name() string { return "governance" }

func (m *GovernanceModule) ContributeServerDeps(_ *handlers.ServerDeps) {}

func (m *GovernanceModule) RegisterWorkers(*river.Workers) error { return nil }

func (m *GovernanceModule) Shutdown(context.Context) error { return nil }
