package modules

import (
	"context"

	"github.com/riverqueue/river"

	"webcaf.gov.uk/webcaf/internal/api/handlers"
	"webcaf.gov.uk/webcaf/internal/service"
)

// AssessmentModule wires the draft wizard, outcome editing and the
// submit/complete transitions.
type AssessmentModule struct {
	assessments *service.AssessmentService
}

// NewAssessmentModule creates the assessment service. Transitions are
// published on the shared dispatcher.
func NewAssessmentModule(infra *Infrastructure) *AssessmentModule {
	return &AssessmentModule{
		assessments: service.NewAssessmentService(infra.Repos, infra.Policy, infra.Events, infra.Metrics),
	}
}

func (m *AssessmentModule) Name() string { return "assessment" }

func (m *AssessmentModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Assessments = m.assessments
}

func (m *AssessmentModule) RegisterWorkers(*river.Workers) error { return nil }

func (m *AssessmentModule) Shutdown(context.Context) error { return nil }
