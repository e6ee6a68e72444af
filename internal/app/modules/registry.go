package modules

import (
	"context"

	"github.com/riverqueue/river"

	"webcaf.gov.uk/webcaf/internal/api/handlers"
	"webcaf.gov.uk/webcaf/internal/service"
)

// RegistryModule wires the organisation, system, user-profile and account
// services.
type RegistryModule struct {
	accounts      *service.AccountService
	organisations *service.OrganisationService
	systems       *service.SystemService
	profiles      *service.ProfileService
}

// NewRegistryModule creates the registry services over the shared repos.
func NewRegistryModule(infra *Infrastructure) *RegistryModule {
	return &RegistryModule{
		accounts:      service.NewAccountService(infra.Repos),
		organisations: service.NewOrganisationService(infra.Repos, infra.Policy),
		systems:       service.NewSystemService(infra.Repos, infra.Policy),
		profiles:      service.NewProfileService(infra.Repos, infra.Policy, infra.Events),
	}
}

func (m *RegistryModule) Name() string { return "registry" }

// Accounts is the active-profile resolver the attribution middleware uses.
func (m *RegistryModule) Accounts() *service.AccountService { return m.accounts }

func (m *RegistryModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Accounts = m.accounts
	deps.Organisations = m.organisations
	deps.Systems = m.systems
	deps.Profiles = m.profiles
}

func (m *RegistryModule) RegisterWorkers(*river.Workers) error { return nil }

func (m *RegistryModule) Shutdown(context.Context) error { return nil }
