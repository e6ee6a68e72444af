package modules

import (
	"webcaf.gov.uk/webcaf/internal/api/handlers"
	"webcaf.gov.uk/webcaf/internal/config"
)

// NewServerDeps starts from the shared pieces every page needs (auth
// settings, the role policy, the readiness pinger and metrics) and lets the
// modules fill in their services. Nil modules are skipped.
func NewServerDeps(cfg *config.Config, infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		Auth:    cfg.Auth,
		Policy:  infra.Policy,
		Metrics: infra.Metrics,
	}
	if infra.Pool != nil {
		deps.DB = infra.Pool
	}
	for _, mod := range mods {
		if mod != nil {
			mod.ContributeServerDeps(&deps)
		}
	}
	return deps
}
