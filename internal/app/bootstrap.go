// Package app is the composition root: it builds the infrastructure, the
// modules and the router, and owns their start and shutdown order.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"webcaf.gov.uk/webcaf/internal/api/handlers"
	"webcaf.gov.uk/webcaf/internal/app/modules"
	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/infrastructure"
	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
	"webcaf.gov.uk/webcaf/internal/pkg/worker"
	"webcaf.gov.uk/webcaf/internal/session"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Metrics *metrics.Collector
	Modules []modules.Module

	closeInfra func()
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	identityModule, err := modules.NewIdentityModule(ctx, infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init identity module: %w", err)
	}
	registry := modules.NewRegistryModule(infra)
	notifications := modules.NewNotificationModule(infra)
	allModules := []modules.Module{
		modules.NewGovernanceModule(infra),
		identityModule,
		registry,
		modules.NewAssessmentModule(infra),
		notifications,
	}

	workers := river.NewWorkers()
	for _, mod := range allModules {
		if err := mod.RegisterWorkers(workers); err != nil {
			infra.Close()
			return nil, fmt.Errorf("register %s workers: %w", mod.Name(), err)
		}
	}
	if err := infra.InitRiver(workers); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}
	if err := notifications.AttachQueue(); err != nil {
		infra.Close()
		return nil, fmt.Errorf("attach notification queue: %w", err)
	}

	server := handlers.NewServer(modules.NewServerDeps(cfg, infra, allModules))
	sessions := session.NewManager(infra.Sessions, cfg.Session)

	return &Application{
		Config:     cfg,
		Router:     newRouter(cfg, server, sessions, infra.Store.Users, registry.Accounts(), infra.Metrics),
		DB:         infra.DB,
		Pools:      infra.Pools,
		Metrics:    infra.Metrics,
		Modules:    allModules,
		closeInfra: infra.Close,
	}, nil
}
