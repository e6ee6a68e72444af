package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// Start begins consuming background jobs: notification fan-out, submission
// reminders and the session and inbox purges.
func (a *Application) Start(ctx context.Context) error {
	if a.DB == nil || a.DB.RiverClient == nil {
		logger.Warn("job queue not configured, background jobs are disabled")
		return nil
	}
	if err := a.DB.RiverClient.Start(ctx); err != nil {
		return fmt.Errorf("start job queue: %w", err)
	}
	logger.Info("Job queue started")
	return nil
}

// Shutdown stops the job queue, then the modules, then the shared
// infrastructure. Jobs still running when ctx expires are cancelled and
// retried on the next start. Shutdown is safe on a partly built Application.
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error

	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Stop(ctx); err != nil {
			logger.Warn("job queue did not drain in time, cancelling running jobs", zap.Error(err))
			if cerr := a.DB.RiverClient.StopAndCancel(context.WithoutCancel(ctx)); cerr != nil {
				errs = append(errs, fmt.Errorf("stop job queue: %w", cerr))
			}
		}
	}

	for i := len(a.Modules) - 1; i >= 0; i-- {
		mod := a.Modules[i]
		if mod == nil {
			continue
		}
		if err := mod.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", mod.Name(), err))
		}
	}

	switch {
	case a.closeInfra != nil:
		a.closeInfra()
	default:
		if a.Pools != nil {
			a.Pools.Shutdown()
		}
		if a.DB != nil {
			a.DB.Close()
		}
	}
	return errors.Join(errs...)
}
