// Package modules splits WebCAF's wiring by concern: identity (sign-in and
// the second factor), registry (organisations, systems, profiles),
// assessment, notification and governance (audit trail).
//
// Bootstrap builds the shared Infrastructure once, hands it to every module
// and then collects what each one contributes.
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"webcaf.gov.uk/webcaf/internal/api/handlers"
)

// Module is one slice of the composition root.
type Module interface {
	// Name is used in log lines and shutdown errors.
	Name() string

	// ContributeServerDeps fills in the handler dependencies the module owns.
	ContributeServerDeps(*handlers.ServerDeps)

	// RegisterWorkers adds the module's background job workers. It runs
	// before the River client is built.
	RegisterWorkers(*river.Workers) error

	// Shutdown releases anything the module started itself.
	Shutdown(context.Context) error
}
