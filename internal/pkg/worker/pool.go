// Package worker provides goroutine pool management.
//
// Naked goroutines are not used outside tests. Background work (outbound mail,
// inbox fan-out) goes through a named pool with context propagation.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// Pool names.
const (
	PoolGeneral = "general"
	PoolMail    = "mail"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools holds the process-wide pools.
type Pools struct {
	General *Pool
	// Mail delivers one-time passcodes; SMTP round trips must not starve General.
	Mail *Pool

	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// PoolConfig contains pool sizes.
type PoolConfig struct {
	GeneralPoolSize int
	MailPoolSize    int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		GeneralPoolSize: 50,
		MailPoolSize:    10,
	}
}

// Stats is a point-in-time view of one pool.
type Stats struct {
	Running int
	Free    int
	Cap     int
}

func newPool(name string, size int, idle time.Duration) (*Pool, error) {
	p, err := ants.NewPool(size,
		ants.WithPanicHandler(func(v interface{}) {
			logger.Error("worker panic recovered",
				zap.String("pool", name),
				zap.Any("panic", v),
				zap.Stack("stack"),
			)
		}),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(idle),
	)
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p, name: name}, nil
}

// NewPools creates the pool collection. Detached tasks inherit ctx.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	general, err := newPool(PoolGeneral, cfg.GeneralPoolSize, 10*time.Second)
	if err != nil {
		serviceCancel()
		return nil, err
	}
	mail, err := newPool(PoolMail, cfg.MailPoolSize, 30*time.Second)
	if err != nil {
		general.pool.Release()
		serviceCancel()
		return nil, err
	}

	return &Pools{
		General:       general,
		Mail:          mail,
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// Submit runs task on the pool with the caller's context.
// If ctx is already cancelled the task is not queued and ctx.Err() is returned.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.pool.IsClosed() {
		return ErrPoolClosed
	}

	return p.pool.Submit(func() {
		// The context may have been cancelled while the task was queued.
		if ctx.Err() != nil {
			logger.Debug("task skipped: context cancelled",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		}
		task(ctx)
	})
}

// Stats reports pool occupancy.
func (p *Pool) Stats() Stats {
	return Stats{Running: p.pool.Running(), Free: p.pool.Free(), Cap: p.pool.Cap()}
}

// Pool returns the named pool, falling back to General.
func (p *Pools) Pool(name string) *Pool {
	if name == PoolMail {
		return p.Mail
	}
	return p.General
}

// SubmitDetached runs task with the service lifecycle context instead of a
// request context, so it survives the request but still stops on shutdown.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	return p.Pool(poolName).Submit(p.serviceCtx, task)
}

// Shutdown cancels detached tasks then waits up to 30s for running ones.
func (p *Pools) Shutdown() {
	p.serviceCancel()

	const shutdownTimeout = 30 * time.Second
	for _, pool := range []*Pool{p.General, p.Mail} {
		if err := pool.pool.ReleaseTimeout(shutdownTimeout); err != nil {
			logger.Warn("worker pool shutdown timeout", zap.String("pool", pool.name), zap.Error(err))
		}
	}
}

// Metrics returns per-pool occupancy keyed by pool name.
func (p *Pools) Metrics() map[string]Stats {
	return map[string]Stats{
		PoolGeneral: p.General.Stats(),
		PoolMail:    p.Mail.Stats(),
	}
}
