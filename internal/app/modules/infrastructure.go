package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/governance/audit"
	"webcaf.gov.uk/webcaf/internal/infrastructure"
	"webcaf.gov.uk/webcaf/internal/jobs"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
	"webcaf.gov.uk/webcaf/internal/pkg/ratelimit"
	"webcaf.gov.uk/webcaf/internal/pkg/worker"
	"webcaf.gov.uk/webcaf/internal/policy"
	"webcaf.gov.uk/webcaf/internal/repository"
	"webcaf.gov.uk/webcaf/internal/service"
	"webcaf.gov.uk/webcaf/internal/session"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config      *config.Config
	DB          *infrastructure.DatabaseClients
	Pools       *worker.Pools
	Pool        *pgxpool.Pool
	RiverClient *river.Client[pgx.Tx]
	Store       *repository.Store
	Repos       service.Repos
	Policy      *policy.Policy
	Events      *domain.EventDispatcher
	AuditLogger *audit.Logger
	Metrics     *metrics.Collector

	// Sessions is the configured session backend. SessionPurger is nil for
	// backends that expire their own entries.
	Sessions      session.Store
	SessionPurger jobs.SessionPurger

	// RateLimits holds sign-in throttling and passcode attempt counters.
	RateLimits ratelimit.Store

	redis redis.UniversalClient
}

// NewInfrastructure initializes DB/pools and shared services.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	// Dev-mode: apply the schema and River's queue tables on start-up.
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		MailPoolSize:    cfg.Worker.MailPoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	store := repository.NewStore(db.Pool)
	infra := &Infrastructure{
		Config:      cfg,
		DB:          db,
		Pools:       pools,
		Pool:        db.Pool,
		Store:       store,
		Repos:       service.ReposFromStore(store),
		Policy:      policy.New(policy.WithDeletionGuards(cfg.Security.ProfileDeletionGuards)),
		Events:      domain.NewEventDispatcher(),
		AuditLogger: audit.NewLogger(store.Audit),
		Metrics:     metrics.NewCollector(),
	}
	if err := infra.initRedis(ctx); err != nil {
		infra.Close()
		return nil, err
	}
	infra.initSessions()
	infra.initRateLimits()
	infra.registerPoolGauges()
	return infra, nil
}

// initRedis connects to Redis when sessions or rate limits are kept there.
func (i *Infrastructure) initRedis(ctx context.Context) error {
	if !strings.EqualFold(i.Config.Session.Backend, "redis") && !strings.EqualFold(i.Config.RateLimit.Backend, "redis") {
		return nil
	}
	opts, err := redis.ParseURL(i.Config.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis: %w", err)
	}
	i.redis = client
	return nil
}

// initSessions picks the session backend named in session.backend.
func (i *Infrastructure) initSessions() {
	switch strings.ToLower(i.Config.Session.Backend) {
	case "redis":
		i.Sessions = session.NewRedisStore(i.redis, i.Config.Redis.KeyPrefix)
	case "memory":
		mem := session.NewMemoryStore()
		i.Sessions, i.SessionPurger = mem, mem
	default:
		pg := session.NewPostgresStore(i.Pool)
		i.Sessions, i.SessionPurger = pg, pg
	}
	logger.Info("Session store initialized", zap.String("backend", i.Config.Session.Backend))
}

// initRateLimits picks the counter store named in rate_limit.backend. Redis
// counters fall back to process memory while Redis is unreachable.
func (i *Infrastructure) initRateLimits() {
	if strings.EqualFold(i.Config.RateLimit.Backend, "redis") {
		i.RateLimits = ratelimit.WithFallback(
			ratelimit.NewRedisStore(i.redis, i.Config.RateLimit.KeyPrefix),
			ratelimit.NewMemoryStore(),
		)
	} else {
		i.RateLimits = ratelimit.NewMemoryStore()
	}
	logger.Info("Rate limit store initialized", zap.String("backend", i.Config.RateLimit.Backend))
}

func (i *Infrastructure) registerPoolGauges() {
	for _, name := range []string{worker.PoolGeneral, worker.PoolMail} {
		name := name
		err := i.Metrics.RegisterGaugeFunc("worker_pool_running", "Goroutines currently running in the pool.",
			map[string]string{"pool": name},
			func() float64 { return float64(i.Pools.Metrics()[name].Running) },
		)
		if err != nil {
			logger.Warn("register pool gauge failed", zap.String("pool", name), zap.Error(err))
		}
	}
}

// InitRiver initializes River client on top of a prepared worker registry.
func (i *Infrastructure) InitRiver(workers *river.Workers) error {
	if i == nil || i.DB == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if err := i.DB.InitRiverClient(workers, jobs.PeriodicJobs(), i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			logger.Warn("close redis client", zap.Error(err))
		}
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
