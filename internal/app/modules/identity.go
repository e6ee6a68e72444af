package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"webcaf.gov.uk/webcaf/internal/api/handlers"
	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/identity"
	"webcaf.gov.uk/webcaf/internal/notification"
	"webcaf.gov.uk/webcaf/internal/pkg/ratelimit"
	"webcaf.gov.uk/webcaf/internal/service"
	"webcaf.gov.uk/webcaf/internal/twofactor"
)

// IdentityModule wires sign-in: the OIDC relying party, local login and the
// emailed second factor.
type IdentityModule struct {
	infra     *Infrastructure
	signIn    *service.AuthService
	oidc      *identity.Client
	passcodes *twofactor.Service

	loginLimiter  *ratelimit.Limiter
	verifyLimiter *ratelimit.Limiter
}

// NewIdentityModule creates the module. The OIDC client is only built when
// SSO is enabled and the passcode service only when 2FA is on.
func NewIdentityModule(ctx context.Context, infra *Infrastructure) (*IdentityModule, error) {
	if infra == nil || infra.Config == nil {
		return nil, fmt.Errorf("identity module requires infrastructure")
	}
	cfg := infra.Config
	m := &IdentityModule{
		infra:  infra,
		signIn: service.NewAuthService(infra.Store.Users, infra.Events, infra.Metrics),
	}
	if !cfg.Auth.SSODisabled() {
		client, err := identity.NewClient(ctx, cfg.OIDC)
		if err != nil {
			return nil, fmt.Errorf("init OIDC client: %w", err)
		}
		m.oidc = client
	}
	counters := infra.RateLimits
	if counters == nil {
		counters = ratelimit.NewMemoryStore()
	}
	m.loginLimiter, m.verifyLimiter = newSignInLimiters(cfg.RateLimit, counters)
	if cfg.Auth.Enabled2FA {
		mailer := notification.Throttle(notification.NewMailer(cfg.Mail), cfg.Mail.RatePerSecond, cfg.Mail.Burst)
		m.passcodes = twofactor.New(cfg.TwoFactor, infra.Store.Users, mailer,
			twofactor.WithPools(infra.Pools),
			twofactor.WithMetrics(infra.Metrics),
			twofactor.WithAttemptStore(counters),
		)
	}
	return m, nil
}

// newSignInLimiters builds the per-address login budget and the per-user
// passcode page budget.
func newSignInLimiters(cfg config.RateLimitConfig, store ratelimit.Store) (login, verify *ratelimit.Limiter) {
	login = ratelimit.NewLimiter(store, "login", ratelimit.Rule{Limit: cfg.LoginAttempts, Window: cfg.LoginWindow})
	verify = ratelimit.NewLimiter(store, "verify", ratelimit.Rule{Limit: cfg.VerifyAttempts, Window: cfg.VerifyWindow})
	return login, verify
}

func (m *IdentityModule) Name() string { return "identity" }

func (m *IdentityModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.SignIn = m.signIn
	deps.Users = m.infra.Store.Users
	// Interface fields stay nil rather than holding a typed nil.
	if m.oidc != nil {
		deps.OIDC = m.oidc
	}
	if m.passcodes != nil {
		deps.Passcodes = m.passcodes
	}
	deps.LoginLimiter = m.loginLimiter
	deps.VerifyLimiter = m.verifyLimiter
}

func (m *IdentityModule) RegisterWorkers(*river.Workers) error { return nil }

func (m *IdentityModule) Shutdown(context.Context) error { return nil }
