// Package handlers implements WebCAF's HTML pages as gin handlers.
//
// Handlers bind forms, call the service layer and render a template or
// redirect. Errors are added with c.Error and rendered by
// middleware.ErrorHandler; validation errors re-render the form instead.
// Routes are registered by internal/app.
package handlers

import (
	"context"

	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/identity"
	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
	"webcaf.gov.uk/webcaf/internal/pkg/ratelimit"
	"webcaf.gov.uk/webcaf/internal/policy"
	"webcaf.gov.uk/webcaf/internal/service"
)

// OIDCProvider is the part of identity.Client the sign-in pages use.
type OIDCProvider interface {
	AuthCodeURL(state, nonce string) string
	Exchange(ctx context.Context, code, nonce string) (*identity.Result, error)
	LogoutURL(idTokenHint, redirectURI string) (string, error)
}

// PasscodeService sends and checks the emailed second factor. Verify
// returns twofactor.ErrCodeRejected for a wrong code and
// twofactor.ErrNewCodeRequired once the user must ask for another.
type PasscodeService interface {
	Send(ctx context.Context, user *domain.User) error
	Verify(ctx context.Context, user *domain.User, code string) error
}

// Inbox is the notification storage the inbox page reads.
type Inbox interface {
	ListForRecipient(ctx context.Context, userID int64, limit int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, id string, userID int64) error
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the page handlers' dependencies.
type Server struct {
	auth          config.AuthConfig
	accounts      *service.AccountService
	organisations *service.OrganisationService
	systems       *service.SystemService
	profiles      *service.ProfileService
	assessments   *service.AssessmentService
	signIn        *service.AuthService
	users         service.UserStore
	policy        *policy.Policy
	oidc          OIDCProvider
	passcodes     PasscodeService
	inbox         Inbox
	db            Pinger
	metrics       *metrics.Collector
	loginLimiter  *ratelimit.Limiter
	verifyLimiter *ratelimit.Limiter
}

// ServerDeps holds all dependencies for creating a Server.
// OIDC is nil when SSO is disabled; Passcodes is nil when 2FA is off.
// A nil limiter leaves its routes unthrottled.
type ServerDeps struct {
	Auth          config.AuthConfig
	Accounts      *service.AccountService
	Organisations *service.OrganisationService
	Systems       *service.SystemService
	Profiles      *service.ProfileService
	Assessments   *service.AssessmentService
	SignIn        *service.AuthService
	Users         service.UserStore
	Policy        *policy.Policy
	OIDC          OIDCProvider
	Passcodes     PasscodeService
	Inbox         Inbox
	DB            Pinger
	Metrics       *metrics.Collector
	LoginLimiter  *ratelimit.Limiter
	VerifyLimiter *ratelimit.Limiter
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		auth:          deps.Auth,
		accounts:      deps.Accounts,
		organisations: deps.Organisations,
		systems:       deps.Systems,
		profiles:      deps.Profiles,
		assessments:   deps.Assessments,
		signIn:        deps.SignIn,
		users:         deps.Users,
		policy:        deps.Policy,
		oidc:          deps.OIDC,
		passcodes:     deps.Passcodes,
		inbox:         deps.Inbox,
		db:            deps.DB,
		metrics:       deps.Metrics,
		loginLimiter:  deps.LoginLimiter,
		verifyLimiter: deps.VerifyLimiter,
	}
}
