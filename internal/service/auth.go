package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/identity"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
)

// Sign-in methods recorded on events and metrics.
const (
	MethodOIDC  = "oidc"
	MethodLocal = "local"
)

// AuthService turns a verified identity into a local user.
type AuthService struct {
	users   UserStore
	events  domain.EventPublisher
	metrics *metrics.Collector
	now     func() time.Time
}

// NewAuthService creates an AuthService. events and m may be nil.
func NewAuthService(users UserStore, events domain.EventPublisher, m *metrics.Collector) *AuthService {
	return &AuthService{users: users, events: events, metrics: m, now: time.Now}
}

func invalidCredentials() error {
	return apperrors.New(apperrors.CodeInvalidCredentials, "Enter a correct username and password.", http.StatusOK)
}

// LocalLogin checks a username and password against the bcrypt hash.
// Unknown users, inactive users and wrong passwords fail the same way.
func (s *AuthService) LocalLogin(ctx context.Context, form LoginForm) (*domain.User, error) {
	if err := validateForm(form); err != nil {
		return nil, err
	}
	user, err := s.users.GetByUsername(ctx, form.Username)
	if err != nil {
		if isNotFound(err) {
			// Spend the same time as a real comparison.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(form.Password))
			s.metrics.Login(MethodLocal, false)
			return nil, invalidCredentials()
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.IsActive || user.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(form.Password)) != nil {
		s.metrics.Login(MethodLocal, false)
		logger.Info("local sign-in refused", logger.Email("username", form.Username))
		return nil, invalidCredentials()
	}
	if err := s.signedIn(ctx, user, MethodLocal, false); err != nil {
		return nil, err
	}
	return user, nil
}

var dummyHash = func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("webcaf-timing"), bcrypt.MinCost)
	return h
}()

// SignInOIDC gets or creates the user named by the claims and re-syncs
// their profile fields.
func (s *AuthService) SignInOIDC(ctx context.Context, claims identity.Claims) (*domain.User, error) {
	username := identity.Identifier(claims)
	if username == "" {
		s.metrics.Login(MethodOIDC, false)
		return nil, apperrors.New(apperrors.CodeClaimsRejected, "the identity provider returned no usable identifier", http.StatusUnauthorized)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if isNotFound(err) {
		if email := claims.String("email"); email != "" {
			user, err = s.users.GetByEmail(ctx, email)
		}
	}
	created := false
	switch {
	case err == nil:
		updated := identity.UpdateUser(*user, claims)
		if updated != *user {
			if err := s.users.Update(ctx, updated); err != nil {
				return nil, fmt.Errorf("update user from claims: %w", err)
			}
			user = &updated
		}
	case isNotFound(err):
		u := identity.CreateUser(claims)
		if err := s.users.Create(ctx, &u); err != nil {
			return nil, fmt.Errorf("create user from claims: %w", err)
		}
		user, created = &u, true
	default:
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !user.IsActive {
		s.metrics.Login(MethodOIDC, false)
		return nil, apperrors.New(apperrors.CodeAuthFailed, "this account is disabled", http.StatusForbidden)
	}
	if err := s.signedIn(ctx, user, MethodOIDC, created); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) signedIn(ctx context.Context, user *domain.User, method string, created bool) error {
	now := s.now().UTC()
	if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	user.LastLoginAt = &now
	s.metrics.Login(method, true)
	logger.Info("user signed in",
		zap.Int64("user_id", user.ID),
		zap.String("method", method),
		zap.Bool("created", created),
	)
	publish(ctx, s.events, domain.EventUserSignedIn, "user", user.ID, user.Username, domain.SignInPayload{
		UserID:  user.ID,
		Method:  method,
		Created: created,
	})
	return nil
}

// HashPassword returns the bcrypt hash stored for local login.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
