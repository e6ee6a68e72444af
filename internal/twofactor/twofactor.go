// Package twofactor issues and checks the emailed sign-in passcode.
//
// Each user has a TOTP secret created on first use. The current code for that
// secret is mailed to the user and accepted for Period seconds, plus Skew
// periods either side. MaxAttempts wrong codes discard the secret, so every
// outstanding code stops working until a new one is sent.
package twofactor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/notification"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
	"webcaf.gov.uk/webcaf/internal/pkg/ratelimit"
	"webcaf.gov.uk/webcaf/internal/pkg/worker"
)

var (
	// ErrCodeRejected is a wrong or expired code with attempts left.
	ErrCodeRejected = errors.New("passcode rejected")
	// ErrNewCodeRequired means no code is outstanding, usually because the
	// attempt budget was spent.
	ErrNewCodeRequired = errors.New("a new passcode is required")
	// ErrResendTooSoon is returned by Send inside the resend cooldown. The
	// previously mailed code is still valid.
	ErrResendTooSoon = errors.New("passcode sent recently")
)

// SecretStore persists the per-user TOTP secret.
type SecretStore interface {
	SetOTPSecret(ctx context.Context, id int64, secret string) error
}

// Service sends and verifies passcodes.
type Service struct {
	cfg     config.TwoFactorConfig
	users   SecretStore
	mailer  notification.Mailer
	pools    *worker.Pools
	metrics  *metrics.Collector
	attempts ratelimit.Store
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPools delivers mail on the mail pool instead of inline.
func WithPools(p *worker.Pools) Option {
	return func(s *Service) { s.pools = p }
}

// WithMetrics records sends and verifications.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAttemptStore keeps failure counts and resend cooldowns in store, so
// they are shared between instances.
func WithAttemptStore(store ratelimit.Store) Option {
	return func(s *Service) { s.attempts = store }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a passcode service.
func New(cfg config.TwoFactorConfig, users SecretStore, mailer notification.Mailer, opts ...Option) *Service {
	if cfg.Period == 0 {
		cfg.Period = 300
	}
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "WebCAF"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	s := &Service{cfg: cfg, users: users, mailer: mailer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.attempts == nil {
		s.attempts = ratelimit.NewMemoryStore()
	}
	return s
}

func failuresKey(userID int64) string { return "2fa:failures:" + strconv.FormatInt(userID, 10) }
func resendKey(userID int64) string   { return "2fa:resend:" + strconv.FormatInt(userID, 10) }

// codeLifetime is how long one mailed code can verify.
func (s *Service) codeLifetime() time.Duration {
	return time.Duration(s.cfg.Period*(2*s.cfg.Skew+1)) * time.Second
}

func (s *Service) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    s.cfg.Period,
		Skew:      s.cfg.Skew,
		Digits:    otp.Digits(s.cfg.Digits),
		Algorithm: otp.AlgorithmSHA1,
	}
}

// EnsureSecret returns the user's secret, creating and storing one if needed.
// user.OTPSecret is updated in place.
func (s *Service) EnsureSecret(ctx context.Context, user *domain.User) (string, error) {
	if user.OTPSecret != "" {
		return user.OTPSecret, nil
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.Issuer,
		AccountName: user.Username,
		Period:      s.cfg.Period,
		Digits:      otp.Digits(s.cfg.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate otp secret: %w", err)
	}
	if err := s.users.SetOTPSecret(ctx, user.ID, key.Secret()); err != nil {
		return "", fmt.Errorf("store otp secret: %w", err)
	}
	user.OTPSecret = key.Secret()
	return user.OTPSecret, nil
}

// Code returns the passcode valid now for secret.
func (s *Service) Code(secret string) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, s.now(), s.opts())
	if err != nil {
		return "", fmt.Errorf("generate passcode: %w", err)
	}
	return code, nil
}

// Send mails the current passcode to the user. Inside the resend cooldown
// nothing is sent and ErrResendTooSoon is returned.
func (s *Service) Send(ctx context.Context, user *domain.User) error {
	if user.Email == "" {
		return fmt.Errorf("user %d has no email address", user.ID)
	}
	if s.cfg.ResendCooldown > 0 {
		claimed, err := s.attempts.Claim(ctx, resendKey(user.ID), s.cfg.ResendCooldown)
		if err != nil {
			return fmt.Errorf("check resend cooldown: %w", err)
		}
		if !claimed && user.OTPSecret != "" {
			return ErrResendTooSoon
		}
	}
	secret, err := s.EnsureSecret(ctx, user)
	if err != nil {
		return err
	}
	code, err := s.Code(secret)
	if err != nil {
		return err
	}

	mail := notification.Mail{
		To:      user.Email,
		Subject: "Your WebCAF sign-in code",
		Body: fmt.Sprintf("Your WebCAF sign-in code is %s.\n\nThe code expires in %d minutes.\n",
			code, max(s.cfg.Period/60, 1)),
	}
	deliver := func(ctx context.Context) {
		if err := s.mailer.Send(ctx, mail); err != nil {
			logger.Error("passcode delivery failed", logger.Email("to", mail.To), zap.Error(err))
			return
		}
		s.metrics.TwoFactor("sent")
	}

	if s.pools == nil {
		deliver(ctx)
		return nil
	}
	if err := s.pools.SubmitDetached(worker.PoolMail, deliver); err != nil {
		return fmt.Errorf("queue passcode mail: %w", err)
	}
	return nil
}

// Verify checks code against the user's secret. A wrong code returns
// ErrCodeRejected until MaxAttempts is reached; the secret is then discarded
// and ErrNewCodeRequired returned. user.OTPSecret is updated in place.
func (s *Service) Verify(ctx context.Context, user *domain.User, code string) error {
	if user.OTPSecret == "" {
		s.metrics.TwoFactor("failure")
		return ErrNewCodeRequired
	}
	code = strings.TrimSpace(code)
	if code == "" {
		s.metrics.TwoFactor("failure")
		return ErrCodeRejected
	}
	ok, err := totp.ValidateCustom(code, user.OTPSecret, s.now(), s.opts())
	if err != nil {
		logger.Debug("passcode rejected", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if ok {
		if err := s.attempts.Reset(ctx, failuresKey(user.ID)); err != nil {
			logger.Warn("reset passcode failures", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		s.metrics.TwoFactor("success")
		return nil
	}

	s.metrics.TwoFactor("failure")
	failures, _, err := s.attempts.Incr(ctx, failuresKey(user.ID), s.codeLifetime())
	if err != nil {
		return fmt.Errorf("count passcode failure: %w", err)
	}
	if failures < int64(s.cfg.MaxAttempts) {
		return ErrCodeRejected
	}

	if err := s.users.SetOTPSecret(ctx, user.ID, ""); err != nil {
		return fmt.Errorf("discard otp secret: %w", err)
	}
	user.OTPSecret = ""
	for _, key := range []string{failuresKey(user.ID), resendKey(user.ID)} {
		if err := s.attempts.Reset(ctx, key); err != nil {
			logger.Warn("reset passcode counters", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}
	s.metrics.TwoFactor("locked")
	logger.Warn("passcode attempts exhausted", zap.Int64("user_id", user.ID), zap.Int("attempts", s.cfg.MaxAttempts))
	return ErrNewCodeRequired
}
