package twofactor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/notification"
	"webcaf.gov.uk/webcaf/internal/pkg/ratelimit"
)

type secretStore struct {
	mu      sync.Mutex
	secrets map[int64]string
	err     error
}

func (s *secretStore) SetOTPSecret(_ context.Context, id int64, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.secrets == nil {
		s.secrets = map[int64]string{}
	}
	s.secrets[id] = secret
	return nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notification.Mail
}

func (m *recordingMailer) Send(_ context.Context, mail notification.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return nil
}

var testCfg = config.TwoFactorConfig{Issuer: "WebCAF", Period: 300, Digits: 6, Skew: 1}

func TestService_SendStoresSecretAndMailsCode(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &secretStore{}
	mailer := &recordingMailer{}
	svc := New(testCfg, store, mailer, WithClock(func() time.Time { return now }))

	user := &domain.User{ID: 9, Username: "alice@example.gov.uk", Email: "alice@example.gov.uk"}
	require.NoError(t, svc.Send(context.Background(), user))

	require.NotEmpty(t, user.OTPSecret)
	assert.Equal(t, user.OTPSecret, store.secrets[9])
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "alice@example.gov.uk", mailer.sent[0].To)

	code, err := svc.Code(user.OTPSecret)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Contains(t, mailer.sent[0].Body, code)
	assert.Contains(t, mailer.sent[0].Body, "5 minutes")

	// A second send reuses the stored secret.
	secret := user.OTPSecret
	require.NoError(t, svc.Send(context.Background(), user))
	assert.Equal(t, secret, user.OTPSecret)
	assert.Len(t, mailer.sent, 2)
}

func TestService_SendErrors(t *testing.T) {
	t.Parallel()

	svc := New(testCfg, &secretStore{err: errors.New("db down")}, &recordingMailer{})

	err := svc.Send(context.Background(), &domain.User{ID: 1})
	assert.ErrorContains(t, err, "no email address")

	err = svc.Send(context.Background(), &domain.User{ID: 1, Username: "bob", Email: "bob@example.gov.uk"})
	assert.ErrorContains(t, err, "db down")
}

func TestService_Verify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := issued
	svc := New(testCfg, &secretStore{}, &recordingMailer{}, WithClock(func() time.Time { return clock }))

	user := &domain.User{ID: 3, Username: "carol"}
	_, err := svc.EnsureSecret(ctx, user)
	require.NoError(t, err)
	code, err := svc.Code(user.OTPSecret)
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	tests := []struct {
		name  string
		after time.Duration
		code  string
		want  error
	}{
		{"same period", time.Minute, code, nil},
		{"padded with spaces", time.Minute, " " + code + " ", nil},
		{"within skew", 7 * time.Minute, code, nil},
		{"expired", 20 * time.Minute, code, ErrCodeRejected},
		{"wrong code", 0, wrong, ErrCodeRejected},
		{"empty", 0, "", ErrCodeRejected},
	}
	for _, tt := range tests {
		clock = issued.Add(tt.after)
		assert.ErrorIs(t, svc.Verify(ctx, user, tt.code), tt.want, tt.name)
	}

	assert.ErrorIs(t, svc.Verify(ctx, &domain.User{ID: 4}, code), ErrNewCodeRequired, "user without a secret")
}

func TestService_VerifyAttemptBudget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &secretStore{}
	mailer := &recordingMailer{}
	cfg := testCfg
	cfg.MaxAttempts = 5
	cfg.ResendCooldown = time.Minute
	svc := New(cfg, store, mailer, WithClock(func() time.Time { return now }))

	user := &domain.User{ID: 5, Username: "dan", Email: "dan@example.gov.uk"}
	require.NoError(t, svc.Send(ctx, user))
	code, err := svc.Code(user.OTPSecret)
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 1; i < cfg.MaxAttempts; i++ {
		assert.ErrorIs(t, svc.Verify(ctx, user, wrong), ErrCodeRejected, "attempt %d", i)
	}
	assert.ErrorIs(t, svc.Verify(ctx, user, wrong), ErrNewCodeRequired)
	assert.Empty(t, user.OTPSecret)
	assert.Empty(t, store.secrets[5], "the secret is discarded")

	// The mailed code no longer works, however many tries follow.
	for i := 0; i < 100; i++ {
		require.ErrorIs(t, svc.Verify(ctx, user, code), ErrNewCodeRequired)
	}

	// A new code can be sent straight away and works.
	require.NoError(t, svc.Send(ctx, user))
	require.Len(t, mailer.sent, 2)
	fresh, err := svc.Code(user.OTPSecret)
	require.NoError(t, err)
	assert.NoError(t, svc.Verify(ctx, user, fresh))
}

func TestService_VerifySuccessResetsFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := New(testCfg, &secretStore{}, &recordingMailer{}, WithClock(func() time.Time { return now }))
	user := &domain.User{ID: 6, Username: "eve"}
	_, err := svc.EnsureSecret(ctx, user)
	require.NoError(t, err)
	code, err := svc.Code(user.OTPSecret)
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for round := 0; round < 3; round++ {
		for i := 0; i < 4; i++ {
			require.ErrorIs(t, svc.Verify(ctx, user, wrong), ErrCodeRejected)
		}
		require.NoError(t, svc.Verify(ctx, user, code))
	}
}

func TestService_SendCooldown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	attempts := ratelimit.NewMemoryStore().WithClock(func() time.Time { return clock })
	mailer := &recordingMailer{}
	cfg := testCfg
	cfg.ResendCooldown = time.Minute
	svc := New(cfg, &secretStore{}, mailer,
		WithClock(func() time.Time { return clock }),
		WithAttemptStore(attempts),
	)

	user := &domain.User{ID: 7, Username: "fay", Email: "fay@example.gov.uk"}
	require.NoError(t, svc.Send(ctx, user))
	for i := 0; i < 10; i++ {
		assert.ErrorIs(t, svc.Send(ctx, user), ErrResendTooSoon)
	}
	assert.Len(t, mailer.sent, 1)

	clock = clock.Add(time.Minute)
	require.NoError(t, svc.Send(ctx, user))
	assert.Len(t, mailer.sent, 2)
}
