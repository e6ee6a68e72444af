package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLimiter_Allow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := &clock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	l := NewLimiter(NewMemoryStore().WithClock(clk.now), "login", Rule{Limit: 3, Window: time.Minute})

	for i := 2; i >= 0; i-- {
		res, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, i, res.Remaining)
	}

	clk.advance(20 * time.Second)
	res, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 40*time.Second, res.RetryAfter)

	other, err := l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are counted separately")

	clk.advance(41 * time.Second)
	res, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a new window starts once the old one expires")

	require.NoError(t, l.Reset(ctx, "10.0.0.1"))
	res, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
}

func TestMemoryStore_Claim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := &clock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryStore().WithClock(clk.now)

	ok, err := s.Claim(ctx, "resend:7", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, "resend:7", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	clk.advance(time.Minute)
	ok, err = s.Claim(ctx, "resend:7", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Reset(ctx, "resend:7"))
	ok, err = s.Claim(ctx, "resend:7", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_SweepsExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := &clock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryStore().WithClock(clk.now)

	for i := 0; i <= sweepAt; i++ {
		_, _, err := s.Incr(ctx, fmt.Sprintf("k%d", i), time.Second)
		require.NoError(t, err)
	}
	clk.advance(time.Second)
	_, _, err := s.Incr(ctx, "fresh", time.Second)
	require.NoError(t, err)
	assert.Len(t, s.entries, 1)
}

type brokenStore struct{}

var errDown = errors.New("redis down")

func (brokenStore) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errDown
}
func (brokenStore) Reset(context.Context, string) error { return errDown }
func (brokenStore) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errDown
}

func TestWithFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := WithFallback(brokenStore{}, NewMemoryStore())

	n, left, err := s.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, left)

	ok, err := s.Claim(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Reset(ctx, "k"))
	n, _, err = s.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
