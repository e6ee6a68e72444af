// Package ratelimit counts attempts in fixed windows.
//
// Counters live in Redis when several instances must share a budget, or in
// process memory otherwise. A Redis store can fall back to memory so an
// outage degrades to per-instance limits instead of no limits.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// Store holds the counters.
type Store interface {
	// Incr adds one to key and returns the new count and the time left in
	// its window. The window starts on the first hit.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Reset forgets key.
	Reset(ctx context.Context, key string) error
	// Claim sets key for ttl only when it is absent and reports whether it did.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisStore keeps counters in Redis under prefix.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := s.prefix + key
	var (
		count *redis.IntCmd
		ttl   *redis.DurationCmd
	)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		count = p.Incr(ctx, k)
		ttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("incr %s: %w", key, err)
	}
	left := ttl.Val()
	if left <= 0 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("expire %s: %w", key, err)
		}
		left = window
	}
	return count.Val(), left, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("reset %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// sweepAt is the entry count above which expired entries are swept.
const sweepAt = 1024

type entry struct {
	count   int64
	expires time.Time
}

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry), now: time.Now}
}

// WithClock overrides time.Now, for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// live returns key's entry when it has not expired. Callers hold mu.
func (s *MemoryStore) live(key string, now time.Time) (entry, bool) {
	e, ok := s.entries[key]
	if !ok || !now.Before(e.expires) {
		return entry{}, false
	}
	return e, true
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if len(s.entries) > sweepAt {
		for k, e := range s.entries {
			if !now.Before(e.expires) {
				delete(s.entries, k)
			}
		}
	}
	e, ok := s.live(key, now)
	if !ok {
		e = entry{expires: now.Add(window)}
	}
	e.count++
	s.entries[key] = e
	return e.count, e.expires.Sub(now), nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if _, ok := s.live(key, now); ok {
		return false, nil
	}
	s.entries[key] = entry{count: 1, expires: now.Add(ttl)}
	return true, nil
}

// fallbackStore uses secondary whenever primary fails.
type fallbackStore struct {
	primary, secondary Store
}

// WithFallback returns a store that answers from secondary when primary
// errors.
func WithFallback(primary, secondary Store) Store {
	return &fallbackStore{primary: primary, secondary: secondary}
}

func (s *fallbackStore) warn(op string, err error) {
	logger.Warn("rate limit store failed, using in-memory counters", zap.String("op", op), zap.Error(err))
}

func (s *fallbackStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	n, left, err := s.primary.Incr(ctx, key, window)
	if err != nil {
		s.warn("incr", err)
		return s.secondary.Incr(ctx, key, window)
	}
	return n, left, nil
}

func (s *fallbackStore) Reset(ctx context.Context, key string) error {
	if err := s.primary.Reset(ctx, key); err != nil {
		s.warn("reset", err)
	}
	return s.secondary.Reset(ctx, key)
}

func (s *fallbackStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.primary.Claim(ctx, key, ttl)
	if err != nil {
		s.warn("claim", err)
		return s.secondary.Claim(ctx, key, ttl)
	}
	return ok, nil
}

// Rule is Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter applies one Rule to keys in a Store.
type Limiter struct {
	name  string
	rule  Rule
	store Store
}

// NewLimiter creates a limiter. name namespaces its keys in the store.
func NewLimiter(store Store, name string, rule Rule) *Limiter {
	return &Limiter{name: name, rule: rule, store: store}
}

// Name is the limiter's key namespace.
func (l *Limiter) Name() string {
	return l.name
}

// Allow counts one request for key.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	n, left, err := l.store.Incr(ctx, l.name+":"+key, l.rule.Window)
	if err != nil {
		return Result{}, err
	}
	if n > int64(l.rule.Limit) {
		return Result{RetryAfter: left}, nil
	}
	return Result{Allowed: true, Remaining: l.rule.Limit - int(n)}, nil
}

// Reset clears key's count.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, l.name+":"+key)
}
