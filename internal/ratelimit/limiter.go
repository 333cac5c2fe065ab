package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/config"
	"github.com/html-librarian/mig-catalog/internal/util"
)

const keyPrefix = "rate_limit:"

// Store is the shared counter backend, satisfied by *client.RedisClient.
// A nil store means the limiter runs purely in process.
type Store interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Del(ctx context.Context, keys ...string) error
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type windowEntry struct {
	count       int
	windowStart time.Time
}

// Limiter enforces fixed-window request limits keyed by (identifier,
// endpoint). Counters live in the shared store when it is reachable; any
// store failure degrades to a per-process map so a Redis outage throttles
// less accurately instead of failing requests.
type Limiter struct {
	cfg    config.RateLimitConfig
	store  Store
	logger *zap.Logger

	mu        sync.Mutex
	entries   map[string]*windowEntry
	lastSweep time.Time
	downUntil time.Time

	now func() time.Time
}

// NewLimiter builds a limiter. store may be nil to force in-process counting.
func NewLimiter(cfg config.RateLimitConfig, store Store, logger *zap.Logger) *Limiter {
	return &Limiter{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

// Check records one request from identifier against endpoint and reports
// whether it is allowed. The limit is chosen by longest-prefix match of the
// endpoint against the configured rules.
func (l *Limiter) Check(ctx context.Context, identifier, endpoint string) Result {
	maxRequests, window := l.limitsFor(endpoint)

	if !l.cfg.Enabled {
		return Result{Allowed: true, Limit: maxRequests, Remaining: maxRequests}
	}

	key := keyPrefix + identifier + ":" + endpoint

	if l.storeAvailable() {
		res, err := l.checkStore(ctx, key, maxRequests, window)
		if err == nil {
			return res
		}
		l.markStoreDown(err)
	}

	return l.checkMemory(key, maxRequests, window)
}

// limitsFor resolves the (max requests, window) pair for an endpoint by
// longest-prefix match, falling back to the default limit.
func (l *Limiter) limitsFor(endpoint string) (int, time.Duration) {
	maxRequests := l.cfg.DefaultMax
	window := l.cfg.DefaultWindow

	best := -1
	for _, rule := range l.cfg.Rules {
		if strings.HasPrefix(endpoint, rule.Prefix) && len(rule.Prefix) > best {
			best = len(rule.Prefix)
			maxRequests = rule.MaxRequests
			window = rule.Window
		}
	}

	return maxRequests, window
}

func (l *Limiter) checkStore(ctx context.Context, key string, maxRequests int, window time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		return Result{}, err
	}

	// First hit in the window owns the key lifetime. Redis increments are
	// atomic, so exactly one caller observes count == 1.
	if count == 1 {
		if err := l.store.Expire(ctx, key, window); err != nil {
			// Without a TTL the counter never resets and would throttle
			// this key forever once the store recovers. Drop it so the
			// next window starts clean.
			delCtx, cancel := context.WithTimeout(context.Background(), l.cfg.StoreTimeout)
			if delErr := l.store.Del(delCtx, key); delErr != nil {
				l.logger.Warn("failed to drop counter without TTL",
					util.String("key", key), util.ErrorField(delErr))
			}
			cancel()
			return Result{}, err
		}
	}

	if count > int64(maxRequests) {
		retryAfter, err := l.store.TTL(ctx, key)
		if err != nil || retryAfter <= 0 {
			retryAfter = window
		}
		return Result{Allowed: false, Limit: maxRequests, RetryAfter: retryAfter}, nil
	}

	return Result{
		Allowed:   true,
		Limit:     maxRequests,
		Remaining: maxRequests - int(count),
	}, nil
}

func (l *Limiter) checkMemory(key string, maxRequests int, window time.Duration) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.windowStart) >= window {
		l.entries[key] = &windowEntry{count: 1, windowStart: now}
		return Result{Allowed: true, Limit: maxRequests, Remaining: maxRequests - 1}
	}

	entry.count++
	if entry.count > maxRequests {
		retryAfter := window - now.Sub(entry.windowStart)
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return Result{Allowed: false, Limit: maxRequests, RetryAfter: retryAfter}
	}

	return Result{
		Allowed:   true,
		Limit:     maxRequests,
		Remaining: maxRequests - entry.count,
	}
}

// sweepLocked drops entries past the retention horizon. Runs at most once
// per sweep interval to keep the common path cheap. Caller holds l.mu.
func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.cfg.SweepInterval {
		return
	}
	l.lastSweep = now

	removed := 0
	for key, entry := range l.entries {
		if now.Sub(entry.windowStart) > l.cfg.EntryRetention {
			delete(l.entries, key)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("swept stale rate limit entries", util.Int("removed", removed))
	}
}

func (l *Limiter) storeAvailable() bool {
	if l.store == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now().After(l.downUntil)
}

// markStoreDown starts the store cooldown so subsequent checks go straight
// to the in-process map instead of timing out on every request.
func (l *Limiter) markStoreDown(err error) {
	l.mu.Lock()
	l.downUntil = l.now().Add(l.cfg.StoreCooldown)
	l.mu.Unlock()

	l.logger.Warn("rate limit store unavailable, falling back to in-process counters",
		util.Duration("cooldown", l.cfg.StoreCooldown),
		util.ErrorField(err))
}
