// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/donorhub/internal/app/system/auditlog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Counter decides whether one more attempt under key is allowed.
type Counter interface {
	Allow(ctx context.Context, key string) bool
	Reset(ctx context.Context, key string)
}

// Limiter is an in-process fixed-window counter. It is safe for concurrent
// use. Call Stop to end the cleanup goroutine.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	duration time.Duration
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

type window struct {
	count     int
	expiresAt time.Time
}

// New creates a limiter allowing limit requests per duration per key.
func New(limit int, duration time.Duration) *Limiter {
	l := &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.cleanupLoop(duration * 2)
	return l
}

// Allow reports whether a request under key is allowed and counts it.
func (l *Limiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.expiresAt) {
		l.windows[key] = &window{count: 1, expiresAt: now.Add(l.duration)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Remaining returns how many requests are left for key in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || l.now().After(w.expiresAt) {
		return l.limit
	}
	return max(l.limit-w.count, 0)
}

// Reset clears the window for key.
func (l *Limiter) Reset(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, w := range l.windows {
				if now.After(w.expiresAt) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// RedisLimiter shares counters between processes. Errors talking to Redis
// fail open.
type RedisLimiter struct {
	rdb      redis.UniversalClient
	prefix   string
	limit    int
	duration time.Duration
	logger   *zap.Logger
}

func NewRedis(rdb redis.UniversalClient, prefix string, limit int, duration time.Duration, logger *zap.Logger) *RedisLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix, limit: limit, duration: duration, logger: logger}
}

func (r *RedisLimiter) key(k string) string { return r.prefix + ":" + k }

func (r *RedisLimiter) Allow(ctx context.Context, key string) bool {
	k := r.key(key)
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, r.duration)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("rate limit counter unavailable", zap.String("key", k), zap.Error(err))
		return true
	}
	return incr.Val() <= int64(r.limit)
}

func (r *RedisLimiter) Reset(ctx context.Context, key string) {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Warn("rate limit reset failed", zap.String("key", key), zap.Error(err))
	}
}

// LoginLimiter tracks attempts per client IP and per email, so both
// distributed attacks and attacks on one account are slowed down. It guards
// sign-in, sign-up and password reset requests.
type LoginLimiter struct {
	ip    Counter
	email Counter
}

// NewLoginLimiter uses in-process limiters: 10 attempts per IP per minute and
// 5 per email per 5 minutes.
func NewLoginLimiter() *LoginLimiter {
	return NewLoginLimiterWith(New(10, time.Minute), New(5, 5*time.Minute))
}

func NewLoginLimiterWith(ip, email Counter) *LoginLimiter {
	return &LoginLimiter{ip: ip, email: email}
}

// Check reports whether the attempt may proceed, with a user-facing reason
// when it may not.
func (ll *LoginLimiter) Check(r *http.Request, email string) (bool, string) {
	ctx := r.Context()
	if !ll.ip.Allow(ctx, "ip:"+auditlog.ClientIP(r)) {
		return false, "Too many attempts. Please wait a minute before trying again."
	}
	if key := emailKey(email); key != "" {
		if !ll.email.Allow(ctx, "email:"+key) {
			return false, "Too many attempts for this account. Please wait a few minutes."
		}
	}
	return true, ""
}

// ResetEmail clears the per-email window after a successful sign-in.
func (ll *LoginLimiter) ResetEmail(ctx context.Context, email string) {
	if key := emailKey(email); key != "" {
		ll.email.Reset(ctx, "email:"+key)
	}
}

// Stop ends background cleanup for in-process counters.
func (ll *LoginLimiter) Stop() {
	for _, c := range []Counter{ll.ip, ll.email} {
		if l, ok := c.(*Limiter); ok {
			l.Stop()
		}
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
