package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/config"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/response"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/observability"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/security"
)

// Limiter admits or rejects one request for a key within a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}

type fixedWindow struct {
	count       int
	windowStart time.Time
}

// localFixedWindowLimiter is the in-process fallback. Counters are
// per-instance, so limits multiply by the replica count.
type localFixedWindowLimiter struct {
	mu        sync.Mutex
	store     map[string]*fixedWindow
	nextSweep time.Time
	now       func() time.Time
}

func NewLocalFixedWindowLimiter() Limiter {
	return &localFixedWindowLimiter{
		store:     make(map[string]*fixedWindow),
		nextSweep: time.Now().Add(time.Minute),
		now:       time.Now,
	}
}

func (l *localFixedWindowLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextSweep) {
		for k, v := range l.store {
			if now.Sub(v.windowStart) > 2*window {
				delete(l.store, k)
			}
		}
		l.nextSweep = now.Add(window)
	}

	entry, ok := l.store[key]
	if !ok || now.Sub(entry.windowStart) >= window {
		l.store[key] = &fixedWindow{count: 1, windowStart: now}
		return true, 0, nil
	}
	if entry.count >= limit {
		retryAfter := window - now.Sub(entry.windowStart)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}
	entry.count++
	return true, 0, nil
}

// RateLimiterOptions configures one admission scope (login, refresh, api).
type RateLimiterOptions struct {
	Scope   string
	Limit   int
	Window  time.Duration
	Mode    config.FailureMode
	Limiter Limiter // shared backend; nil falls back to in-process counting
	KeyFunc func(r *http.Request) string
	Bypass  BypassEvaluator
	Logger  *slog.Logger
}

type RateLimiter struct {
	scope    string
	limit    int
	window   time.Duration
	mode     config.FailureMode
	primary  Limiter
	fallback Limiter
	keyFunc  func(r *http.Request) string
	bypass   BypassEvaluator
	logger   *slog.Logger
}

func NewRateLimiter(opts RateLimiterOptions) *RateLimiter {
	if opts.Scope == "" {
		opts.Scope = "api"
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = clientIPKey
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	rl := &RateLimiter{
		scope:    opts.Scope,
		limit:    opts.Limit,
		window:   opts.Window,
		mode:     opts.Mode,
		primary:  opts.Limiter,
		fallback: NewLocalFixedWindowLimiter(),
		keyFunc:  opts.KeyFunc,
		bypass:   opts.Bypass,
		logger:   opts.Logger,
	}
	if rl.primary == nil {
		rl.primary = rl.fallback
	}
	return rl
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.bypass != nil {
				if ok, reason := rl.bypass(r); ok {
					rl.logger.Debug("rate limit bypassed",
						slog.String("scope", rl.scope),
						slog.String("reason", reason))
					next.ServeHTTP(w, r)
					return
				}
			}

			key := rl.keyFunc(r)
			if key == "" {
				key = clientIPKey(r)
			}

			allowed, retryAfter, err := rl.primary.Allow(r.Context(), rl.scope+":"+key, rl.limit, rl.window)
			if err != nil {
				rl.handleBackendFailure(w, r, next, key, err)
				return
			}
			if !allowed {
				rl.deny(w, r, retryAfter)
				return
			}
			observability.RecordRateLimitEvent(r.Context(), rl.scope, "allowed")
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) handleBackendFailure(w http.ResponseWriter, r *http.Request, next http.Handler, key string, err error) {
	observability.RecordRateLimitEvent(r.Context(), rl.scope, "backend_error")
	rl.logger.Warn("rate limiter backend unavailable",
		slog.String("scope", rl.scope),
		slog.String("mode", string(rl.mode)),
		slog.String("error", err.Error()))

	switch rl.mode {
	case config.FailOpen:
		next.ServeHTTP(w, r)
	case config.FailClosed:
		rl.deny(w, r, rl.window)
	default: // fail_local: keep limiting with per-instance counters
		allowed, retryAfter, ferr := rl.fallback.Allow(r.Context(), rl.scope+":"+key, rl.limit, rl.window)
		if ferr != nil || !allowed {
			rl.deny(w, r, retryAfter)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func (rl *RateLimiter) deny(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	observability.RecordRateLimitEvent(r.Context(), rl.scope, "denied")
	w.Header().Set("Retry-After", retryAfterHeader(retryAfter))
	response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
}

// SubjectOrIPKeyFunc keys by the authenticated subject when a valid access
// token is present, else by client IP. An attacker cannot spend another
// user's budget without holding their token.
func SubjectOrIPKeyFunc(jwtMgr *security.JWTManager) func(r *http.Request) string {
	return func(r *http.Request) string {
		if jwtMgr == nil {
			return clientIPKey(r)
		}
		raw := ExtractAccessToken(r)
		if raw == "" {
			return clientIPKey(r)
		}
		claims, err := jwtMgr.ParseAccessToken(raw)
		if err != nil || strings.TrimSpace(claims.Subject) == "" {
			return clientIPKey(r)
		}
		return "sub:" + claims.Subject
	}
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
