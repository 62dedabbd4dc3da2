package asc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ErrQuotaExhausted is returned when the hourly request quota has been used up.
var ErrQuotaExhausted = errors.New("hourly API quota exhausted")

// RateLimitHeader is the response header App Store Connect uses to report
// quota state, e.g. "user-hour-lim:3600;user-hour-rem:3599;".
const RateLimitHeader = "X-Rate-Limit"

// QuotaState is the quota reported by the server.
type QuotaState struct {
	Limit     int64
	Remaining int64
}

// ParseRateLimitHeader parses an X-Rate-Limit header value. ok is false when
// neither the limit nor the remaining count is present.
func ParseRateLimitHeader(v string) (QuotaState, bool) {
	var (
		qs             QuotaState
		hasLim, hasRem bool
	)
	for _, part := range strings.Split(v, ";") {
		name, val, found := strings.Cut(strings.TrimSpace(part), ":")
		if !found {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(name) {
		case "user-hour-lim":
			qs.Limit, hasLim = n, true
		case "user-hour-rem":
			qs.Remaining, hasRem = n, true
		}
	}
	return qs, hasLim || hasRem
}

// RateLimiter controls API call rate and the hourly quota. It uses a token
// bucket for per-second pacing and a rolling window for quota tracking. The
// server's own view of the quota, when observed, takes precedence.
type RateLimiter struct {
	limiter   *rate.Limiter
	used      atomic.Int64
	maxWindow int64
	window    time.Duration
	resetAt   time.Time
	mu        sync.Mutex
	nowFunc   func() time.Time
}

// RateLimiterOption configures the RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterNowFunc overrides the time function for testing.
func WithRateLimiterNowFunc(f func() time.Time) RateLimiterOption {
	return func(r *RateLimiter) {
		r.nowFunc = f
	}
}

// WithWindow overrides the quota window (default one hour).
func WithWindow(d time.Duration) RateLimiterOption {
	return func(r *RateLimiter) {
		r.window = d
	}
}

// NewRateLimiter creates a rate limiter with the given per-second rate, burst
// size, and per-window request limit.
func NewRateLimiter(
	perSecond float64,
	burst int,
	maxPerWindow int64,
	opts ...RateLimiterOption,
) *RateLimiter {
	r := &RateLimiter{
		limiter:   rate.NewLimiter(rate.Limit(perSecond), burst),
		maxWindow: maxPerWindow,
		window:    time.Hour,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.resetAt = r.nowFunc().Add(r.window)
	return r
}

// Wait blocks until the rate limiter allows the call, or the context is
// canceled. Returns ErrQuotaExhausted once the window's quota is used up.
func (r *RateLimiter) Wait(ctx context.Context) error {
	limit := r.checkReset()

	if r.used.Load() >= limit {
		return fmt.Errorf("%w (%d/%d)", ErrQuotaExhausted, r.used.Load(), limit)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	r.used.Add(1)
	return nil
}

// Observe reconciles the local counter with a server-reported quota.
func (r *RateLimiter) Observe(qs QuotaState) {
	if qs.Limit <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxWindow = qs.Limit
	r.used.Store(qs.Limit - qs.Remaining)
}

// Used returns the number of calls counted in the current window.
func (r *RateLimiter) Used() int64 {
	return r.used.Load()
}

// Remaining returns the number of calls left in the current window.
func (r *RateLimiter) Remaining() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return max(r.maxWindow-r.used.Load(), 0)
}

// ResetAt returns when the current window expires.
func (r *RateLimiter) ResetAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resetAt
}

// checkReset starts a new window when the current one has expired and
// returns the active limit.
func (r *RateLimiter) checkReset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	if now.After(r.resetAt) {
		r.used.Store(0)
		r.resetAt = now.Add(r.window)
	}
	return r.maxWindow
}
