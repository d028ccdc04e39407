package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/observability/metrics"
)

// Limit is a fixed window: at most Max requests per Window for one identifier.
type Limit struct {
	Name   string
	Max    int
	Window time.Duration
}

var (
	Inquiry   = Limit{Name: "inquiry", Max: 5, Window: time.Minute}
	Chat      = Limit{Name: "chat", Max: 20, Window: time.Minute}
	Normalize = Limit{Name: "normalize", Max: 10, Window: time.Minute}
	Admin     = Limit{Name: "admin", Max: 100, Window: time.Minute}
)

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	Reason    string
}

// Store counts hits for a key inside its current window.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

type Limiter struct {
	store Store
	now   func() time.Time
}

func NewLimiter(store Store) *Limiter {
	return NewLimiterWithClock(store, time.Now)
}

// NewLimiterWithClock computes reset times and Retry-After from now.
func NewLimiterWithClock(store Store, now func() time.Time) *Limiter {
	return &Limiter{store: store, now: now}
}

// Check records one request. Requests without an identifier and requests
// hitting a broken store are allowed.
func (l *Limiter) Check(ctx context.Context, identifier string, limit Limit) Result {
	now := l.now()
	open := Result{Allowed: true, Limit: limit.Max, Remaining: limit.Max, ResetAt: now.Add(limit.Window)}

	if identifier == "" {
		logger.Log.WithField("api", limit.Name).Warn("rate limit check without identifier, allowing")
		return open
	}
	if l.store == nil {
		return open
	}

	count, resetAt, err := l.store.Hit(ctx, limit.Name+":"+identifier, limit.Window)
	if err != nil {
		logger.Log.WithError(err).WithField("api", limit.Name).Error("rate limit store failed, allowing")
		return open
	}

	if count > int64(limit.Max) {
		metrics.RateLimited.WithLabelValues(limit.Name).Inc()
		logger.Log.WithFields(map[string]interface{}{
			"api":        limit.Name,
			"identifier": prefix(identifier, 12),
			"count":      count,
			"max":        limit.Max,
		}).Warn("rate limit exceeded")
		return Result{
			Allowed:   false,
			Limit:     limit.Max,
			Remaining: 0,
			ResetAt:   resetAt,
			Reason:    fmt.Sprintf("Too many requests. Max %d per %ds.", limit.Max, int(limit.Window.Seconds())),
		}
	}

	return Result{
		Allowed:   true,
		Limit:     limit.Max,
		Remaining: limit.Max - int(count),
		ResetAt:   resetAt,
	}
}

// RetryAfter is the whole number of seconds until the window resets.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
	if secs < 0 {
		return 0
	}
	return secs
}

func SetHeaders(w http.ResponseWriter, res Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", res.ResetAt.UTC().Format(time.RFC3339))
	if !res.Allowed {
		h.Set("Retry-After", strconv.Itoa(res.RetryAfter(time.Now())))
	}
}

// Reject writes the 429 body with the given error code.
func Reject(w http.ResponseWriter, res Result, code string) {
	SetHeaders(w, res)
	retry := res.RetryAfter(time.Now())
	api.WriteJSON(w, http.StatusTooManyRequests, api.Error{
		Error:      code,
		Detail:     res.Reason,
		RetryAfter: &retry,
	})
}

// ClientIP picks the caller address: x-real-ip, then the first
// x-forwarded-for entry, then cf-connecting-ip, then the socket peer.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
