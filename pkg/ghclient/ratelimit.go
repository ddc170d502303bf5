/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ghclient

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// GitHub rate limit headers, in Go canonical form.
// https://docs.github.com/en/rest/using-the-rest-api/rate-limits-for-the-rest-api#checking-the-status-of-your-rate-limit
const (
	HeaderRetryAfter          = "Retry-After"
	HeaderXRateLimitReset     = "X-Ratelimit-Reset"
	HeaderXRateLimitRemaining = "X-Ratelimit-Remaining"
)

var mRateLimitPauses = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "github_rate_limit_pauses_total",
		Help: "The number of times outgoing GitHub requests were paused for rate limiting",
	},
	[]string{"reason"},
)

// RateLimitTransport pauses every request sharing it once GitHub reports a
// primary or secondary rate limit, then retries the limited request.
type RateLimitTransport struct {
	base              http.RoundTripper
	clock             clockwork.Clock
	limiter           *pausableLimiter
	defaultRetryAfter time.Duration
	maxRetries        int
}

// RateLimitOption configures a RateLimitTransport.
type RateLimitOption func(*RateLimitTransport)

// WithClock replaces the wall clock, for tests.
func WithClock(c clockwork.Clock) RateLimitOption {
	return func(t *RateLimitTransport) {
		t.clock = c
		t.limiter.clock = c
	}
}

// WithDefaultRetryAfter sets the pause used when GitHub limits a request
// without saying for how long.
func WithDefaultRetryAfter(d time.Duration) RateLimitOption {
	return func(t *RateLimitTransport) { t.defaultRetryAfter = d }
}

// WithMaxRetries bounds how often one request is retried after a pause.
func WithMaxRetries(n int) RateLimitOption {
	return func(t *RateLimitTransport) { t.maxRetries = n }
}

// NewRateLimitTransport wraps base. A nil base uses http.DefaultTransport.
func NewRateLimitTransport(base http.RoundTripper, opts ...RateLimitOption) *RateLimitTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	clock := clockwork.NewRealClock()
	t := &RateLimitTransport{
		base:              base,
		clock:             clock,
		limiter:           &pausableLimiter{base: rate.NewLimiter(rate.Inf, 100), clock: clock},
		defaultRetryAfter: time.Minute,
		maxRetries:        3,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *RateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	for attempt := 0; ; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return resp, err
		}

		pause, reason, limited := pauseFor(resp, t.clock.Now(), t.defaultRetryAfter)
		if !limited {
			return resp, nil
		}
		mRateLimitPauses.WithLabelValues(reason).Inc()
		clog.FromContext(ctx).With("retry_after", pause, "reason", reason, "attempt", attempt).
			Warn("GitHub rate limit hit, pausing requests")
		t.limiter.PauseFor(pause)

		if attempt >= t.maxRetries || (req.GetBody == nil && req.Body != nil) {
			// Out of retries, or the body was consumed and cannot be replayed.
			return resp, nil
		}
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return resp, nil
			}
			req.Body = body
		}
		resp.Body.Close()
	}
}

// pauseFor decides whether resp is a rate limit response and for how long
// to pause. A 403 only counts when GitHub says the limit is exhausted, since
// the same status also means "permission denied".
func pauseFor(resp *http.Response, now time.Time, fallback time.Duration) (time.Duration, string, bool) {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return 0, "", false
	}

	if v := resp.Header.Get(HeaderRetryAfter); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second, "retry_after", true
		}
	}

	exhausted := resp.Header.Get(HeaderXRateLimitRemaining) == "0"
	if exhausted {
		if v := resp.Header.Get(HeaderXRateLimitReset); v != "" {
			if seconds, err := strconv.ParseInt(v, 10, 64); err == nil {
				if d := time.Unix(seconds, 0).Sub(now); d > 0 {
					return d, "reset", true
				}
			}
		}
		return fallback, "exhausted", true
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fallback, "too_many_requests", true
	}
	return 0, "", false
}

// pausableLimiter is a rate.Limiter that can additionally block all callers
// until a deadline.
type pausableLimiter struct {
	base  *rate.Limiter
	clock clockwork.Clock

	mu         sync.Mutex
	pauseUntil time.Time
}

// Wait blocks until any active pause is over and the rate limiter admits
// the request.
func (l *pausableLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		d := l.pauseUntil.Sub(l.clock.Now())
		l.mu.Unlock()
		if d <= 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(d):
		}
	}
	return l.base.Wait(ctx)
}

// PauseFor blocks requests for d, unless a longer pause is already active.
func (l *pausableLimiter) PauseFor(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until := l.clock.Now().Add(d); until.After(l.pauseUntil) {
		l.pauseUntil = until
	}
}
