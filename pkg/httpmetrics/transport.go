/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package httpmetrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

const githubAPIHost = "api.github.com"

var (
	mReqCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_client_request_count",
			Help: "The total number of HTTP requests",
		},
		[]string{"code", "method", "host", "path", "service_name"},
	)
	mReqInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_client_request_in_flight",
			Help: "The number of outgoing HTTP requests currently inflight",
		},
		[]string{"method", "host", "path", "service_name"},
	)
	mReqDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_client_request_duration_seconds",
			Help:    "The duration of HTTP requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"code", "method", "host", "path", "service_name"},
	)
	seenHostMap = sync.Map{}
)

var buckets = map[string]string{
	githubAPIHost: "GH API",
	"github.com":  "GitHub",
}

// SetBuckets replaces the exact host to bucket mapping.
func SetBuckets(b map[string]string) { buckets = b }

// Transport is an http.RoundTripper that records metrics for each request.
var Transport = WrapTransport(http.DefaultTransport)

// WrapTransport wraps an http.RoundTripper with instrumentation.
func WrapTransport(t http.RoundTripper) http.RoundTripper {
	return instrumentRoundTripperCounter(
		instrumentRoundTripperInFlight(
			instrumentRoundTripperDuration(
				instrumentGitHubRateLimits(
					otelhttp.NewTransport(t)))))
}

func mapErrorToLabel(err error) string {
	switch msg := err.Error(); {
	case strings.Contains(msg, "context canceled"):
		return "context-canceled"
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "i/o timeout"):
		return "io-timeout"
	case strings.Contains(msg, "TLS handshake"):
		return "tls-handshake-error"
	case strings.Contains(msg, "unexpected EOF"):
		return "unexpected-eof"
	}
	return "unknown-error"
}

func labelsFor(r *http.Request) prometheus.Labels {
	host := bucketize(r.Context(), r.URL.Host)
	path := ""
	if r.URL.Host == githubAPIHost {
		path = bucketizePath(r.URL.Path)
	}
	return prometheus.Labels{
		"method":       r.Method,
		"host":         host,
		"path":         path,
		"service_name": env.ServiceName,
	}
}

func withCode(l prometheus.Labels, code string) prometheus.Labels {
	out := make(prometheus.Labels, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	out["code"] = code
	return out
}

func instrumentRoundTripperCounter(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		labels := labelsFor(r)
		ctx, span := otel.Tracer("httpmetrics").Start(r.Context(), fmt.Sprintf("http-%s-%s", r.Method, labels["host"]))
		r = r.WithContext(ctx)
		defer span.End()

		resp, err := next.RoundTrip(r)
		if err != nil {
			mReqCount.With(withCode(labels, mapErrorToLabel(err))).Inc()
			return resp, err
		}
		mReqCount.With(withCode(labels, strconv.Itoa(resp.StatusCode))).Inc()
		return resp, nil
	}
}

func instrumentRoundTripperInFlight(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		g := mReqInFlight.With(labelsFor(r))
		g.Inc()
		defer g.Dec()
		return next.RoundTrip(r)
	}
}

func instrumentRoundTripperDuration(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(r)
		if err == nil {
			mReqDuration.With(withCode(labelsFor(r), strconv.Itoa(resp.StatusCode))).Observe(time.Since(start).Seconds())
		}
		return resp, err
	}
}

func bucketize(ctx context.Context, host string) string {
	if b, ok := buckets[host]; ok {
		return b
	}

	v, _ := seenHostMap.LoadOrStore(host, &atomic.Int64{})
	if seen := v.(*atomic.Int64).Add(1); (seen-1)%10 == 0 {
		clog.WarnContext(ctx, `bucketing host as "other", use httpmetrics.SetBuckets`, "host", host, "seen", seen)
	}
	return "other"
}

var (
	mGitHubRateLimitRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "github_rate_limit_remaining",
			Help: "The number of requests remaining in the current rate limit window",
		},
		[]string{"resource"},
	)
	mGitHubRateLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "github_rate_limit",
			Help: "The number of requests allowed during the rate limit window",
		},
		[]string{"resource"},
	)
	mGitHubRateLimitReset = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "github_rate_limit_reset",
			Help: "The timestamp at which the current rate limit window resets",
		},
		[]string{"resource"},
	)
	mGitHubRateLimitUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "github_rate_limit_used",
			Help: "The fraction of the rate limit window used",
		},
		[]string{"resource"},
	)
)

// instrumentGitHubRateLimits records the rate limit headers GitHub returns.
// See https://docs.github.com/en/rest/using-the-rest-api/rate-limits-for-the-rest-api
func instrumentGitHubRateLimits(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		resp, err := next.RoundTrip(r)
		if err != nil || r.URL.Host != githubAPIHost {
			return resp, err
		}
		resource := resp.Header.Get("X-RateLimit-Resource")
		if resource == "" {
			resource = "unknown"
		}
		val := func(key string) float64 {
			i, err := strconv.Atoi(resp.Header.Get(key))
			if err != nil {
				return 0
			}
			return float64(i)
		}
		labels := prometheus.Labels{"resource": resource}

		remaining := val("X-RateLimit-Remaining")
		limit := val("X-RateLimit-Limit")
		mGitHubRateLimitRemaining.With(labels).Set(remaining)
		mGitHubRateLimit.With(labels).Set(limit)
		mGitHubRateLimitReset.With(labels).Set(val("X-RateLimit-Reset"))
		if limit > 0 {
			mGitHubRateLimitUsed.With(labels).Set((limit - remaining) / limit)
		}
		return resp, nil
	}
}
