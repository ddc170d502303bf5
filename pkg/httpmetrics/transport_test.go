/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package httpmetrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"
)

func TestTransport(t *testing.T) {
	var mux sync.Mutex
	requestSeen := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		close(requestSeen)
		mux.Lock()
		defer mux.Unlock()
	}))
	defer s.Close()

	// Hold the handler so the in-flight gauge can be observed.
	mux.Lock()

	grp := errgroup.Group{}
	grp.Go(func() error {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, s.URL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := (&http.Client{Transport: Transport}).Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("want OK, got %s", resp.Status)
		}
		return nil
	})

	<-requestSeen
	labels := prometheus.Labels{
		"method":       http.MethodGet,
		"host":         "other",
		"path":         "",
		"service_name": env.ServiceName,
	}
	if got := testutil.ToFloat64(mReqInFlight.With(labels)); got != 1 {
		t.Errorf("want metric in-flight = 1, got %f", got)
	}

	mux.Unlock()
	if err := grp.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(mReqCount.With(withCode(labels, "200"))); got != 1 {
		t.Errorf("want metric count = 1, got %f", got)
	}
	if got := testutil.ToFloat64(mReqInFlight.With(labels)); got != 0 {
		t.Errorf("want metric in-flight = 0, got %f", got)
	}
}

type fakeRT func(*http.Request) (*http.Response, error)

func (f fakeRT) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestGitHubRateLimitGauges(t *testing.T) {
	rt := instrumentGitHubRateLimits(fakeRT(func(*http.Request) (*http.Response, error) {
		h := http.Header{}
		h.Set("X-RateLimit-Resource", "core")
		h.Set("X-RateLimit-Limit", "5000")
		h.Set("X-RateLimit-Remaining", "4000")
		h.Set("X-RateLimit-Reset", "1700000000")
		return &http.Response{StatusCode: http.StatusOK, Header: h, Body: io.NopCloser(strings.NewReader(""))}, nil
	}))

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "https://api.github.com/orgs/ubiquity/repos", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatal(err)
	}

	core := prometheus.Labels{"resource": "core"}
	if got := testutil.ToFloat64(mGitHubRateLimitRemaining.With(core)); got != 4000 {
		t.Errorf("remaining = %f, want 4000", got)
	}
	if got := testutil.ToFloat64(mGitHubRateLimitUsed.With(core)); got != 0.2 {
		t.Errorf("used = %f, want 0.2", got)
	}
}

func TestMapErrorToLabel(t *testing.T) {
	for _, c := range []struct {
		err  string
		want string
	}{
		{"context canceled", "context-canceled"},
		{"dial tcp: i/o timeout", "io-timeout"},
		{"net/http: TLS handshake timeout", "tls-handshake-error"},
		{"unexpected EOF", "unexpected-eof"},
		{"boom", "unknown-error"},
	} {
		if got := mapErrorToLabel(errors.New(c.err)); got != c.want {
			t.Errorf("mapErrorToLabel(%q) = %q, want %q", c.err, got, c.want)
		}
	}
}
