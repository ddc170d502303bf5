/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-github/v75/github"
)

var secret = []byte("hunter2")

func sendevent(t *testing.T, client *http.Client, url, eventType string, payload any, secret []byte) *http.Response {
	t.Helper()

	b := new(bytes.Buffer)
	if err := json.NewEncoder(b).Encode(payload); err != nil {
		t.Fatalf("error encoding payload: %v", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(b.Bytes())
	sig := fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))

	r, err := http.NewRequestWithContext(t.Context(), http.MethodPost, url, b)
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Add("Content-Type", "application/json")
	r.Header.Add(github.SHA256SignatureHeader, sig)
	if eventType != "" {
		r.Header.Add(github.EventTypeHeader, eventType)
	}
	r.Header.Add(github.DeliveryIDHeader, "5678")

	resp, err := client.Do(r)
	if err != nil {
		t.Fatalf("error sending event: %v", err)
	}
	resp.Body.Close()
	return resp
}

func push(org string) map[string]any {
	return map[string]any{
		"ref":   "refs/heads/main",
		"after": "bbb222",
		"repository": map[string]any{
			"name":      ".ubiquity-os",
			"full_name": org + "/.ubiquity-os",
			"owner":     map[string]any{"login": org},
		},
	}
}

func TestServer(t *testing.T) {
	tests := []struct {
		name      string
		handler   HandlerFunc
		opts      ServerOptions
		eventType string
		payload   any
		secret    []byte
		want      int
		wantCalls int
	}{{
		name:      "push is dispatched",
		eventType: "push",
		payload:   push("ubiquity"),
		want:      http.StatusOK,
		wantCalls: 1,
	}, {
		name:      "rotated secret",
		opts:      ServerOptions{Secrets: [][]byte{[]byte("old"), secret}},
		eventType: "push",
		payload:   push("ubiquity"),
		want:      http.StatusOK,
		wantCalls: 1,
	}, {
		name:      "bad signature",
		eventType: "push",
		payload:   push("ubiquity"),
		secret:    []byte("wrong"),
		want:      http.StatusForbidden,
	}, {
		name:    "missing event header",
		payload: push("ubiquity"),
		want:    http.StatusBadRequest,
	}, {
		name:      "ping",
		eventType: "ping",
		payload:   map[string]any{"zen": "Keep it logically awesome."},
		want:      http.StatusOK,
	}, {
		name:      "other event type",
		eventType: "issues",
		payload:   map[string]any{"action": "opened"},
		want:      http.StatusAccepted,
	}, {
		name:      "undecodable push",
		eventType: "push",
		payload:   []string{"not", "a", "push"},
		want:      http.StatusBadRequest,
	}, {
		name:      "filtered org",
		opts:      ServerOptions{OrgFilter: []string{"ubiquity"}},
		eventType: "push",
		payload:   push("someone-else"),
		want:      http.StatusAccepted,
	}, {
		name:      "matching org",
		opts:      ServerOptions{OrgFilter: []string{"ubiquity"}},
		eventType: "push",
		payload:   push("ubiquity"),
		want:      http.StatusOK,
		wantCalls: 1,
	}, {
		name:      "handler panic",
		handler:   func(context.Context, any) { panic("boom") },
		eventType: "push",
		payload:   push("ubiquity"),
		want:      http.StatusInternalServerError,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			handler := tt.handler
			if handler == nil {
				handler = func(_ context.Context, event any) {
					if _, ok := event.(*github.PushEvent); !ok {
						t.Errorf("handler got %T, want *github.PushEvent", event)
					}
					calls++
				}
			}
			opts := tt.opts
			if opts.Secrets == nil {
				opts.Secrets = [][]byte{secret}
			}
			key := tt.secret
			if key == nil {
				key = secret
			}

			srv := httptest.NewServer(NewServer(handler, opts))
			defer srv.Close()

			resp := sendevent(t, srv.Client(), srv.URL, tt.eventType, tt.payload, key)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if calls != tt.wantCalls {
				t.Errorf("handler called %d times, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestServerAsync(t *testing.T) {
	release := make(chan struct{})
	done := make(chan struct{})
	handler := NewServer(func(ctx context.Context, _ any) {
		defer close(done)
		<-release
		if ctx.Err() != nil {
			t.Errorf("handler context done after response: %v", ctx.Err())
		}
	}, ServerOptions{Secrets: [][]byte{secret}, Async: true})

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp := sendevent(t, srv.Client(), srv.URL, "push", push("ubiquity"), secret)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	select {
	case <-done:
		t.Fatal("handler finished before the delivery was acknowledged")
	default:
	}

	close(release)
	handler.Wait()
	select {
	case <-done:
	default:
		t.Error("Wait() returned before the handler finished")
	}
}

func TestServerAsyncPanic(t *testing.T) {
	handler := NewServer(func(context.Context, any) { panic("boom") },
		ServerOptions{Secrets: [][]byte{secret}, Async: true})

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp := sendevent(t, srv.Client(), srv.URL, "push", push("ubiquity"), secret)
	handler.Wait()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
}
