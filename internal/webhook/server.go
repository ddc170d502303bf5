/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
)

// HandlerFunc processes a parsed webhook event.
type HandlerFunc func(ctx context.Context, event any)

// Server receives GitHub push deliveries directly and hands them to a
// HandlerFunc.
type Server struct {
	handler   HandlerFunc
	secrets   [][]byte
	orgFilter []string
	async     bool

	inflight sync.WaitGroup
}

type ServerOptions struct {
	Secrets [][]byte
	// OrgFilter, when set, limits processing to these organizations.
	OrgFilter []string
	// Async acknowledges pushes with 202 and runs the handler in the
	// background. GitHub gives up on a delivery after 10 seconds, well
	// short of a fleet run in a large organization.
	Async bool
}

func NewServer(handler HandlerFunc, opts ServerOptions) *Server {
	return &Server{
		handler:   handler,
		secrets:   opts.Secrets,
		orgFilter: opts.OrgFilter,
		async:     opts.Async,
	}
}

// Wait blocks until every background handler has returned.
func (s *Server) Wait() {
	s.inflight.Wait()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := clog.FromContext(ctx).With("delivery", github.DeliveryID(r))

	// https://docs.github.com/en/webhooks/using-webhooks/validating-webhook-deliveries
	payload, err := ValidatePayload(r, s.secrets)
	if err != nil {
		log.Errorf("failed to verify webhook: %v", err)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintf(w, "failed to verify webhook: %v", err)
		return
	}

	t := github.WebHookType(r)
	if t == "" {
		log.Errorf("missing X-GitHub-Event header")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	log = log.With("event-type", t)

	switch t {
	case "ping":
		w.WriteHeader(http.StatusOK)
		return
	case "push":
	default:
		log.Debugf("ignoring %s event", t)
		// 202 acknowledges the delivery without acting on it.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	event, err := github.ParseWebHook(t, payload)
	if err != nil {
		log.Errorf("failed to parse payload: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	push := event.(*github.PushEvent)

	org := push.GetRepo().GetOwner().GetLogin()
	if org == "" {
		org = push.GetRepo().GetOrganization()
	}
	if len(s.orgFilter) > 0 && !slices.Contains(s.orgFilter, org) {
		log.Warnf("ignoring push to %q due to non-matching org", push.GetRepo().GetFullName())
		w.WriteHeader(http.StatusAccepted)
		return
	}

	hctx := clog.WithLogger(context.WithoutCancel(ctx), log)
	if s.async {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			if err := s.dispatch(hctx, event); err != nil {
				log.Errorf("handler failed: %v", err)
			}
		}()
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := s.dispatch(hctx, event); err != nil {
		log.Errorf("handler failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// dispatch runs the handler, turning a panic into an error so one bad
// delivery cannot take the server down.
func (s *Server) dispatch(ctx context.Context, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	s.handler(ctx, event)
	return nil
}

// ValidatePayload checks the delivery signature against every configured
// secret and returns the body on the first match. During a rotation GitHub
// signs with the new secret while the old one is still deployed, so both
// must verify until the old WEBHOOK_SECRET* variable is removed.
func ValidatePayload(r *http.Request, secrets [][]byte) ([]byte, error) {
	// The body is read once and replayed for each secret.
	signature := r.Header.Get(github.SHA256SignatureHeader)
	if signature == "" {
		signature = r.Header.Get(github.SHA1SignatureHeader)
	}
	contentType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	for _, secret := range secrets {
		if payload, err := github.ValidatePayloadFromBody(contentType, bytes.NewReader(body), signature, secret); err == nil {
			return payload, nil
		}
	}
	return nil, fmt.Errorf("failed to validate payload")
}
