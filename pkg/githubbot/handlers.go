/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubbot

import (
	"context"
	"time"

	"github.com/google/go-github/v75/github"
)

// DefaultEventTypePrefix prefixes the CloudEvent type of forwarded GitHub
// deliveries, e.g. "dev.ubiquity.github.push".
const DefaultEventTypePrefix = "dev.ubiquity.github"

// EventType is a CloudEvent type.
type EventType string

// EventHandlerFunc is implemented by the typed handlers below.
type EventHandlerFunc interface {
	// GitHubEvent is the X-GitHub-Event name the handler consumes.
	GitHubEvent() string
}

// PushHandler handles push deliveries.
type PushHandler func(ctx context.Context, pe github.PushEvent) error

func (PushHandler) GitHubEvent() string { return "push" }

// Wrapper is the envelope a GitHub events trampoline wraps deliveries in.
type Wrapper[T any] struct {
	When    time.Time `json:"when"`
	Headers *Headers  `json:"headers,omitempty"`
	Body    T         `json:"body"`
}

// Headers are the delivery headers the trampoline records.
// See https://docs.github.com/en/webhooks/webhook-events-and-payloads#delivery-headers
type Headers struct {
	HookID     string `json:"hook_id,omitempty"`
	DeliveryID string `json:"delivery_id,omitempty"`
	Event      string `json:"event,omitempty"`
}
