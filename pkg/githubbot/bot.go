/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubbot receives GitHub deliveries forwarded as CloudEvents and
// dispatches them to typed handlers.
package githubbot

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/chainguard-dev/clog"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/go-github/v75/github"
)

type Bot struct {
	Name     string
	Prefix   string
	Handlers map[EventType]EventHandlerFunc
}

type BotOptions func(*Bot)

// NewBot creates a bot listening for events whose type starts with prefix.
func NewBot(name, prefix string, opts ...BotOptions) Bot {
	bot := Bot{
		Name:     name,
		Prefix:   strings.TrimSuffix(prefix, "."),
		Handlers: make(map[EventType]EventHandlerFunc),
	}
	for _, opt := range opts {
		opt(&bot)
	}
	return bot
}

func BotWithHandler(handler EventHandlerFunc) BotOptions {
	return func(b *Bot) {
		b.RegisterHandler(handler)
	}
}

// EventType returns the CloudEvent type carrying the named GitHub event.
func (b *Bot) EventType(githubEvent string) EventType {
	return EventType(b.Prefix + "." + githubEvent)
}

func (b *Bot) RegisterHandler(handler EventHandlerFunc) {
	etype := b.EventType(handler.GitHubEvent())
	if _, ok := b.Handlers[etype]; ok {
		panic(fmt.Sprintf("handler for event type %s already registered", etype))
	}
	b.Handlers[etype] = handler
}

// Receive dispatches one CloudEvent. Events without a handler are ignored.
func (b Bot) Receive(ctx context.Context, event cloudevents.Event) (err error) {
	log := clog.FromContext(ctx).With("ce-type", event.Type(), "ce-id", event.ID())
	ctx = clog.WithLogger(ctx, log)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic handling %s: %v", event.Type(), r)
		}
	}()

	handler, ok := b.Handlers[EventType(event.Type())]
	if !ok {
		log.Debug("ignoring event")
		return nil
	}

	switch h := handler.(type) {
	case PushHandler:
		var pe Wrapper[github.PushEvent]
		if err := event.DataAs(&pe); err != nil {
			log.Errorf("failed to unmarshal push event: %v", err)
			return cloudevents.NewHTTPResult(http.StatusBadRequest, "unmarshal push event: %v", err)
		}
		if err := h(ctx, pe.Body); err != nil {
			log.Errorf("failed to handle push event: %v", err)
			return err
		}
		return nil
	}
	return fmt.Errorf("unsupported handler %T", handler)
}

// Serve starts a CloudEvents receiver on port and blocks until ctx is done.
func Serve(ctx context.Context, b Bot, port int) error {
	c, err := cloudevents.NewClientHTTP(cloudevents.WithPort(port))
	if err != nil {
		return fmt.Errorf("failed to create event client: %w", err)
	}
	clog.FromContext(ctx).Infof("starting bot %s receiver on port %d", b.Name, port)
	return c.StartReceiver(ctx, b.Receive)
}
