/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ghclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"github.com/ubq-testing/assistive-pricing/pkg/httpmetrics"
)

// Auth selects how the service authenticates to GitHub. Exactly one of the
// groups must be set: Token, the App triple, or OctoIdentity.
type Auth struct {
	Token string `env:"GITHUB_TOKEN"`

	AppID          int64  `env:"GITHUB_APP_ID"`
	InstallationID int64  `env:"GITHUB_INSTALLATION_ID"`
	PrivateKeyPath string `env:"GITHUB_PRIVATE_KEY_PATH"`

	OctoIdentity string `env:"OCTO_IDENTITY"`
}

// TransportFunc returns the transport builder for the configured mode.
func (a Auth) TransportFunc() (TransportFunc, error) {
	var modes []string
	if a.Token != "" {
		modes = append(modes, "token")
	}
	if a.AppID != 0 || a.InstallationID != 0 || a.PrivateKeyPath != "" {
		modes = append(modes, "app")
	}
	if a.OctoIdentity != "" {
		modes = append(modes, "octo-sts")
	}
	switch {
	case len(modes) == 0:
		return nil, errors.New("no GitHub credentials configured: set GITHUB_TOKEN, the GITHUB_APP_* variables, or OCTO_IDENTITY")
	case len(modes) > 1:
		return nil, fmt.Errorf("conflicting GitHub credentials configured: %s", strings.Join(modes, ", "))
	}

	switch modes[0] {
	case "token":
		return StaticToken(a.Token), nil
	case "app":
		if a.AppID == 0 || a.InstallationID == 0 || a.PrivateKeyPath == "" {
			return nil, errors.New("GITHUB_APP_ID, GITHUB_INSTALLATION_ID and GITHUB_PRIVATE_KEY_PATH must all be set")
		}
		return GitHubApp(a.AppID, a.InstallationID, a.PrivateKeyPath), nil
	default:
		return OctoSTS(a.OctoIdentity), nil
	}
}

// ClientCache manages one GitHub client per organization.
type ClientCache struct {
	transportFunc TransportFunc
	baseURL       *url.URL

	mu      sync.RWMutex
	clients map[string]*github.Client
}

// CacheOption configures a ClientCache.
type CacheOption func(*ClientCache)

// WithBaseURL points clients at a GitHub Enterprise or test API root.
func WithBaseURL(u *url.URL) CacheOption {
	return func(cc *ClientCache) { cc.baseURL = u }
}

// NewClientCache creates a client cache with the provided transport builder.
func NewClientCache(f TransportFunc, opts ...CacheOption) *ClientCache {
	cc := &ClientCache{
		transportFunc: f,
		clients:       make(map[string]*github.Client),
	}
	for _, opt := range opts {
		opt(cc)
	}
	return cc
}

// Get returns the GitHub client for org, creating one if needed.
func (cc *ClientCache) Get(ctx context.Context, org string) (*github.Client, error) {
	cc.mu.RLock()
	client, exists := cc.clients[org]
	cc.mu.RUnlock()
	if exists {
		clog.FromContext(ctx).With("org", org).Debug("Using cached GitHub client")
		return client, nil
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	if client, exists := cc.clients[org]; exists {
		return client, nil
	}

	// The transport outlives this request, so it must not capture ctx.
	base, err := cc.transportFunc(context.Background(), org)
	if err != nil {
		return nil, fmt.Errorf("creating transport for %q: %w", org, err)
	}

	client = github.NewClient(&http.Client{
		Transport: httpmetrics.WrapTransport(NewRateLimitTransport(base)),
	})
	if cc.baseURL != nil {
		client.BaseURL = cc.baseURL
	}
	cc.clients[org] = client

	clog.FromContext(ctx).With("org", org).Info("Created new GitHub client for organization")
	return client, nil
}

// Clear removes all cached clients.
func (cc *ClientCache) Clear() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.clients = make(map[string]*github.Client)
}
