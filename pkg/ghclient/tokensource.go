/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ghclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"chainguard.dev/sdk/octosts"
	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/chainguard-dev/clog"
	"golang.org/x/oauth2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TransportFunc builds the authenticated transport used for one organization.
type TransportFunc func(ctx context.Context, org string) (http.RoundTripper, error)

// octoTokenFunc is a variable so tests can stub Octo STS.
var octoTokenFunc = octosts.Token

// octoTokenSource implements oauth2.TokenSource using Octo STS.
type octoTokenSource struct {
	ctx      context.Context
	identity string
	org      string
}

// Token implements oauth2.TokenSource.
func (ts *octoTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ts.ctx, 1*time.Minute)
	defer cancel()
	tok, err := octoTokenFunc(ctx, ts.identity, ts.org, "")
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// Usually the org's GitHub App installation is missing or its
			// token quota is exhausted.
			clog.ErrorContextf(ctx, "Got NotFound error from Octo STS for %q: %v", ts.org, err)
			return nil, fmt.Errorf("octo sts has no token for %q: %w", ts.org, err)
		}
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: tok,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(55 * time.Minute), // Tokens from Octo STS are valid for 60 minutes
	}, nil
}

// NewOrgTokenSource creates a token source for org-scoped Octo STS credentials.
func NewOrgTokenSource(ctx context.Context, identity, org string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &octoTokenSource{
		ctx:      ctx,
		identity: identity,
		org:      org,
	})
}

// OctoSTS authenticates every organization through the Octo STS policy identity.
func OctoSTS(identity string) TransportFunc {
	return func(ctx context.Context, org string) (http.RoundTripper, error) {
		return &oauth2.Transport{
			Source: NewOrgTokenSource(ctx, identity, org),
			Base:   http.DefaultTransport,
		}, nil
	}
}

// StaticToken authenticates every organization with the same token, for
// local development and personal access tokens.
func StaticToken(token string) TransportFunc {
	return func(ctx context.Context, _ string) (http.RoundTripper, error) {
		if token == "" {
			return nil, fmt.Errorf("empty GitHub token")
		}
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})).Transport, nil
	}
}

// GitHubApp authenticates as a single GitHub App installation.
func GitHubApp(appID, installationID int64, privateKeyPath string) TransportFunc {
	return func(_ context.Context, _ string) (http.RoundTripper, error) {
		tr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, appID, installationID, privateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("loading GitHub App key: %w", err)
		}
		return tr, nil
	}
}
