/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repricer

import (
	"context"
)

// Repo describes an organization repository as the fleet propagator sees it.
type Repo struct {
	Owner    string
	Name     string
	Archived bool
	Disabled bool
}

// Issue is an open issue and the names of its labels.
type Issue struct {
	Number int
	Labels []string
}

// Label is an entry in a repository's label catalog.
type Label struct {
	Name        string
	Color       string
	Description string
}

// Client is the slice of the GitHub API the repricer depends on.
type Client interface {
	// IsAdminOrBillingManager reports whether login holds the admin or
	// billing_manager role in org. A login that is not a member is not an
	// error.
	IsAdminOrBillingManager(ctx context.Context, org, login string) (bool, error)

	ListOrgRepos(ctx context.Context, org string) ([]Repo, error)
	// ListOpenIssues returns open issues only; pull requests are filtered out.
	ListOpenIssues(ctx context.Context, owner, repo string) ([]Issue, error)

	// CompareDiff returns the unified diff between two commits.
	CompareDiff(ctx context.Context, owner, repo, before, after string) (string, error)
	// CommitDiff returns the unified diff a single commit introduced.
	CommitDiff(ctx context.Context, owner, repo, sha string) (string, error)
	GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error)

	ListLabels(ctx context.Context, owner, repo string) ([]Label, error)
	CreateLabel(ctx context.Context, owner, repo string, label Label) error
	DeleteLabel(ctx context.Context, owner, repo, name string) error

	AddLabels(ctx context.Context, owner, repo string, number int, names ...string) error
	RemoveLabel(ctx context.Context, owner, repo string, number int, name string) error
}
