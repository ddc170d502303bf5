/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repricer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/go-github/v75/github"
)

const perPage = 100

// GitHubOption configures the go-github backed Client.
type GitHubOption func(*gitHubClient)

// WithRetry overrides the retry policy applied to reads.
func WithRetry(cfg retry.Config) GitHubOption {
	return func(c *gitHubClient) { c.retry = cfg }
}

type gitHubClient struct {
	gh    *github.Client
	retry retry.Config
}

var _ Client = (*gitHubClient)(nil)

// NewGitHubClient adapts a go-github client to Client. Reads that fail with
// a server error or a transport error are retried; client errors are not.
func NewGitHubClient(gh *github.Client, opts ...GitHubOption) Client {
	c := &gitHubClient{
		gh: gh,
		retry: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  500 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type page[T any] struct {
	v    T
	resp *github.Response
}

// read runs f under the retry policy. Permanent failures short circuit the
// retry loop and are returned as is.
func read[T any](ctx context.Context, cfg retry.Config, f func(context.Context) (T, *github.Response, error)) (T, *github.Response, error) {
	var permanent error
	r := retry.New[page[T]](cfg)
	p, err := r.Do(ctx, func(ctx context.Context) (page[T], error) {
		v, resp, err := f(ctx)
		if err != nil && !retryable(ctx, resp, err) {
			permanent = err
			return page[T]{resp: resp}, nil
		}
		return page[T]{v: v, resp: resp}, err
	})
	if permanent != nil {
		var zero T
		return zero, p.resp, permanent
	}
	return p.v, p.resp, err
}

func retryable(ctx context.Context, resp *github.Response, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if resp == nil || resp.Response == nil {
		return true
	}
	return resp.StatusCode >= http.StatusInternalServerError
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

func (c *gitHubClient) IsAdminOrBillingManager(ctx context.Context, org, login string) (bool, error) {
	m, _, err := read(ctx, c.retry, func(ctx context.Context) (*github.Membership, *github.Response, error) {
		return c.gh.Organizations.GetOrgMembership(ctx, login, org)
	})
	if isNotFound(err) {
		clog.FromContext(ctx).Debugf("%s is not a member of %s", login, org)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting %s membership in %s: %w", login, org, err)
	}
	switch m.GetRole() {
	case "admin", "billing_manager":
		return true, nil
	}
	return false, nil
}

func (c *gitHubClient) ListOrgRepos(ctx context.Context, org string) ([]Repo, error) {
	opt := &github.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var out []Repo
	for {
		repos, resp, err := read(ctx, c.retry, func(ctx context.Context) ([]*github.Repository, *github.Response, error) {
			return c.gh.Repositories.ListByOrg(ctx, org, opt)
		})
		if err != nil {
			return nil, fmt.Errorf("listing repositories of %s: %w", org, err)
		}
		for _, r := range repos {
			owner := r.GetOwner().GetLogin()
			if owner == "" {
				owner = org
			}
			out = append(out, Repo{
				Owner:    owner,
				Name:     r.GetName(),
				Archived: r.GetArchived(),
				Disabled: r.GetDisabled(),
			})
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opt.Page = resp.NextPage
	}
}

func (c *gitHubClient) ListOpenIssues(ctx context.Context, owner, repo string) ([]Issue, error) {
	opt := &github.IssueListByRepoOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var out []Issue
	for {
		issues, resp, err := read(ctx, c.retry, func(ctx context.Context) ([]*github.Issue, *github.Response, error) {
			return c.gh.Issues.ListByRepo(ctx, owner, repo, opt)
		})
		if err != nil {
			return nil, fmt.Errorf("listing open issues of %s/%s: %w", owner, repo, err)
		}
		for _, i := range issues {
			if i.IsPullRequest() {
				continue
			}
			names := make([]string, 0, len(i.Labels))
			for _, l := range i.Labels {
				names = append(names, l.GetName())
			}
			out = append(out, Issue{Number: i.GetNumber(), Labels: names})
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opt.ListOptions.Page = resp.NextPage
	}
}

func (c *gitHubClient) CompareDiff(ctx context.Context, owner, repo, before, after string) (string, error) {
	diff, _, err := read(ctx, c.retry, func(ctx context.Context) (string, *github.Response, error) {
		return c.gh.Repositories.CompareCommitsRaw(ctx, owner, repo, before, after, github.RawOptions{Type: github.Diff})
	})
	if err != nil {
		return "", fmt.Errorf("comparing %s...%s in %s/%s: %w", before, after, owner, repo, err)
	}
	return diff, nil
}

func (c *gitHubClient) CommitDiff(ctx context.Context, owner, repo, sha string) (string, error) {
	diff, _, err := read(ctx, c.retry, func(ctx context.Context) (string, *github.Response, error) {
		return c.gh.Repositories.GetCommitRaw(ctx, owner, repo, sha, github.RawOptions{Type: github.Diff})
	})
	if err != nil {
		return "", fmt.Errorf("getting diff of %s in %s/%s: %w", sha, owner, repo, err)
	}
	return diff, nil
}

func (c *gitHubClient) GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	fc, _, err := read(ctx, c.retry, func(ctx context.Context) (*github.RepositoryContent, *github.Response, error) {
		fc, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
		return fc, resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting %s@%s from %s/%s: %w", path, ref, owner, repo, err)
	}
	if fc == nil {
		return nil, fmt.Errorf("%s in %s/%s is not a file", path, owner, repo)
	}
	content, err := fc.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return []byte(content), nil
}

func (c *gitHubClient) ListLabels(ctx context.Context, owner, repo string) ([]Label, error) {
	opt := &github.ListOptions{PerPage: perPage}
	var out []Label
	for {
		labels, resp, err := read(ctx, c.retry, func(ctx context.Context) ([]*github.Label, *github.Response, error) {
			return c.gh.Issues.ListLabels(ctx, owner, repo, opt)
		})
		if err != nil {
			return nil, fmt.Errorf("listing labels of %s/%s: %w", owner, repo, err)
		}
		for _, l := range labels {
			out = append(out, Label{
				Name:        l.GetName(),
				Color:       l.GetColor(),
				Description: l.GetDescription(),
			})
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opt.Page = resp.NextPage
	}
}

func (c *gitHubClient) CreateLabel(ctx context.Context, owner, repo string, label Label) error {
	l := &github.Label{
		Name:  github.Ptr(label.Name),
		Color: github.Ptr(label.Color),
	}
	if label.Description != "" {
		l.Description = github.Ptr(label.Description)
	}
	if _, _, err := c.gh.Issues.CreateLabel(ctx, owner, repo, l); err != nil {
		return fmt.Errorf("creating label %q in %s/%s: %w", label.Name, owner, repo, err)
	}
	return nil
}

func (c *gitHubClient) DeleteLabel(ctx context.Context, owner, repo, name string) error {
	if _, err := c.gh.Issues.DeleteLabel(ctx, owner, repo, name); err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting label %q from %s/%s: %w", name, owner, repo, err)
	}
	return nil
}

func (c *gitHubClient) AddLabels(ctx context.Context, owner, repo string, number int, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	if _, _, err := c.gh.Issues.AddLabelsToIssue(ctx, owner, repo, number, names); err != nil {
		return fmt.Errorf("adding labels %v to %s/%s#%d: %w", names, owner, repo, number, err)
	}
	return nil
}

func (c *gitHubClient) RemoveLabel(ctx context.Context, owner, repo string, number int, name string) error {
	// Already gone is the outcome we wanted.
	if _, err := c.gh.Issues.RemoveLabelForIssue(ctx, owner, repo, number, name); err != nil && !isNotFound(err) {
		return fmt.Errorf("removing label %q from %s/%s#%d: %w", name, owner, repo, number, err)
	}
	return nil
}
