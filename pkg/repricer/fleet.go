/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repricer

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/ubq-testing/assistive-pricing/pkg/pricing"
	"golang.org/x/sync/errgroup"
)

// UpdateAllIssuePriceLabels reprices the open issues of every repository
// in org. A failing repository or issue is recorded in the report and does
// not stop the others.
func (u *Updater) UpdateAllIssuePriceLabels(ctx context.Context, org string, cfg pricing.Config) *Report {
	log := clog.FromContext(ctx)
	report := &Report{Org: org}

	c, err := u.client(ctx, org)
	if err != nil {
		report.Err = err
		return report
	}
	repos, err := c.ListOrgRepos(ctx, org)
	if err != nil {
		report.Err = err
		return report
	}
	log.Infof("Repricing issues across %d repositories", len(repos))

	report.Repos = make([]RepoResult, len(repos))
	var eg errgroup.Group
	eg.SetLimit(u.concurrency)
	for i, r := range repos {
		eg.Go(func() error {
			report.Repos[i] = u.updateRepo(ctx, c, r, cfg)
			return nil
		})
	}
	_ = eg.Wait()
	return report
}

func (u *Updater) updateRepo(ctx context.Context, c Client, r Repo, cfg pricing.Config) RepoResult {
	log := clog.FromContext(ctx).With("repo", r.Name)
	ctx = clog.WithLogger(ctx, log)
	res := RepoResult{Repo: r}

	switch {
	case r.Archived:
		res.Skipped = SkipArchived
	case r.Disabled:
		res.Skipped = SkipDisabled
	case cfg.IsExcluded(r.Name):
		res.Skipped = SkipExcluded
	}
	if res.Skipped != SkipNone {
		log.Infof("Skipping %s repository", res.Skipped)
		mRepos.WithLabelValues("skipped_" + string(res.Skipped)).Inc()
		return res
	}

	issues, err := c.ListOpenIssues(ctx, r.Owner, r.Name)
	if err != nil {
		log.Errorf("Listing open issues: %v", err)
		mRepos.WithLabelValues("failed").Inc()
		res.Err = err
		return res
	}

	res.Issues = make([]IssueResult, 0, len(issues))
	for _, issue := range issues {
		ir := u.SetPriceLabel(ctx, IssueRequest{
			Owner:  r.Owner,
			Repo:   r.Name,
			Issue:  issue,
			Config: cfg,
		})
		mIssues.WithLabelValues(string(ir.Status)).Inc()
		res.Issues = append(res.Issues, ir)
	}
	mRepos.WithLabelValues("processed").Inc()
	return res
}

// SetPriceLabel brings one issue's price label in line with its time and
// priority labels. Issues that already carry the right label are left
// untouched; issues without a time or priority label are stripped of any
// price label.
func (u *Updater) SetPriceLabel(ctx context.Context, req IssueRequest) IssueResult {
	log := clog.FromContext(ctx).With("issue", req.Issue.Number)
	res := IssueResult{Number: req.Issue.Number}

	desired, priced := req.Config.DesiredPriceLabel(req.Issue.Labels)
	res.Desired = desired
	res.Changes = req.Config.PlanPriceLabel(req.Issue.Labels)
	if res.Changes.Empty() {
		res.Status = IssueUnchanged
		if !priced {
			log.Debug("Issue has no time or priority label, leaving it unpriced")
			res.Status = IssueUnpriced
		}
		return res
	}

	fail := func(err error) IssueResult {
		log.Errorf("Setting price label: %v", err)
		res.Status = IssueFailed
		res.Err = err
		return res
	}
	c, err := u.client(ctx, req.Owner)
	if err != nil {
		return fail(err)
	}
	for _, name := range res.Changes.Remove {
		if err := c.RemoveLabel(ctx, req.Owner, req.Repo, req.Issue.Number, name); err != nil {
			return fail(err)
		}
	}
	if !priced {
		log.Infof("Removed price labels %v from unpriced issue", res.Changes.Remove)
		res.Status = IssueUnpriced
		return res
	}
	if err := c.AddLabels(ctx, req.Owner, req.Repo, req.Issue.Number, res.Changes.Add...); err != nil {
		return fail(fmt.Errorf("setting %q: %w", desired, err))
	}
	log.Infof("Set price label %q (%s)", desired, res.Changes)
	res.Status = IssueUpdated
	return res
}
