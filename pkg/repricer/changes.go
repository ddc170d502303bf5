/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repricer

import (
	"context"
	"slices"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"github.com/ubq-testing/assistive-pricing/pkg/pricing"
)

// zeroSHA is the before SHA of a push that creates a branch.
const zeroSHA = "0000000000000000000000000000000000000000"

// IsConfigModified reports whether push lands on the default branch of the
// settings repository and touches the settings file.
func (u *Updater) IsConfigModified(ctx context.Context, push *github.PushEvent) bool {
	log := clog.FromContext(ctx)

	repo := push.GetRepo().GetName()
	if !strings.EqualFold(repo, u.configRepo) {
		log.Debugf("Push to %s is not for the settings repository %s", repo, u.configRepo)
		return false
	}

	branch := strings.TrimPrefix(push.GetRef(), "refs/heads/")
	if def := push.GetRepo().GetDefaultBranch(); def != "" && branch != def {
		log.Infof("Ignoring push to non-default branch %q (default is %q)", branch, def)
		return false
	}

	for _, c := range push.Commits {
		if slices.Contains(c.Added, u.configPath) || slices.Contains(c.Modified, u.configPath) {
			return true
		}
	}
	return false
}

// GetBaseRateChanges extracts the old and new base price multiplier from
// the diff of push. Fetch failures are logged and produce an empty change.
func (u *Updater) GetBaseRateChanges(ctx context.Context, push *github.PushEvent) pricing.RateChange {
	log := clog.FromContext(ctx)
	owner, repo := pushOwner(push), push.GetRepo().GetName()

	c, err := u.client(ctx, owner)
	if err != nil {
		log.Errorf("Fetching diff: %v", err)
		return pricing.RateChange{}
	}

	before, after := push.GetBefore(), push.GetAfter()
	var diff string
	if before == "" || before == zeroSHA {
		diff, err = c.CommitDiff(ctx, owner, repo, after)
	} else {
		diff, err = c.CompareDiff(ctx, owner, repo, before, after)
	}
	if err != nil {
		log.Errorf("Fetching diff: %v", err)
		return pricing.RateChange{}
	}
	return pricing.ExtractBaseRateChange(diff, u.configPath)
}
