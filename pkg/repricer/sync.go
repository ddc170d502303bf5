/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repricer

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/ubq-testing/assistive-pricing/pkg/pricing"
)

// catalogColor is GitHub's default label color.
const catalogColor = "ededed"

// SyncPriceLabels reconciles the label catalog of owner/repo with cfg.
// Missing time, priority and price labels are created. A price label that
// cfg no longer produces is deleted only when no open issue carries it, so
// that relabeling can move those issues off it first. Nothing is deleted
// when cfg produces no price labels at all.
func (u *Updater) SyncPriceLabels(ctx context.Context, owner, repo string, cfg pricing.Config) error {
	log := clog.FromContext(ctx).With("owner", owner, "repo", repo)
	c, err := u.client(ctx, owner)
	if err != nil {
		return err
	}

	existing, err := c.ListLabels(ctx, owner, repo)
	if err != nil {
		return err
	}
	have := make(map[string]struct{}, len(existing))
	for _, l := range existing {
		have[strings.ToLower(l.Name)] = struct{}{}
	}

	var missing []Label
	addMissing := func(l Label) {
		key := strings.ToLower(l.Name)
		if _, ok := have[key]; ok {
			return
		}
		have[key] = struct{}{}
		missing = append(missing, l)
	}
	for _, s := range cfg.Labels.Time {
		addMissing(Label{Name: s.Name, Color: catalogColor, Description: s.Description})
	}
	for _, s := range cfg.Labels.Priority {
		addMissing(Label{Name: s.Name, Color: catalogColor, Description: s.Description})
	}
	desired := cfg.PriceLabels()
	want := make(map[string]struct{}, len(desired))
	for _, name := range desired {
		want[name] = struct{}{}
		addMissing(Label{Name: name, Color: pricing.PriceLabelColor})
	}

	for _, l := range missing {
		log.Infof("Creating label %q", l.Name)
		if err := c.CreateLabel(ctx, owner, repo, l); err != nil {
			return err
		}
	}

	if len(desired) == 0 {
		log.Warn("Settings declare no priced labels, keeping existing price labels")
		return nil
	}
	var stale []string
	for _, l := range existing {
		if _, ok := want[l.Name]; !ok && pricing.IsPriceLabel(l.Name) {
			stale = append(stale, l.Name)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	issues, err := c.ListOpenIssues(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("checking usage of stale price labels: %w", err)
	}
	inUse := make(map[string]struct{})
	for _, i := range issues {
		for _, l := range i.Labels {
			inUse[l] = struct{}{}
		}
	}
	for _, name := range stale {
		if _, ok := inUse[name]; ok {
			log.Debugf("Keeping stale label %q, still used by an open issue", name)
			continue
		}
		log.Infof("Deleting stale label %q", name)
		if err := c.DeleteLabel(ctx, owner, repo, name); err != nil {
			return err
		}
	}
	return nil
}
