/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repricer

import (
	"context"

	"github.com/chainguard-dev/clog"
)

type dryRunClient struct {
	Client
}

// DryRun wraps c so that reads pass through and writes are only logged.
func DryRun(c Client) Client {
	if _, ok := c.(dryRunClient); ok {
		return c
	}
	return dryRunClient{Client: c}
}

func (d dryRunClient) CreateLabel(ctx context.Context, owner, repo string, label Label) error {
	clog.FromContext(ctx).Infof("[dry-run] would create label %q in %s/%s", label.Name, owner, repo)
	return nil
}

func (d dryRunClient) DeleteLabel(ctx context.Context, owner, repo, name string) error {
	clog.FromContext(ctx).Infof("[dry-run] would delete label %q from %s/%s", name, owner, repo)
	return nil
}

func (d dryRunClient) AddLabels(ctx context.Context, owner, repo string, number int, names ...string) error {
	if len(names) > 0 {
		clog.FromContext(ctx).Infof("[dry-run] would add %v to %s/%s#%d", names, owner, repo, number)
	}
	return nil
}

func (d dryRunClient) RemoveLabel(ctx context.Context, owner, repo string, number int, name string) error {
	clog.FromContext(ctx).Infof("[dry-run] would remove %q from %s/%s#%d", name, owner, repo, number)
	return nil
}
