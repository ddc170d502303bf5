/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package repricer propagates a change of an organization's base price
// multiplier to the price labels of every open issue in the organization.
package repricer

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/ubq-testing/assistive-pricing/pkg/ghclient"
	"github.com/ubq-testing/assistive-pricing/pkg/pricing"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultConfigRepo is the repository holding an organization's settings.
	DefaultConfigRepo = ".ubiquity-os"
	// DefaultConfigPath is the settings file inside DefaultConfigRepo.
	DefaultConfigPath = ".github/.ubiquity-os.config.yml"
)

// ClientFunc returns the Client acting on behalf of org.
type ClientFunc func(ctx context.Context, org string) (Client, error)

// StaticClient serves every organization with c.
func StaticClient(c Client) ClientFunc {
	return func(context.Context, string) (Client, error) { return c, nil }
}

// FromCache serves each organization with its cached go-github client.
func FromCache(cc *ghclient.ClientCache, opts ...GitHubOption) ClientFunc {
	return func(ctx context.Context, org string) (Client, error) {
		gh, err := cc.Get(ctx, org)
		if err != nil {
			return nil, err
		}
		return NewGitHubClient(gh, opts...), nil
	}
}

// Option configures an Updater.
type Option func(*Updater)

// WithConfigRepo sets the name of the settings repository.
func WithConfigRepo(name string) Option {
	return func(u *Updater) { u.configRepo = name }
}

// WithConfigPath sets the path of the settings file.
func WithConfigPath(path string) Option {
	return func(u *Updater) { u.configPath = path }
}

// WithConcurrency sets how many repositories are repriced at once.
func WithConcurrency(n int) Option {
	return func(u *Updater) {
		if n > 0 {
			u.concurrency = n
		}
	}
}

// WithClock sets the clock used to time runs.
func WithClock(c clockwork.Clock) Option {
	return func(u *Updater) { u.clock = c }
}

// WithDryRun plans label changes without applying them.
func WithDryRun(dryRun bool) Option {
	return func(u *Updater) { u.dryRun = dryRun }
}

// Updater runs the global label update pipeline.
type Updater struct {
	clients     ClientFunc
	configRepo  string
	configPath  string
	concurrency int
	clock       clockwork.Clock
	dryRun      bool

	guard orgGuard
}

// New returns an Updater that reaches GitHub through clients.
func New(clients ClientFunc, opts ...Option) *Updater {
	u := &Updater{
		clients:     clients,
		configRepo:  DefaultConfigRepo,
		configPath:  DefaultConfigPath,
		concurrency: 1,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// ConfigRepo returns the settings repository name.
func (u *Updater) ConfigRepo() string { return u.configRepo }

func (u *Updater) client(ctx context.Context, org string) (Client, error) {
	c, err := u.clients(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("getting GitHub client for %s: %w", org, err)
	}
	if u.dryRun {
		return DryRun(c), nil
	}
	return c, nil
}

// GlobalLabelUpdate reprices every open issue in the pushing organization
// when a push to the settings repository changes the base price multiplier.
// Every rejection and failure is logged; nothing is returned.
func (u *Updater) GlobalLabelUpdate(ctx context.Context, event any) {
	push, ok := event.(*github.PushEvent)
	if !ok {
		clog.FromContext(ctx).Debug("Not a push event")
		return
	}

	org := pushOwner(push)
	repo := push.GetRepo().GetName()
	log := clog.FromContext(ctx).With(
		"run_id", uuid.NewString(),
		"org", org,
		"repo", repo,
		"after", push.GetAfter(),
	)
	ctx = clog.WithLogger(ctx, log)

	release, err := u.guard.acquire(ctx, org)
	if err != nil {
		log.Errorf("Waiting for the running update of %s: %v", org, err)
		return
	}
	defer release()

	start := u.clock.Now()
	outcome := u.globalLabelUpdate(ctx, push, org, repo)
	mRuns.WithLabelValues(outcome).Inc()
	mRunDuration.WithLabelValues(outcome).Observe(u.clock.Since(start).Seconds())
}

func (u *Updater) globalLabelUpdate(ctx context.Context, push *github.PushEvent, org, repo string) string {
	log := clog.FromContext(ctx)

	if !u.IsAuthed(ctx, push) {
		log.Error("Changes should be pushed and triggered by an admin or billing manager.")
		return outcomeUnauthorized
	}
	if !u.IsConfigModified(ctx, push) {
		log.Debug("Settings file not modified, skipping")
		return outcomeNotModified
	}

	change := u.GetBaseRateChanges(ctx, push)
	if change.New == nil {
		log.Error("No changes found in the diff, skipping.")
		return outcomeNoRate
	}
	log.Infof("Base rate changed: %s", change)

	cfg, err := u.LoadConfig(ctx, org, push.GetAfter())
	if err != nil {
		log.Errorf("Loading settings: %v", err)
		return outcomeConfigError
	}
	cfg = cfg.WithBaseMultiplier(*change.New)

	if err := u.SyncPriceLabels(ctx, org, repo, cfg); err != nil {
		log.Errorf("Syncing price labels: %v", err)
		return outcomeSyncError
	}

	if cfg.GlobalConfigUpdate == nil {
		log.Info("globalConfigUpdate is not set, leaving issue price labels alone")
		return outcomeCatalogOnly
	}
	report := u.UpdateAllIssuePriceLabels(ctx, org, cfg)
	if report.Err != nil {
		log.Errorf("Updating issue price labels: %v", report.Err)
		return outcomeFleetError
	}
	t := report.Totals()
	log.With(
		"updated", t.Updated,
		"unchanged", t.Unchanged,
		"unpriced", t.Unpriced,
		"failed", t.Failed,
		"repos_skipped", t.ReposSkipped,
		"repos_failed", t.ReposFailed,
	).Infof("Repriced %s at multiplier %v", org, cfg.BasePriceMultiplier)
	return outcomePropagated
}

// Reprice syncs the settings repository catalog and reprices the fleet
// under cfg without a triggering push.
func (u *Updater) Reprice(ctx context.Context, org string, cfg pricing.Config) (*Report, error) {
	release, err := u.guard.acquire(ctx, org)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := u.SyncPriceLabels(ctx, org, u.configRepo, cfg); err != nil {
		return nil, fmt.Errorf("syncing price labels: %w", err)
	}
	report := u.UpdateAllIssuePriceLabels(ctx, org, cfg)
	return report, report.Err
}

// LoadConfig reads the organization's settings at ref. An empty ref reads
// the default branch.
func (u *Updater) LoadConfig(ctx context.Context, org, ref string) (pricing.Config, error) {
	c, err := u.client(ctx, org)
	if err != nil {
		return pricing.Config{}, err
	}
	b, err := c.GetFile(ctx, org, u.configRepo, u.configPath, ref)
	if err != nil {
		return pricing.Config{}, err
	}
	cfg, err := pricing.DecodeBytes(b)
	if err != nil {
		return pricing.Config{}, fmt.Errorf("decoding %s: %w", u.configPath, err)
	}
	return cfg, nil
}

func pushOwner(push *github.PushEvent) string {
	if login := push.GetRepo().GetOwner().GetLogin(); login != "" {
		return login
	}
	return push.GetRepo().GetOrganization()
}

// orgGuard serializes runs per organization. An organization's slot is
// dropped once nobody holds or waits for it.
type orgGuard struct {
	mu    sync.Mutex
	slots map[string]*orgSlot
}

type orgSlot struct {
	sem  *semaphore.Weighted
	refs int
}

func (g *orgGuard) acquire(ctx context.Context, org string) (func(), error) {
	g.mu.Lock()
	if g.slots == nil {
		g.slots = make(map[string]*orgSlot)
	}
	slot, ok := g.slots[org]
	if !ok {
		slot = &orgSlot{sem: semaphore.NewWeighted(1)}
		g.slots[org] = slot
	}
	slot.refs++
	g.mu.Unlock()

	if !slot.sem.TryAcquire(1) {
		clog.FromContext(ctx).Infof("Another update of %s is running, waiting", org)
		if err := slot.sem.Acquire(ctx, 1); err != nil {
			g.drop(org, slot)
			return nil, err
		}
	}
	return func() {
		slot.sem.Release(1)
		g.drop(org, slot)
	}, nil
}

func (g *orgGuard) drop(org string, slot *orgSlot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(g.slots, org)
	}
}

// size reports how many organizations hold a slot.
func (g *orgGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.slots)
}
