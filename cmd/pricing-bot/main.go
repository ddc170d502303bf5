/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/google/go-github/v75/github"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/ubq-testing/assistive-pricing/internal/secrets"
	"github.com/ubq-testing/assistive-pricing/internal/webhook"
	"github.com/ubq-testing/assistive-pricing/pkg/ghclient"
	"github.com/ubq-testing/assistive-pricing/pkg/githubbot"
	"github.com/ubq-testing/assistive-pricing/pkg/httpmetrics"
	"github.com/ubq-testing/assistive-pricing/pkg/repricer"
)

type config struct {
	Port int `env:"PORT, default=8080"`
	// Receiver is "webhook" to take GitHub deliveries directly or
	// "cloudevents" to sit behind a GitHub events trampoline.
	Receiver        string   `env:"RECEIVER, default=webhook"`
	EventTypePrefix string   `env:"EVENT_TYPE_PREFIX, default=dev.ubiquity.github"`
	OrgFilter       []string `env:"ORG_FILTER"`
	// AsyncDispatch acknowledges webhook pushes before the run finishes.
	AsyncDispatch bool `env:"ASYNC_DISPATCH, default=true"`

	ConfigRepo       string `env:"CONFIG_REPO, default=.ubiquity-os"`
	ConfigPath       string `env:"CONFIG_PATH, default=.github/.ubiquity-os.config.yml"`
	FleetConcurrency int    `env:"FLEET_CONCURRENCY, default=1"`

	GitHub ghclient.Auth
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Local runs may keep settings in .env.
	_ = godotenv.Load()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "failed to process environment: %v", err)
	}

	go httpmetrics.ServeMetrics()
	defer httpmetrics.SetupTracer(ctx)()
	httpmetrics.SetBuckets(map[string]string{
		"api.github.com": "GH API",
		"github.com":     "GitHub",
		"octo-sts.dev":   "octosts",
	})

	tf, err := cfg.GitHub.TransportFunc()
	if err != nil {
		clog.FatalContextf(ctx, "invalid GitHub credentials: %v", err)
	}
	updater := repricer.New(
		repricer.FromCache(ghclient.NewClientCache(tf)),
		repricer.WithConfigRepo(cfg.ConfigRepo),
		repricer.WithConfigPath(cfg.ConfigPath),
		repricer.WithConcurrency(cfg.FleetConcurrency),
	)

	clog.InfoContextf(ctx, "watching %s for base price changes", updater.ConfigRepo())

	switch cfg.Receiver {
	case "webhook":
		hooks := webhook.NewServer(updater.GlobalLabelUpdate, webhook.ServerOptions{
			Secrets:   secrets.LoadFromEnv(ctx),
			OrgFilter: cfg.OrgFilter,
			Async:     cfg.AsyncDispatch,
		})
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			ReadHeaderTimeout: 10 * time.Second,
			Handler:           httpmetrics.Handler("pricing-bot", hooks),
		}
		go func() {
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
		clog.InfoContextf(ctx, "listening for GitHub webhooks on port %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			clog.FatalContextf(ctx, "ListenAndServe: %v", err)
		}
		hooks.Wait()

	case "cloudevents":
		bot := githubbot.NewBot("pricing-bot", cfg.EventTypePrefix,
			githubbot.BotWithHandler(githubbot.PushHandler(func(ctx context.Context, pe github.PushEvent) error {
				if org := pe.GetRepo().GetOwner().GetLogin(); len(cfg.OrgFilter) > 0 && !slices.Contains(cfg.OrgFilter, org) {
					clog.FromContext(ctx).Warnf("ignoring push to %q due to non-matching org", pe.GetRepo().GetFullName())
					return nil
				}
				updater.GlobalLabelUpdate(ctx, &pe)
				return nil
			})))
		if err := githubbot.Serve(ctx, bot, cfg.Port); err != nil {
			clog.FatalContextf(ctx, "receiver: %v", err)
		}

	default:
		clog.FatalContextf(ctx, "unknown RECEIVER %q, want webhook or cloudevents", cfg.Receiver)
	}
}
