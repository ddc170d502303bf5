/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
	"github.com/ubq-testing/assistive-pricing/pkg/ghclient"
	"github.com/ubq-testing/assistive-pricing/pkg/repricer"
)

var (
	org         string
	multiplier  float64
	exclude     []string
	dryRun      bool
	ref         string
	configRepo  string
	configPath  string
	concurrency int
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "reprice",
	Short: "Reprice every open issue in an organization",
	Long: `Reprice loads an organization's pricing settings, syncs the price label
catalog of the settings repository and sets the price label of every open
issue in the organization's repositories.

GitHub credentials are read from GITHUB_TOKEN, the GITHUB_APP_* variables or
OCTO_IDENTITY, optionally through a .env file.`,
	Args: cobra.NoArgs,
	RunE: runReprice,
}

func init() {
	rootCmd.Flags().StringVar(&org, "org", "", "organization to reprice")
	rootCmd.Flags().Float64Var(&multiplier, "multiplier", 0, "base price multiplier overriding the settings file")
	rootCmd.Flags().StringSliceVar(&exclude, "exclude", nil, "repositories to leave alone, in addition to the settings")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print planned label changes without applying them")
	rootCmd.Flags().StringVar(&ref, "ref", "", "git ref to read the settings at (default branch when empty)")
	rootCmd.Flags().StringVar(&configRepo, "config-repo", repricer.DefaultConfigRepo, "settings repository")
	rootCmd.Flags().StringVar(&configPath, "config-path", repricer.DefaultConfigPath, "settings file path")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 1, "repositories repriced at once")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	_ = rootCmd.MarkFlagRequired("org")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runReprice(cmd *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	ctx := clog.WithLogger(cmd.Context(), clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	_ = godotenv.Load()
	var auth ghclient.Auth
	if err := envconfig.Process(ctx, &auth); err != nil {
		return fmt.Errorf("reading GitHub credentials: %w", err)
	}
	tf, err := auth.TransportFunc()
	if err != nil {
		return err
	}

	u := repricer.New(
		repricer.FromCache(ghclient.NewClientCache(tf)),
		repricer.WithConfigRepo(configRepo),
		repricer.WithConfigPath(configPath),
		repricer.WithConcurrency(concurrency),
		repricer.WithDryRun(dryRun),
	)

	cfg, err := u.LoadConfig(ctx, org, ref)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if cmd.Flags().Changed("multiplier") {
		if multiplier <= 0 {
			return fmt.Errorf("--multiplier must be positive, got %v", multiplier)
		}
		cfg = cfg.WithBaseMultiplier(multiplier)
	}
	if len(exclude) > 0 {
		cfg = cfg.WithExcludedRepos(exclude...)
	}

	report, err := u.Reprice(ctx, org, cfg)
	if report != nil {
		renderReport(cmd.OutOrStdout(), report, cfg.BasePriceMultiplier, dryRun)
	}
	return err
}
