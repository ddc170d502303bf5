/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repricer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeUnauthorized = "unauthorized"
	outcomeNotModified  = "not_modified"
	outcomeNoRate       = "no_rate"
	outcomeConfigError  = "config_error"
	outcomeSyncError    = "sync_error"
	outcomeCatalogOnly  = "catalog_only"
	outcomeFleetError   = "fleet_error"
	outcomePropagated   = "propagated"
)

var (
	mRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_global_update_runs_total",
			Help: "Global label update runs by outcome",
		},
		[]string{"outcome"},
	)
	mRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricing_global_update_duration_seconds",
			Help:    "Duration of global label update runs",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"outcome"},
	)
	mRepos = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_repositories_total",
			Help: "Repositories visited by fleet propagation by result",
		},
		[]string{"result"},
	)
	mIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_issues_total",
			Help: "Issues visited by fleet propagation by status",
		},
		[]string{"status"},
	)
)
