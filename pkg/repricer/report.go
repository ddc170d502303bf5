/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repricer

import (
	"github.com/ubq-testing/assistive-pricing/pkg/pricing"
)

// IssueStatus is the outcome of repricing one issue.
type IssueStatus string

const (
	IssueUpdated   IssueStatus = "updated"
	IssueUnchanged IssueStatus = "unchanged"
	// IssueUnpriced means the issue lacks a time or a priority label.
	IssueUnpriced IssueStatus = "unpriced"
	IssueFailed   IssueStatus = "failed"
)

// SkipReason says why a repository was left alone.
type SkipReason string

const (
	SkipNone     SkipReason = ""
	SkipArchived SkipReason = "archived"
	SkipDisabled SkipReason = "disabled"
	SkipExcluded SkipReason = "excluded"
)

// IssueRequest asks for one issue to be repriced under Config.
type IssueRequest struct {
	Owner  string
	Repo   string
	Issue  Issue
	Config pricing.Config
}

// IssueResult is the outcome of an IssueRequest.
type IssueResult struct {
	Number  int
	Status  IssueStatus
	Desired string
	Changes pricing.LabelChanges
	Err     error
}

// RepoResult is the outcome of repricing one repository.
type RepoResult struct {
	Repo    Repo
	Skipped SkipReason
	Issues  []IssueResult
	// Err is set when the repository's issues could not be listed.
	Err error
}

// Report collects the results of a fleet run in listing order.
type Report struct {
	Org   string
	Repos []RepoResult
	// Err is set when the organization's repositories could not be listed.
	Err error
}

// Totals summarizes a Report.
type Totals struct {
	Updated, Unchanged, Unpriced, Failed int
	ReposProcessed, ReposSkipped         int
	ReposFailed                          int
}

// Totals counts the issue and repository outcomes.
func (r *Report) Totals() Totals {
	var t Totals
	for _, rr := range r.Repos {
		switch {
		case rr.Skipped != SkipNone:
			t.ReposSkipped++
			continue
		case rr.Err != nil:
			t.ReposFailed++
			continue
		}
		t.ReposProcessed++
		for _, ir := range rr.Issues {
			switch ir.Status {
			case IssueUpdated:
				t.Updated++
			case IssueUnchanged:
				t.Unchanged++
			case IssueUnpriced:
				t.Unpriced++
			case IssueFailed:
				t.Failed++
			}
		}
	}
	return t
}
