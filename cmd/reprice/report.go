/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/ubq-testing/assistive-pricing/pkg/repricer"
)

func renderReport(w io.Writer, report *repricer.Report, multiplier float64, dryRun bool) {
	mode := "applied"
	if dryRun {
		mode = "planned"
	}
	fmt.Fprintf(w, "%s at base multiplier %v (%s)\n", report.Org, multiplier, mode)

	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Repository", "Status", "Updated", "Unchanged", "Unpriced", "Failed"})
	for _, rr := range report.Repos {
		status := "ok"
		switch {
		case rr.Skipped != repricer.SkipNone:
			status = "skipped (" + string(rr.Skipped) + ")"
		case rr.Err != nil:
			status = "error: " + rr.Err.Error()
		}
		counts := map[repricer.IssueStatus]int{}
		for _, ir := range rr.Issues {
			counts[ir.Status]++
		}
		table.Append([]string{
			rr.Repo.Name,
			status,
			strconv.Itoa(counts[repricer.IssueUpdated]),
			strconv.Itoa(counts[repricer.IssueUnchanged]),
			strconv.Itoa(counts[repricer.IssueUnpriced]),
			strconv.Itoa(counts[repricer.IssueFailed]),
		})
	}
	t := report.Totals()
	table.SetFooter([]string{
		"Total",
		fmt.Sprintf("%d repos, %d skipped", t.ReposProcessed, t.ReposSkipped),
		strconv.Itoa(t.Updated),
		strconv.Itoa(t.Unchanged),
		strconv.Itoa(t.Unpriced),
		strconv.Itoa(t.Failed),
	})
	table.Render()
}
