/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package httpmetrics

import (
	"regexp"
)

type pathPattern struct {
	pattern *regexp.Regexp
	bucket  string
}

// githubAPIPatterns cover the endpoints the repricer touches. Anything else
// falls into "other" to keep label cardinality bounded.
var githubAPIPatterns = []pathPattern{{
	// https://docs.github.com/en/rest/orgs/members#get-organization-membership-for-a-user
	pattern: regexp.MustCompile(`^/orgs/[^/]+/memberships/[^/]+$`),
	bucket:  "/orgs/{org}/memberships/{user}",
}, {
	// https://docs.github.com/en/rest/repos/repos#list-organization-repositories
	pattern: regexp.MustCompile(`^/orgs/[^/]+/repos$`),
	bucket:  "/orgs/{org}/repos",
}, {
	// https://docs.github.com/en/rest/issues/issues#list-repository-issues
	pattern: regexp.MustCompile(`^/repos/[^/]+/[^/]+/issues$`),
	bucket:  "/repos/{org}/{repo}/issues",
}, {
	// https://docs.github.com/en/rest/issues/labels#add-labels-to-an-issue
	pattern: regexp.MustCompile(`^/repos/[^/]+/[^/]+/issues/\d+/labels$`),
	bucket:  "/repos/{org}/{repo}/issues/{number}/labels",
}, {
	// https://docs.github.com/en/rest/issues/labels#remove-a-label-from-an-issue
	pattern: regexp.MustCompile(`^/repos/[^/]+/[^/]+/issues/\d+/labels/[^/]+$`),
	bucket:  "/repos/{org}/{repo}/issues/{number}/labels/{name}",
}, {
	// https://docs.github.com/en/rest/issues/labels#list-labels-for-a-repository
	pattern: regexp.MustCompile(`^/repos/[^/]+/[^/]+/labels$`),
	bucket:  "/repos/{org}/{repo}/labels",
}, {
	// https://docs.github.com/en/rest/issues/labels#delete-a-label
	pattern: regexp.MustCompile(`^/repos/[^/]+/[^/]+/labels/[^/]+$`),
	bucket:  "/repos/{org}/{repo}/labels/{name}",
}, {
	// https://docs.github.com/en/rest/commits/commits#compare-two-commits
	pattern: regexp.MustCompile(`^/repos/[^/]+/[^/]+/compare/[^/]+$`),
	bucket:  "/repos/{org}/{repo}/compare/{basehead}",
}, {
	// https://docs.github.com/en/rest/commits/commits#get-a-commit
	pattern: regexp.MustCompile(`^/repos/[^/]+/[^/]+/commits/[^/]+$`),
	bucket:  "/repos/{org}/{repo}/commits/{sha}",
}, {
	// https://docs.github.com/en/rest/repos/contents#get-repository-content
	pattern: regexp.MustCompile(`^/repos/[^/]+/[^/]+/contents/.+$`),
	bucket:  "/repos/{org}/{repo}/contents/{path}",
}, {
	// https://docs.github.com/en/rest/rate-limit/rate-limit#get-rate-limit-status-for-the-authenticated-user
	pattern: regexp.MustCompile(`^/rate_limit$`),
	bucket:  "/rate_limit",
}}

// bucketizePath maps a GitHub API path to a bounded route template.
func bucketizePath(path string) string {
	for _, p := range githubAPIPatterns {
		if p.pattern.MatchString(path) {
			return p.bucket
		}
	}
	return "other"
}
