/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repricer

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// fakeClient is an in-memory Client. Mutations are applied to the stored
// issues and labels and recorded in order.
type fakeClient struct {
	mu sync.Mutex

	roles  map[string]string // login -> org role
	repos  []Repo
	issues map[string][]Issue // repo name -> issues
	labels map[string][]Label // repo name -> catalog
	files  map[string]string  // path@ref -> content
	diff   string

	listIssuesErr map[string]error
	addLabelsErr  map[int]error

	issueListings []string
	diffCalls     []string
	mutations     []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		roles:         map[string]string{},
		issues:        map[string][]Issue{},
		labels:        map[string][]Label{},
		files:         map[string]string{},
		listIssuesErr: map[string]error{},
		addLabelsErr:  map[int]error{},
	}
}

func (f *fakeClient) record(format string, args ...any) {
	f.mutations = append(f.mutations, fmt.Sprintf(format, args...))
}

func (f *fakeClient) IsAdminOrBillingManager(_ context.Context, _, login string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.roles[login] {
	case "admin", "billing_manager":
		return true, nil
	}
	return false, nil
}

func (f *fakeClient) ListOrgRepos(context.Context, string) ([]Repo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.repos), nil
}

func (f *fakeClient) ListOpenIssues(_ context.Context, _, repo string) ([]Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issueListings = append(f.issueListings, repo)
	if err := f.listIssuesErr[repo]; err != nil {
		return nil, err
	}
	var out []Issue
	for _, i := range f.issues[repo] {
		out = append(out, Issue{Number: i.Number, Labels: slices.Clone(i.Labels)})
	}
	return out, nil
}

func (f *fakeClient) CompareDiff(_ context.Context, _, _, before, after string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diffCalls = append(f.diffCalls, before+"..."+after)
	return f.diff, nil
}

func (f *fakeClient) CommitDiff(_ context.Context, _, _, sha string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diffCalls = append(f.diffCalls, sha)
	return f.diff, nil
}

func (f *fakeClient) GetFile(_ context.Context, _, _, path, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.files[path+"@"+ref]
	if !ok {
		return nil, fmt.Errorf("%s@%s not found", path, ref)
	}
	return []byte(s), nil
}

func (f *fakeClient) ListLabels(_ context.Context, _, repo string) ([]Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.labels[repo]), nil
}

func (f *fakeClient) CreateLabel(_ context.Context, _, repo string, label Label) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[repo] = append(f.labels[repo], label)
	f.record("create %s %q", repo, label.Name)
	return nil
}

func (f *fakeClient) DeleteLabel(_ context.Context, _, repo, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[repo] = slices.DeleteFunc(f.labels[repo], func(l Label) bool { return l.Name == name })
	f.record("delete %s %q", repo, name)
	return nil
}

func (f *fakeClient) AddLabels(_ context.Context, _, repo string, number int, names ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.addLabelsErr[number]; err != nil {
		return err
	}
	for idx, i := range f.issues[repo] {
		if i.Number == number {
			f.issues[repo][idx].Labels = append(i.Labels, names...)
		}
	}
	for _, n := range names {
		f.record("add %s#%d %q", repo, number, n)
	}
	return nil
}

func (f *fakeClient) RemoveLabel(_ context.Context, _, repo string, number int, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for idx, i := range f.issues[repo] {
		if i.Number == number {
			f.issues[repo][idx].Labels = slices.DeleteFunc(i.Labels, func(l string) bool { return l == name })
		}
	}
	f.record("remove %s#%d %q", repo, number, name)
	return nil
}

func (f *fakeClient) issueLabels(repo string, number int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, i := range f.issues[repo] {
		if i.Number == number {
			return slices.Clone(i.Labels)
		}
	}
	return nil
}
