/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pricing

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    Config
		wantErr string
	}{{
		name: "full document",
		doc: `
basePriceMultiplier: 1.5
labels:
  time:
    - name: "Time: <1 Hour"
    - name: "Time: <1 Day"
      description: "Less than a day"
  priority:
    - name: "Priority: 1 (Normal)"
globalConfigUpdate:
  excludeRepos: ["devpool-directory", "sandbox"]
plugins: ignored
`,
		want: Config{
			BasePriceMultiplier: 1.5,
			Labels: Labels{
				Time:     []LabelSpec{{Name: "Time: <1 Hour"}, {Name: "Time: <1 Day", Description: "Less than a day"}},
				Priority: []LabelSpec{{Name: "Priority: 1 (Normal)"}},
			},
			GlobalConfigUpdate: &GlobalConfigUpdate{ExcludeRepos: []string{"devpool-directory", "sandbox"}},
		},
	}, {
		name: "plugin list settings",
		doc: `
plugins:
  - uses:
      - plugin: ubiquity-os-marketplace/text-conversation-rewards@main
        with:
          reward: 1
  - uses:
      - plugin: ubiquity-os-marketplace/daemon-pricing@main
        with:
          basePriceMultiplier: 1.5
          labels:
            time:
              - name: "Time: <1 Hour"
            priority:
              - name: "Priority: 1 (Normal)"
          globalConfigUpdate:
            excludeRepos: ["sandbox"]
`,
		want: Config{
			BasePriceMultiplier: 1.5,
			Labels: Labels{
				Time:     []LabelSpec{{Name: "Time: <1 Hour"}},
				Priority: []LabelSpec{{Name: "Priority: 1 (Normal)"}},
			},
			GlobalConfigUpdate: &GlobalConfigUpdate{ExcludeRepos: []string{"sandbox"}},
		},
	}, {
		name: "plugin map settings",
		doc: `
plugins:
  ubiquity-os-marketplace/daemon-pricing@main:
    with:
      basePriceMultiplier: 2
`,
		want: Config{BasePriceMultiplier: 2},
	}, {
		name: "plugins without pricing fall back to top level",
		doc: `
basePriceMultiplier: 3
plugins:
  - uses:
      - plugin: ubiquity-os-marketplace/command-start-stop@main
        with:
          maxConcurrentTasks: 2
`,
		want: Config{BasePriceMultiplier: 3},
	}, {
		name: "empty document uses defaults",
		doc:  "",
		want: Config{BasePriceMultiplier: DefaultBasePriceMultiplier},
	}, {
		name:    "zero multiplier",
		doc:     "basePriceMultiplier: 0",
		wantErr: "must be positive",
	}, {
		name: "bad time label",
		doc: `
labels:
  time:
    - name: "Time: whenever"
`,
		wantErr: `time label "Time: whenever"`,
	}, {
		name:    "malformed yaml",
		doc:     "basePriceMultiplier: [",
		wantErr: "decoding pricing settings",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBytes([]byte(tt.doc))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("DecodeBytes() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeBytes() = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeBytes() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWithBaseMultiplierDoesNotAlias(t *testing.T) {
	orig := Config{BasePriceMultiplier: 1}
	next := orig.WithBaseMultiplier(2)
	if orig.BasePriceMultiplier != 1 {
		t.Errorf("original multiplier changed to %v", orig.BasePriceMultiplier)
	}
	if next.BasePriceMultiplier != 2 {
		t.Errorf("next multiplier = %v, want 2", next.BasePriceMultiplier)
	}
}

func TestExcludedRepos(t *testing.T) {
	var cfg Config
	if cfg.IsExcluded("a") {
		t.Error("nil GlobalConfigUpdate excluded a repo")
	}

	base := Config{GlobalConfigUpdate: &GlobalConfigUpdate{ExcludeRepos: []string{"a"}}}
	got := base.WithExcludedRepos("b", "a")
	if diff := cmp.Diff([]string{"a", "b"}, got.ExcludeRepos()); diff != "" {
		t.Errorf("ExcludeRepos() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, base.ExcludeRepos()); diff != "" {
		t.Errorf("WithExcludedRepos modified receiver (-want +got):\n%s", diff)
	}
	if !got.IsExcluded("b") || got.IsExcluded("c") {
		t.Errorf("IsExcluded() wrong for %v", got.ExcludeRepos())
	}
}
