/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pricing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"
)

// DefaultBasePriceMultiplier is used when the settings document omits basePriceMultiplier.
const DefaultBasePriceMultiplier = 1

// LabelSpec describes a label declared in the settings document.
type LabelSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// Labels holds the time and priority labels an organization prices with.
type Labels struct {
	Time     []LabelSpec `yaml:"time,omitempty"`
	Priority []LabelSpec `yaml:"priority,omitempty"`
}

// GlobalConfigUpdate controls fleet propagation. When it is nil on a Config
// the pricing change only updates the label catalog.
type GlobalConfigUpdate struct {
	ExcludeRepos []string `yaml:"excludeRepos,omitempty"`
}

// Config is the pricing configuration for an organization.
//
// Config is a value: methods that change it return a modified copy and the
// slices it holds are never written after Decode.
type Config struct {
	BasePriceMultiplier float64             `yaml:"basePriceMultiplier"`
	Labels              Labels              `yaml:"labels,omitempty"`
	GlobalConfigUpdate  *GlobalConfigUpdate `yaml:"globalConfigUpdate,omitempty"`
}

// Decode parses a YAML settings document.
//
// The pricing settings are read from the "with" block of the pricing plugin
// when the document lists plugins, and from the top level otherwise. An
// empty document yields the default configuration.
func Decode(r io.Reader) (Config, error) {
	cfg := Config{BasePriceMultiplier: DefaultBasePriceMultiplier}

	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("decoding pricing settings: %w", err)
		}
	} else if err := pricingSettings(&doc).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding pricing settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// pricingKeys are the settings only the pricing plugin declares.
var pricingKeys = []string{"basePriceMultiplier", "labels", "globalConfigUpdate"}

// pricingSettings returns the node holding the pricing settings of doc.
// Both plugin layouts are accepted:
//
//	plugins:
//	  - uses:
//	      - plugin: org/daemon-pricing@main
//	        with: {...}
//
//	plugins:
//	  org/daemon-pricing@main:
//	    with: {...}
func pricingSettings(doc *yaml.Node) *yaml.Node {
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if plugins := mappingValue(root, "plugins"); plugins != nil {
		if with := pluginWith(plugins); with != nil {
			return with
		}
	}
	return root
}

// pluginWith finds the first plugin "with" block declaring pricing keys.
func pluginWith(n *yaml.Node) *yaml.Node {
	switch n.Kind {
	case yaml.SequenceNode:
		for _, c := range n.Content {
			if w := pluginWith(c); w != nil {
				return w
			}
		}
	case yaml.MappingNode:
		if with := mappingValue(n, "with"); with != nil {
			for _, k := range pricingKeys {
				if mappingValue(with, k) != nil {
					return with
				}
			}
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == "with" {
				continue
			}
			if w := pluginWith(n.Content[i+1]); w != nil {
				return w
			}
		}
	}
	return nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// DecodeBytes is Decode for an in-memory document.
func DecodeBytes(b []byte) (Config, error) {
	return Decode(bytes.NewReader(b))
}

// Validate reports settings that could never produce a valid price.
func (c Config) Validate() error {
	if c.BasePriceMultiplier <= 0 {
		return fmt.Errorf("basePriceMultiplier must be positive, got %v", c.BasePriceMultiplier)
	}
	for _, l := range c.Labels.Time {
		if _, ok := TimeValue(l.Name); !ok {
			return fmt.Errorf("time label %q has no recognizable duration", l.Name)
		}
	}
	for _, l := range c.Labels.Priority {
		if _, ok := PriorityValue(l.Name); !ok {
			return fmt.Errorf("priority label %q has no recognizable level", l.Name)
		}
	}
	return nil
}

// WithBaseMultiplier returns a copy of c priced with rate.
func (c Config) WithBaseMultiplier(rate float64) Config {
	c.BasePriceMultiplier = rate
	return c
}

// WithExcludedRepos returns a copy of c whose fleet propagation skips repos
// in addition to any repositories already excluded.
func (c Config) WithExcludedRepos(repos ...string) Config {
	excluded := []string{}
	if c.GlobalConfigUpdate != nil {
		excluded = append(excluded, c.GlobalConfigUpdate.ExcludeRepos...)
	}
	for _, r := range repos {
		if !slices.Contains(excluded, r) {
			excluded = append(excluded, r)
		}
	}
	c.GlobalConfigUpdate = &GlobalConfigUpdate{ExcludeRepos: excluded}
	return c
}

// ExcludeRepos returns the repositories exempt from fleet propagation.
func (c Config) ExcludeRepos() []string {
	if c.GlobalConfigUpdate == nil {
		return nil
	}
	return c.GlobalConfigUpdate.ExcludeRepos
}

// IsExcluded reports whether repo is exempt from fleet propagation.
func (c Config) IsExcluded(repo string) bool {
	return slices.Contains(c.ExcludeRepos(), repo)
}
