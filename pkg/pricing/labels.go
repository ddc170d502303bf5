/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pricing

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// PriceLabelPrefix starts every price label, e.g. "Price: 12.5 USD".
	PriceLabelPrefix = "Price: "
	// PriceLabelSuffix ends every price label.
	PriceLabelSuffix = " USD"
	// PriceLabelColor is the catalog color for price labels.
	PriceLabelColor = "1f883d"

	timeLabelPrefix     = "time:"
	priorityLabelPrefix = "priority:"
)

var (
	firstNumber    = regexp.MustCompile(`\d+`)
	priceLabelText = regexp.MustCompile(`^Price: (\d+(?:\.\d+)?) USD$`)
)

// TimeValue converts a time estimate label such as "Time: <2 Hours" into
// the unit the price formula consumes. Hours are an eighth of a unit, the
// first day is a full unit and each following day a quarter, weeks and
// months grow from there.
func TimeValue(label string) (float64, bool) {
	lower := strings.ToLower(label)
	if !strings.HasPrefix(lower, timeLabelPrefix) {
		return 0, false
	}
	n, ok := leadingNumber(lower)
	if !ok {
		return 0, false
	}
	switch {
	case strings.Contains(lower, "minute"):
		return n * 0.002, true
	case strings.Contains(lower, "hour"):
		return n * 0.125, true
	case strings.Contains(lower, "day"):
		return 1 + (n-1)*0.25, true
	case strings.Contains(lower, "week"):
		return n + 1, true
	case strings.Contains(lower, "month"):
		return 5 + (n-1)*8, true
	}
	return 0, false
}

// PriorityValue extracts the level from a label such as "Priority: 3 (High)".
func PriorityValue(label string) (float64, bool) {
	lower := strings.ToLower(label)
	if !strings.HasPrefix(lower, priorityLabelPrefix) {
		return 0, false
	}
	return leadingNumber(lower)
}

func leadingNumber(s string) (float64, bool) {
	m := firstNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Price computes the price of a task from its time and priority values.
// The result is rounded to cents.
func Price(multiplier, timeValue, priorityValue float64) float64 {
	v := multiplier * 1000 * timeValue * (priorityValue / 10)
	return math.Round(v*100) / 100
}

// PriceLabel formats a price as a label.
func PriceLabel(price float64) string {
	return PriceLabelPrefix + strconv.FormatFloat(price, 'f', -1, 64) + PriceLabelSuffix
}

// IsPriceLabel reports whether name is a price label.
func IsPriceLabel(name string) bool {
	return priceLabelText.MatchString(name)
}

// PriceLabels returns the canonical price label for every time and
// priority pair declared in c, in declaration order, without duplicates.
func (c Config) PriceLabels() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range c.Labels.Time {
		tv, ok := TimeValue(t.Name)
		if !ok {
			continue
		}
		for _, p := range c.Labels.Priority {
			pv, ok := PriorityValue(p.Name)
			if !ok {
				continue
			}
			l := PriceLabel(Price(c.BasePriceMultiplier, tv, pv))
			if _, dup := seen[l]; dup {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

// DesiredPriceLabel computes the price label an issue carrying labels
// should have under c. It returns false when the issue lacks either a time
// or a priority label, in which case the issue stays unpriced.
//
// When several time (or priority) labels are present the smallest wins.
func (c Config) DesiredPriceLabel(labels []string) (string, bool) {
	var (
		minTime, minPriority float64
		haveTime, havePri    bool
	)
	for _, l := range labels {
		if c.recognized(l, c.Labels.Time) {
			if v, ok := TimeValue(l); ok && (!haveTime || v < minTime) {
				minTime, haveTime = v, true
			}
		}
		if c.recognized(l, c.Labels.Priority) {
			if v, ok := PriorityValue(l); ok && (!havePri || v < minPriority) {
				minPriority, havePri = v, true
			}
		}
	}
	if !haveTime || !havePri {
		return "", false
	}
	return PriceLabel(Price(c.BasePriceMultiplier, minTime, minPriority)), true
}

// recognized reports whether label participates in pricing. An empty
// declaration list accepts any label that parses.
func (c Config) recognized(label string, declared []LabelSpec) bool {
	if len(declared) == 0 {
		return true
	}
	for _, d := range declared {
		if strings.EqualFold(d.Name, label) {
			return true
		}
	}
	return false
}

// LabelChanges describes the mutation that brings an issue's labels in line
// with its desired price label.
type LabelChanges struct {
	Add    []string
	Remove []string
}

// Empty reports whether no mutation is needed.
func (lc LabelChanges) Empty() bool {
	return len(lc.Add) == 0 && len(lc.Remove) == 0
}

func (lc LabelChanges) String() string {
	return fmt.Sprintf("add=%v remove=%v", lc.Add, lc.Remove)
}

// PlanPriceLabel computes the label mutation for an issue. Every price
// label other than the desired one is removed and the desired one added when
// missing. An unpriced issue loses all of its price labels.
func (c Config) PlanPriceLabel(labels []string) LabelChanges {
	want, _ := c.DesiredPriceLabel(labels)
	var lc LabelChanges
	has := false
	for _, l := range labels {
		switch {
		case l == want:
			has = true
		case IsPriceLabel(l):
			lc.Remove = append(lc.Remove, l)
		}
	}
	if !has && want != "" {
		lc.Add = []string{want}
	}
	return lc
}
