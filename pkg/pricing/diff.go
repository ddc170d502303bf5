/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pricing

import (
	"bufio"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// BaseRateKey is the settings key whose change triggers fleet propagation.
const BaseRateKey = "basePriceMultiplier"

var baseRateAssignment = regexp.MustCompile(`^\s*` + BaseRateKey + `\s*:\s*(.*)$`)

// RateChange is the base multiplier before and after a push. A nil field
// means the diff had no usable assignment on that side.
type RateChange struct {
	Previous *float64
	New      *float64
}

func (rc RateChange) String() string {
	return fmt.Sprintf("%s -> %s", fmtRate(rc.Previous), fmtRate(rc.New))
}

func fmtRate(r *float64) string {
	if r == nil {
		return "<none>"
	}
	return strconv.FormatFloat(*r, 'f', -1, 64)
}

// ExtractBaseRateChange scans a unified diff and returns the base rate
// assignments removed from and added to the file at path. Within each side
// the last assignment wins. Non-numeric values count as absent.
//
// Only the file section for path is considered; a diff that does not touch
// path yields an empty RateChange.
func ExtractBaseRateChange(diff, path string) RateChange {
	var (
		rc     RateChange
		inFile bool
	)
	sc := bufio.NewScanner(strings.NewReader(diff))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "diff --git ") {
			inFile = sectionIsFor(line, path)
			continue
		}
		if !inFile {
			continue
		}
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			// File headers.
		case strings.HasPrefix(line, "-"):
			if v, ok := parseAssignment(line[1:]); ok {
				rc.Previous = &v
			}
		case strings.HasPrefix(line, "+"):
			if v, ok := parseAssignment(line[1:]); ok {
				rc.New = &v
			}
		}
	}
	return rc
}

// sectionIsFor matches "diff --git a/<path> b/<path>" headers.
func sectionIsFor(header, path string) bool {
	path = strings.TrimPrefix(path, "/")
	return strings.HasSuffix(header, " b/"+path) || strings.HasPrefix(header, "diff --git a/"+path+" ")
}

func parseAssignment(line string) (float64, bool) {
	m := baseRateAssignment.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	raw := m[1]
	if i := strings.Index(raw, "#"); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.Trim(strings.TrimSpace(raw), `"'`)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
