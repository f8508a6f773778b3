// Package zone extracts affected-zone references and supply quantities
// from mission text. Deterministic pattern matching — no ML, no
// heuristics beyond the fixed rules below.
package zone

import (
	"regexp"
	"strconv"
	"strings"
)

// Unspecified is the placeholder zone when text names no zone at all.
const Unspecified = "zone_unspecified"

// HighVolumeThreshold is the default unit count above which a dispatch
// needs a human sign-off.
const HighVolumeThreshold = 1000

// zoneRe captures "zone 4", "sector 7b", "district north" style
// references. The label group keeps letters/digits/hyphens only.
var zoneRe = regexp.MustCompile(`\b(zone|sector|district|grid)[\s\-]+([a-z0-9][a-z0-9\-]*)\b`)

// quantityRe captures integers with optional comma grouping.
var quantityRe = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+\b|\b\d+\b`)

// unitRe lists supply nouns that make a bare number a dispatch quantity.
var unitRe = regexp.MustCompile(`\b(units?|kits?|liters?|litres?|meals?|blankets?|tents?|tonnes?|tons?|packs?|crates?|boxes)\b`)

// unitWindow is how close (in bytes) a quantity and a unit noun must be.
const unitWindow = 40

// Extract returns zone identifiers referenced in the text, deduplicated
// in first-seen order, normalized to lower snake case ("zone_4").
// Text with no zone reference yields [Unspecified].
func Extract(text string) []string {
	lower := strings.ToLower(text)
	matches := zoneRe.FindAllStringSubmatch(lower, -1)
	if len(matches) == 0 {
		return []string{Unspecified}
	}

	seen := make(map[string]bool, len(matches))
	zones := make([]string, 0, len(matches))
	for _, m := range matches {
		id := m[1] + "_" + strings.ReplaceAll(m[2], "-", "_")
		if seen[id] {
			continue
		}
		seen[id] = true
		zones = append(zones, id)
	}
	return zones
}

// DetectHighVolume scans text for supply quantities and reports whether
// the largest one strictly exceeds the threshold. A number only counts
// when a supply-unit noun appears within unitWindow bytes of it, so
// "zone 4000" or a phone number does not trip the gate. threshold <= 0
// disables detection.
func DetectHighVolume(text string, threshold int) (bool, int) {
	if threshold <= 0 {
		return false, 0
	}

	lower := strings.ToLower(text)
	unitSpans := unitRe.FindAllStringIndex(lower, -1)
	if len(unitSpans) == 0 {
		return false, 0
	}

	largest := 0
	for _, span := range quantityRe.FindAllStringIndex(lower, -1) {
		if !nearAnyUnit(span, unitSpans) {
			continue
		}
		raw := strings.ReplaceAll(lower[span[0]:span[1]], ",", "")
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if n > largest {
			largest = n
		}
	}

	return largest > threshold, largest
}

func nearAnyUnit(q []int, units [][]int) bool {
	for _, u := range units {
		if q[1]+unitWindow >= u[0] && u[1]+unitWindow >= q[0] {
			return true
		}
	}
	return false
}
