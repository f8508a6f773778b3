// Package policydiff compares two policy configurations and reports what
// changed, annotating each change as stricter or looser where the
// direction has a meaning.
package policydiff

import (
	"fmt"
	"strings"

	"github.com/relieflabs/firebreak/internal/policy"
)

// Change represents a scalar or set-membership change.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// RuleChange represents a content-rule addition or removal.
type RuleChange struct {
	Type string `json:"type"` // "added", "removed"
	Rule string `json:"rule"`
}

// Report holds the comparison of two policy configs.
type Report struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	Changes     []Change     `json:"changes"`
	RuleChanges []RuleChange `json:"rule_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares two policy configs and returns the differences.
func Diff(old, new *policy.Config) *Report {
	r := &Report{}

	if old.Version != new.Version {
		r.Changes = append(r.Changes, Change{
			Field: "version",
			Old:   old.Version,
			New:   new.Version,
		})
	}
	if old.BaseDir != new.BaseDir {
		r.Changes = append(r.Changes, Change{
			Field: "base_dir",
			Old:   old.BaseDir,
			New:   new.BaseDir,
		})
	}
	if old.MaxPathDepth != new.MaxPathDepth {
		r.Changes = append(r.Changes, Change{
			Field:   "max_path_depth",
			Old:     fmt.Sprintf("%d", old.MaxPathDepth),
			New:     fmt.Sprintf("%d", new.MaxPathDepth),
			Comment: lowerIsStricter(old.MaxPathDepth, new.MaxPathDepth),
		})
	}
	if old.AllowSubdirectories != new.AllowSubdirectories {
		comment := "stricter"
		if new.AllowSubdirectories {
			comment = "looser"
		}
		r.Changes = append(r.Changes, Change{
			Field:   "allow_subdirectories",
			Old:     fmt.Sprintf("%t", old.AllowSubdirectories),
			New:     fmt.Sprintf("%t", new.AllowSubdirectories),
			Comment: comment,
		})
	}
	if old.HighVolumeThreshold != new.HighVolumeThreshold {
		r.Changes = append(r.Changes, Change{
			Field:   "high_volume_threshold",
			Old:     fmt.Sprintf("%d", old.HighVolumeThreshold),
			New:     fmt.Sprintf("%d", new.HighVolumeThreshold),
			Comment: thresholdComment(old.HighVolumeThreshold, new.HighVolumeThreshold),
		})
	}

	diffActionKinds(r, old.AllowedActionKinds, new.AllowedActionKinds)
	diffClusters(r, old.BlockedClusters, new.BlockedClusters)
	diffPatterns(r, old.BlockedPatterns, new.BlockedPatterns)

	r.HasChanges = len(r.Changes) > 0 || len(r.RuleChanges) > 0
	return r
}

func lowerIsStricter(old, new int) string {
	if new < old {
		return "stricter"
	}
	return "looser"
}

// Threshold 0 disables the approval gate entirely, so moving to 0 is the
// loosest possible change even though the number went down.
func thresholdComment(old, new int) string {
	if new == 0 {
		return "gate disabled"
	}
	if old == 0 {
		return "gate enabled"
	}
	return lowerIsStricter(old, new)
}

func diffActionKinds(r *Report, oldKinds, newKinds []string) {
	oldSet := toSet(oldKinds)
	newSet := toSet(newKinds)

	for _, k := range newKinds {
		if !oldSet[k] {
			r.Changes = append(r.Changes, Change{
				Field:   "allowed_action_kinds",
				New:     k,
				Comment: "looser",
			})
		}
	}
	for _, k := range oldKinds {
		if !newSet[k] {
			r.Changes = append(r.Changes, Change{
				Field:   "allowed_action_kinds",
				Old:     k,
				Comment: "stricter",
			})
		}
	}
}

func diffClusters(r *Report, old, new [][]string) {
	oldSet := make(map[string]bool)
	for _, cl := range old {
		oldSet[clusterKey(cl)] = true
	}
	newSet := make(map[string]bool)
	for _, cl := range new {
		newSet[clusterKey(cl)] = true
	}

	for _, cl := range new {
		if !oldSet[clusterKey(cl)] {
			r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "added", Rule: clusterLabel(cl)})
		}
	}
	for _, cl := range old {
		if !newSet[clusterKey(cl)] {
			r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "removed", Rule: clusterLabel(cl)})
		}
	}
}

func diffPatterns(r *Report, old, new []string) {
	oldSet := toSet(old)
	newSet := toSet(new)

	for _, p := range new {
		if !oldSet[p] {
			r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "added", Rule: "pattern " + p})
		}
	}
	for _, p := range old {
		if !newSet[p] {
			r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "removed", Rule: "pattern " + p})
		}
	}
}

// clusterKey treats a cluster as its exact term sequence; reordering terms
// reads as a removal plus an addition.
func clusterKey(cl []string) string {
	return strings.Join(cl, "+")
}

func clusterLabel(cl []string) string {
	return fmt.Sprintf("cluster [%s]", strings.Join(cl, ", "))
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
