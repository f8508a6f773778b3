package policydiff

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/relieflabs/firebreak/internal/policy"
)

func TestIdenticalPoliciesNoChanges(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()

	r := Diff(a, b)
	if r.HasChanges {
		t.Errorf("expected no changes, got %d changes + %d rule changes",
			len(r.Changes), len(r.RuleChanges))
	}
}

func TestChangedThresholdDetected(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.HighVolumeThreshold = 500

	r := Diff(a, b)
	if !r.HasChanges {
		t.Fatal("expected changes")
	}

	found := false
	for _, c := range r.Changes {
		if c.Field == "high_volume_threshold" {
			found = true
			if c.Old != "1000" || c.New != "500" {
				t.Errorf("expected 1000/500, got %s/%s", c.Old, c.New)
			}
			if c.Comment != "stricter" {
				t.Errorf("expected 'stricter', got %q", c.Comment)
			}
		}
	}
	if !found {
		t.Error("high_volume_threshold change not found")
	}
}

func TestThresholdZeroDisablesGate(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.HighVolumeThreshold = 0

	r := Diff(a, b)
	found := false
	for _, c := range r.Changes {
		if c.Field == "high_volume_threshold" {
			found = true
			if c.Comment != "gate disabled" {
				t.Errorf("expected 'gate disabled', got %q", c.Comment)
			}
		}
	}
	if !found {
		t.Error("high_volume_threshold change not found")
	}
}

func TestDepthIncreaseIsLooser(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.MaxPathDepth = 3

	r := Diff(a, b)
	found := false
	for _, c := range r.Changes {
		if c.Field == "max_path_depth" {
			found = true
			if c.Comment != "looser" {
				t.Errorf("expected 'looser', got %q", c.Comment)
			}
		}
	}
	if !found {
		t.Error("max_path_depth change not found")
	}
}

func TestBaseDirChangeDetected(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.BaseDir = "/srv/depot/outgoing_dispatch"

	r := Diff(a, b)
	found := false
	for _, c := range r.Changes {
		if c.Field == "base_dir" {
			found = true
			if c.Comment != "" {
				t.Errorf("base_dir has no strictness direction, got %q", c.Comment)
			}
		}
	}
	if !found {
		t.Error("base_dir change not found")
	}
}

func TestAddedActionKindIsLooser(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.AllowedActionKinds = append(b.AllowedActionKinds, "send_notification")

	r := Diff(a, b)
	found := false
	for _, c := range r.Changes {
		if c.Field == "allowed_action_kinds" && c.New == "send_notification" {
			found = true
			if c.Comment != "looser" {
				t.Errorf("expected 'looser', got %q", c.Comment)
			}
		}
	}
	if !found {
		t.Error("added action kind not found")
	}
}

func TestRemovedActionKindIsStricter(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.AllowedActionKinds = nil

	r := Diff(a, b)
	found := false
	for _, c := range r.Changes {
		if c.Field == "allowed_action_kinds" && c.Old == "write_dispatch_log" {
			found = true
			if c.Comment != "stricter" {
				t.Errorf("expected 'stricter', got %q", c.Comment)
			}
		}
	}
	if !found {
		t.Error("removed action kind not found")
	}
}

func TestAddedClusterDetected(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.BlockedClusters = append(b.BlockedClusters, []string{"evacuation", "override"})

	r := Diff(a, b)
	found := false
	for _, rc := range r.RuleChanges {
		if rc.Type == "added" && strings.Contains(rc.Rule, "cluster [evacuation, override]") {
			found = true
		}
	}
	if !found {
		t.Errorf("added cluster not found in %v", r.RuleChanges)
	}
}

func TestRemovedPatternDetected(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.BlockedPatterns = b.BlockedPatterns[1:]

	r := Diff(a, b)
	found := false
	for _, rc := range r.RuleChanges {
		if rc.Type == "removed" && strings.HasPrefix(rc.Rule, "pattern ") {
			found = true
		}
	}
	if !found {
		t.Errorf("removed pattern not found in %v", r.RuleChanges)
	}
}

func TestAllowSubdirectoriesLooser(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.AllowSubdirectories = true

	r := Diff(a, b)
	found := false
	for _, c := range r.Changes {
		if c.Field == "allow_subdirectories" {
			found = true
			if c.Comment != "looser" {
				t.Errorf("expected 'looser', got %q", c.Comment)
			}
		}
	}
	if !found {
		t.Error("allow_subdirectories change not found")
	}
}

func TestMultipleChanges(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.BaseDir = "/srv/depot/outgoing_dispatch"
	b.MaxPathDepth = 2
	b.HighVolumeThreshold = 500
	b.BlockedClusters = append(b.BlockedClusters, []string{"extra", "terms"})

	r := Diff(a, b)
	if !r.HasChanges {
		t.Fatal("expected changes")
	}
	if len(r.Changes) < 3 {
		t.Errorf("expected at least 3 changes, got %d", len(r.Changes))
	}
	if len(r.RuleChanges) < 1 {
		t.Errorf("expected at least 1 rule change, got %d", len(r.RuleChanges))
	}
}

func TestFormatTextNoChanges(t *testing.T) {
	r := Diff(policy.DefaultConfig(), policy.DefaultConfig())
	r.OldPath = "old.yaml"
	r.NewPath = "new.yaml"

	out := FormatText(r)
	if !strings.Contains(out, "No changes detected") {
		t.Errorf("expected no-changes message, got:\n%s", out)
	}
}

func TestFormatTextSections(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.HighVolumeThreshold = 500
	b.AllowedActionKinds = append(b.AllowedActionKinds, "send_notification")
	b.BlockedClusters = append(b.BlockedClusters, []string{"extra", "terms"})

	r := Diff(a, b)
	out := FormatText(r)

	if !strings.Contains(out, "high_volume_threshold") {
		t.Error("expected threshold line")
	}
	if !strings.Contains(out, "Action kinds:") {
		t.Error("expected action kinds section")
	}
	if !strings.Contains(out, "+ send_notification") {
		t.Error("expected added action kind marker")
	}
	if !strings.Contains(out, "Content rules:") {
		t.Error("expected content rules section")
	}
	if !strings.Contains(out, "+ cluster [extra, terms]") {
		t.Error("expected added cluster marker")
	}
}

func TestFormatJSON(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.HighVolumeThreshold = 500

	out, err := FormatJSON(Diff(a, b))
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}

	var parsed Report
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if !parsed.HasChanges {
		t.Error("expected has_changes true")
	}
}
