package dispatch

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func validParams() Params {
	return Params{
		RunID:              "run-test123",
		Model:              "gpt-4o-mini",
		Category:           "flood",
		Severity:           "HIGH",
		RecommendedActions: []string{"Deploy rapid-response logistics unit", "Establish supply corridor"},
		AffectedZones:      []string{"zone_4"},
		Confidence:         0.85,
		MissionBriefing:    "500 water purification units needed for flood zone 4",
		Enforcement: Enforcement{
			ShieldCleared: true,
			ActionType:    "write_dispatch_log",
		},
		Delegation: Delegation{
			Commander: "mission_commander",
			SubAgent:  "logistics_dispatcher",
			Scope:     "write_dispatch_log",
			Bounded:   true,
		},
	}
}

func TestNewPayloadStampsVersionAndTimestamp(t *testing.T) {
	p := NewPayload(validParams())
	if p.SchemaVersion != SchemaVersion {
		t.Errorf("expected schema version %s, got %s", SchemaVersion, p.SchemaVersion)
	}
	if _, err := time.Parse(TimeLayout, p.GeneratedAtUTC); err != nil {
		t.Errorf("generated_at_utc %q does not parse: %v", p.GeneratedAtUTC, err)
	}
}

func TestNewPayloadGeneratesRunID(t *testing.T) {
	params := validParams()
	params.RunID = ""
	p := NewPayload(params)
	if p.RunID == "" {
		t.Error("expected a generated run ID")
	}
}

func TestNewPayloadDefaultsRulesChecked(t *testing.T) {
	p := NewPayload(validParams())
	want := []string{"ACTION_TYPE", "MEDICAL_BLOCK", "DIR_SCOPE"}
	if len(p.Enforcement.RulesChecked) != len(want) {
		t.Fatalf("expected %v, got %v", want, p.Enforcement.RulesChecked)
	}
	for i := range want {
		if p.Enforcement.RulesChecked[i] != want[i] {
			t.Errorf("rules_checked[%d]: expected %s, got %s", i, want[i], p.Enforcement.RulesChecked[i])
		}
	}
}

func TestValidatePayloadValid(t *testing.T) {
	if err := NewPayload(validParams()).Validate(); err != nil {
		t.Errorf("expected valid payload, got: %v", err)
	}
}

func TestValidatePayloadBadVersion(t *testing.T) {
	p := NewPayload(validParams())
	p.SchemaVersion = "1.0.0"
	err := p.Validate()
	if err == nil {
		t.Fatal("expected validation error for bad version")
	}
	if !strings.Contains(err.Error(), "schema_version") {
		t.Errorf("error should mention schema_version: %v", err)
	}
}

func TestValidatePayloadMissingRunID(t *testing.T) {
	p := NewPayload(validParams())
	p.RunID = ""
	err := p.Validate()
	if err == nil {
		t.Fatal("expected validation error for missing run_id")
	}
	if !strings.Contains(err.Error(), "run_id") {
		t.Errorf("error should mention run_id: %v", err)
	}
}

func TestValidatePayloadInvalidSeverity(t *testing.T) {
	p := NewPayload(validParams())
	p.Severity = "URGENT"
	err := p.Validate()
	if err == nil {
		t.Fatal("expected validation error for invalid severity")
	}
	if !strings.Contains(err.Error(), "severity") {
		t.Errorf("error should mention severity: %v", err)
	}
}

func TestValidatePayloadErrorSeverityRejected(t *testing.T) {
	p := NewPayload(validParams())
	p.Severity = "ERROR"
	if p.Validate() == nil {
		t.Error("ERROR severity must not be dispatchable")
	}
}

func TestValidatePayloadNoActions(t *testing.T) {
	p := NewPayload(validParams())
	p.RecommendedActions = nil
	err := p.Validate()
	if err == nil {
		t.Fatal("expected validation error for no actions")
	}
	if !strings.Contains(err.Error(), "recommended action") {
		t.Errorf("error should mention recommended action: %v", err)
	}
}

func TestValidatePayloadTooManyActions(t *testing.T) {
	p := NewPayload(validParams())
	p.RecommendedActions = make([]string, MaxActions+1)
	for i := range p.RecommendedActions {
		p.RecommendedActions[i] = "stage supplies"
	}
	err := p.Validate()
	if err == nil {
		t.Fatal("expected validation error for too many actions")
	}
	if !strings.Contains(err.Error(), "too many") {
		t.Errorf("error should mention too many: %v", err)
	}
}

func TestValidatePayloadEmptyAction(t *testing.T) {
	p := NewPayload(validParams())
	p.RecommendedActions = []string{"stage supplies", "   "}
	err := p.Validate()
	if err == nil {
		t.Fatal("expected validation error for empty action")
	}
	if !strings.Contains(err.Error(), "recommended_actions[1]") {
		t.Errorf("error should name the empty slot: %v", err)
	}
}

func TestValidatePayloadConfidenceOutOfRange(t *testing.T) {
	for _, c := range []float64{-0.1, 1.1} {
		p := NewPayload(validParams())
		p.Confidence = c
		if p.Validate() == nil {
			t.Errorf("confidence %v should fail validation", c)
		}
	}
}

func TestValidatePayloadConfidenceBoundsInclusive(t *testing.T) {
	for _, c := range []float64{0, 1} {
		p := NewPayload(validParams())
		p.Confidence = c
		if err := p.Validate(); err != nil {
			t.Errorf("confidence %v should be valid, got: %v", c, err)
		}
	}
}

func TestValidatePayloadMultipleErrors(t *testing.T) {
	p := &Payload{}
	err := p.Validate()
	if err == nil {
		t.Fatal("expected validation errors for empty payload")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Errors) < 5 {
		t.Errorf("expected at least 5 validation errors, got %d: %v", len(ve.Errors), ve.Errors)
	}
}

func TestNewFilenameFormat(t *testing.T) {
	re := regexp.MustCompile(`^dispatch_[0-9a-f]{8}\.json$`)
	name := NewFilename()
	if !re.MatchString(name) {
		t.Errorf("filename %q does not match dispatch_<8 hex>.json", name)
	}
}

func TestNewFilenameNeverRepeats(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		name := NewFilename()
		if seen[name] {
			t.Fatalf("filename %q issued twice", name)
		}
		seen[name] = true
	}
}

func TestNewReferralFilenameFormat(t *testing.T) {
	re := regexp.MustCompile(`^medical_[0-9a-f]{8}\.json$`)
	name := NewReferralFilename()
	if !re.MatchString(name) {
		t.Errorf("filename %q does not match medical_<8 hex>.json", name)
	}
}
