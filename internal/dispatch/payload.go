package dispatch

import (
	"fmt"
	"strings"

	"github.com/relieflabs/firebreak/internal/model"
)

// SchemaVersion is the current dispatch payload schema version.
const SchemaVersion = "2.0.0"

// MaxActions caps how many recommended actions a payload may carry.
const MaxActions = 10

// Enforcement records what the policy layer verified before the payload
// was released for delegation.
type Enforcement struct {
	ShieldCleared      bool     `json:"shield_cleared"`
	ActionType         string   `json:"action_type"`
	RulesChecked       []string `json:"rules_checked"`
	ReflectionUsed     bool     `json:"reflection_used"`
	ReflectionAttempts int      `json:"reflection_attempts"`
}

// Delegation records who is handing off to whom, and under what scope.
type Delegation struct {
	Commander string `json:"commander"`
	SubAgent  string `json:"sub_agent"`
	Scope     string `json:"scope"`
	Bounded   bool   `json:"bounded"`
}

// Payload is the logistics dispatch artifact written for a cleared mission.
type Payload struct {
	SchemaVersion      string      `json:"schema_version"`
	GeneratedAtUTC     string      `json:"generated_at_utc"`
	RunID              string      `json:"run_id"`
	Model              string      `json:"model"`
	DisasterCategory   string      `json:"disaster_category"`
	Severity           string      `json:"severity"`
	RecommendedActions []string    `json:"recommended_actions"`
	AffectedZones      []string    `json:"affected_zones"`
	Confidence         float64     `json:"confidence"`
	MissionBriefing    string      `json:"mission_briefing"`
	Enforcement        Enforcement `json:"enforcement"`
	Delegation         Delegation  `json:"delegation"`
}

// Params holds the inputs for building a dispatch payload.
type Params struct {
	RunID              string
	Model              string
	Category           string
	Severity           string
	RecommendedActions []string
	AffectedZones      []string
	Confidence         float64
	MissionBriefing    string
	Enforcement        Enforcement
	Delegation         Delegation
}

// RulesChecked returns the canonical list of rule gates every cleared
// mission passed through, in evaluation order.
func RulesChecked() []string {
	return []string{"ACTION_TYPE", "MEDICAL_BLOCK", "DIR_SCOPE"}
}

// NewPayload builds a dispatch payload, stamping the schema version and
// generation timestamp. A missing run ID is generated; an empty
// rules_checked list defaults to the canonical gate order.
func NewPayload(p Params) *Payload {
	runID := p.RunID
	if runID == "" {
		runID = NewRunID()
	}
	enf := p.Enforcement
	if len(enf.RulesChecked) == 0 {
		enf.RulesChecked = RulesChecked()
	}
	return &Payload{
		SchemaVersion:      SchemaVersion,
		GeneratedAtUTC:     Timestamp(),
		RunID:              runID,
		Model:              p.Model,
		DisasterCategory:   p.Category,
		Severity:           p.Severity,
		RecommendedActions: p.RecommendedActions,
		AffectedZones:      p.AffectedZones,
		Confidence:         p.Confidence,
		MissionBriefing:    p.MissionBriefing,
		Enforcement:        enf,
		Delegation:         p.Delegation,
	}
}

// Validate checks a payload for completeness and correctness.
// Returns nil if valid, or a *ValidationError listing all problems.
func (p *Payload) Validate() error {
	ve := &ValidationError{}

	if p.SchemaVersion == "" {
		ve.add("schema_version is required")
	} else if p.SchemaVersion != SchemaVersion {
		ve.add(fmt.Sprintf("schema_version %q is not supported (expected %q)", p.SchemaVersion, SchemaVersion))
	}

	if p.RunID == "" {
		ve.add("run_id is required")
	}

	if p.DisasterCategory == "" {
		ve.add("disaster_category is required")
	}

	if p.MissionBriefing == "" {
		ve.add("mission_briefing is required")
	}

	if !model.ValidSeverities[model.Severity(p.Severity)] {
		ve.add(fmt.Sprintf("severity %q is not valid", p.Severity))
	}

	if len(p.RecommendedActions) == 0 {
		ve.add("at least one recommended action is required")
	} else if len(p.RecommendedActions) > MaxActions {
		ve.add(fmt.Sprintf("too many recommended actions (%d, max %d)", len(p.RecommendedActions), MaxActions))
	}
	for i, a := range p.RecommendedActions {
		if strings.TrimSpace(a) == "" {
			ve.add(fmt.Sprintf("recommended_actions[%d] is empty", i))
		}
	}

	if p.Confidence < 0 || p.Confidence > 1 {
		ve.add(fmt.Sprintf("confidence %.2f is outside [0, 1]", p.Confidence))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}
