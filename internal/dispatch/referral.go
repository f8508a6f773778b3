package dispatch

import "fmt"

// DispositionMedicalOfficer is the only disposition a referral may carry:
// the mission goes to a human, not to an automated medical workflow.
const DispositionMedicalOfficer = "handed_to_medical_officer"

// referralNote is stamped on every referral. It states what did NOT happen.
const referralNote = "routed to a human medical officer; no medical guidance was generated"

// Referral is the artifact written when a mission is routed to a medical
// officer. The type has no medication, prescription or dosage fields, so
// no code path can place clinical instructions in one.
type Referral struct {
	SchemaVersion   string `json:"schema_version"`
	GeneratedAtUTC  string `json:"generated_at_utc"`
	RunID           string `json:"run_id"`
	MissionBriefing string `json:"mission_briefing"`
	RoutingReason   string `json:"routing_reason"`
	Disposition     string `json:"disposition"`
	Note            string `json:"note"`
}

// NewReferral builds a medical referral, stamping version, timestamp,
// disposition and the fixed note.
func NewReferral(runID, briefing, reason string) *Referral {
	if runID == "" {
		runID = NewRunID()
	}
	return &Referral{
		SchemaVersion:   SchemaVersion,
		GeneratedAtUTC:  Timestamp(),
		RunID:           runID,
		MissionBriefing: briefing,
		RoutingReason:   reason,
		Disposition:     DispositionMedicalOfficer,
		Note:            referralNote,
	}
}

// Validate checks a referral for completeness and correctness.
// Returns nil if valid, or a *ValidationError listing all problems.
func (r *Referral) Validate() error {
	ve := &ValidationError{}

	if r.SchemaVersion == "" {
		ve.add("schema_version is required")
	} else if r.SchemaVersion != SchemaVersion {
		ve.add(fmt.Sprintf("schema_version %q is not supported (expected %q)", r.SchemaVersion, SchemaVersion))
	}

	if r.RunID == "" {
		ve.add("run_id is required")
	}

	if r.MissionBriefing == "" {
		ve.add("mission_briefing is required")
	}

	if r.RoutingReason == "" {
		ve.add("routing_reason is required")
	}

	if r.Disposition != DispositionMedicalOfficer {
		ve.add(fmt.Sprintf("disposition %q is not valid (expected %q)", r.Disposition, DispositionMedicalOfficer))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}
