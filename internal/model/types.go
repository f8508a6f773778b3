package model

import "strings"

// ActionKind classifies what a proposed action would do.
type ActionKind string

const (
	ActionWriteDispatchLog ActionKind = "write_dispatch_log"
	ActionReadResource     ActionKind = "read_resource"
	ActionSendNotification ActionKind = "send_notification"
	ActionUnknown          ActionKind = "unknown"
)

// ValidActionKinds is the set of recognized action kinds.
var ValidActionKinds = map[ActionKind]bool{
	ActionWriteDispatchLog: true,
	ActionReadResource:     true,
	ActionSendNotification: true,
	ActionUnknown:          true,
}

// ParseActionKind maps a string to an ActionKind. Unknown strings coerce
// to ActionUnknown rather than failing.
func ParseActionKind(s string) ActionKind {
	k := ActionKind(strings.ToLower(strings.TrimSpace(s)))
	if ValidActionKinds[k] {
		return k
	}
	return ActionUnknown
}

// Category is a top-level emergency category for logistics dispatch.
type Category string

const (
	CategoryFlood          Category = "flood"
	CategoryEarthquake     Category = "earthquake"
	CategoryWildfire       Category = "wildfire"
	CategoryCyclone        Category = "cyclone"
	CategoryInfrastructure Category = "infrastructure"
	CategoryEvacuation     Category = "evacuation"
	CategorySearchRescue   Category = "search_rescue"
	CategoryLogistics      Category = "logistics"
	CategoryMedical        Category = "medical"
	CategoryUnknown        Category = "unknown"
)

// ValidCategories is the set of recognized disaster categories.
var ValidCategories = map[Category]bool{
	CategoryFlood:          true,
	CategoryEarthquake:     true,
	CategoryWildfire:       true,
	CategoryCyclone:        true,
	CategoryInfrastructure: true,
	CategoryEvacuation:     true,
	CategorySearchRescue:   true,
	CategoryLogistics:      true,
	CategoryMedical:        true,
	CategoryUnknown:        true,
}

// ParseCategory maps a string to a Category. Unknown strings coerce to
// CategoryUnknown.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if ValidCategories[c] {
		return c
	}
	return CategoryUnknown
}

// Severity grades the urgency of a mission.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityError    Severity = "ERROR"
)

// SeverityRank maps severity to a comparable integer. Higher is more urgent.
var SeverityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
	SeverityError:    -1,
}

// ValidSeverities is the set of severities a dispatchable artifact may
// carry. SeverityError marks a failed triage and never ships.
var ValidSeverities = map[Severity]bool{
	SeverityCritical: true,
	SeverityHigh:     true,
	SeverityMedium:   true,
	SeverityLow:      true,
}

// ParseSeverity maps a string to a Severity, case-insensitively.
// Unrecognized values coerce to SeverityError.
func ParseSeverity(s string) Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL":
		return SeverityCritical
	case "HIGH":
		return SeverityHigh
	case "MEDIUM":
		return SeverityMedium
	case "LOW":
		return SeverityLow
	default:
		return SeverityError
	}
}

// MissionState is a node in the per-mission state machine.
type MissionState string

const (
	StateInit              MissionState = "init"
	StateTriaged           MissionState = "triaged"
	StateEvaluating        MissionState = "evaluating"
	StateAllowed           MissionState = "allowed"
	StateRouted            MissionState = "routed"
	StateReflectionPending MissionState = "reflection_pending"
	StateHardBlocked       MissionState = "hard_blocked"
	StateCompleted         MissionState = "completed"
	StateFailed            MissionState = "failed"
)

// MissionStatus is the terminal status surfaced to callers.
type MissionStatus string

const (
	StatusSuccess                MissionStatus = "SUCCESS"
	StatusSuccessAfterReflection MissionStatus = "SUCCESS_AFTER_REFLECTION"
	StatusRoutedToMedical        MissionStatus = "ROUTED_TO_MEDICAL"
	StatusBlockedByShield        MissionStatus = "BLOCKED_BY_SHIELD"
	StatusBlockedBySubAgent      MissionStatus = "BLOCKED_BY_SUB_AGENT"
	StatusPendingApproval        MissionStatus = "PENDING_APPROVAL"
	StatusToolError              MissionStatus = "TOOL_ERROR"
	StatusAgentError             MissionStatus = "AGENT_ERROR"
)
