package model

// Verdict is the three-way result of a Shield evaluation.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictRoute Verdict = "route"
	VerdictBlock Verdict = "block"
)

// Rule identifiers attached to non-allow outcomes. These are stable API:
// audit rows, error surfaces, and reflection eligibility key off them.
const (
	RuleActionType   = "RULE:ACTION_TYPE"
	RuleMedicalBlock = "RULE:MEDICAL_BLOCK"
	RuleDirScope     = "RULE:DIR_SCOPE"
	RuleOracleDeny   = "RULE:ORACLE_DENY"
	RuleShieldError  = "RULE:SHIELD_ERROR"

	// RuleAuthorityExceeded marks a sub-agent boundary refusal. It is not
	// a Shield rule; the Shield cleared the intent and the sub-agent's own
	// validation rejected it.
	RuleAuthorityExceeded = "RULE:AUTHORITY_EXCEEDED"
)

// Outcome is the discriminated result of evaluating one Intent.
// Exactly one verdict is produced per evaluation; RuleID and Reason are
// empty only for allow.
type Outcome struct {
	Verdict Verdict `json:"verdict"`
	RuleID  string  `json:"rule_id,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// Allowed returns the allow outcome.
func Allowed() Outcome {
	return Outcome{Verdict: VerdictAllow}
}

// Routed returns a routing outcome: non-fatal, hand off to the specialist.
func Routed(reason string) Outcome {
	return Outcome{Verdict: VerdictRoute, RuleID: RuleMedicalBlock, Reason: reason}
}

// Blocked returns a hard-block outcome for the current attempt.
func Blocked(reason, ruleID string) Outcome {
	return Outcome{Verdict: VerdictBlock, RuleID: ruleID, Reason: reason}
}

// Allow reports whether the outcome permits the action.
func (o Outcome) Allow() bool { return o.Verdict == VerdictAllow }

// Route reports whether the outcome hands off to the specialist.
func (o Outcome) Route() bool { return o.Verdict == VerdictRoute }

// Block reports whether the outcome is a hard block.
func (o Outcome) Block() bool { return o.Verdict == VerdictBlock }

// ReflectionEligible reports whether a blocked outcome may be retried with
// a corrected intent. Only scope and action-kind violations qualify;
// oracle denies and internal failures never do.
func (o Outcome) ReflectionEligible() bool {
	if !o.Block() {
		return false
	}
	return o.RuleID == RuleActionType || o.RuleID == RuleDirScope
}
