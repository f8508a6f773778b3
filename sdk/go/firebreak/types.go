package firebreak

import (
	"fmt"

	"github.com/relieflabs/firebreak/internal/model"
)

// Verdict is the three-way policy outcome.
type Verdict string

const (
	Allow Verdict = Verdict(model.VerdictAllow)
	Route Verdict = Verdict(model.VerdictRoute)
	Block Verdict = Verdict(model.VerdictBlock)
)

// CheckRequest describes a dispatch the caller intends to write.
type CheckRequest struct {
	Text       string // mission text driving the dispatch
	Path       string // proposed artifact path; empty generates one under the policy base dir
	ActionKind string // action classification; empty means write_dispatch_log
}

// Result is a policy evaluation outcome.
type Result struct {
	Verdict Verdict
	RuleID  string
	Reason  string
}

// Allowed returns true if the verdict permits the write.
func (r Result) Allowed() bool {
	return r.Verdict == Allow
}

// BlockedError is returned when policy routes or blocks a write.
// Request carries the text and path that were actually judged.
type BlockedError struct {
	Request CheckRequest
	Verdict Verdict
	RuleID  string
	Reason  string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("firebreak blocked (%s): %s", e.RuleID, e.Reason)
}

// toResult maps an internal Outcome to an SDK Result.
func toResult(out model.Outcome) Result {
	return Result{
		Verdict: Verdict(out.Verdict),
		RuleID:  out.RuleID,
		Reason:  out.Reason,
	}
}
