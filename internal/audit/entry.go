// Package audit provides the append-only sinks every mission reports to:
// a hash-chained JSONL trail and a SQLite store for recent-activity
// queries. One row per Shield evaluation, one row per terminal outcome.
package audit

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Statuses recorded in the audit trail.
const (
	StatusAllowed           = "ALLOWED"
	StatusRouted            = "ROUTED"
	StatusBlocked           = "BLOCKED"
	StatusAuthorityExceeded = "AUTHORITY_EXCEEDED"
	StatusToolError         = "TOOL_ERROR"
	StatusPendingApproval   = "PENDING_APPROVAL"
)

// Entry is one row in the audit trail. All fields are flat strings (no
// map[string]any) to guarantee deterministic json.Marshal field order for
// reproducible hashing. Excerpt is a sanitized slice of the mission text,
// never the full input.
type Entry struct {
	Timestamp  string `json:"ts"`
	Excerpt    string `json:"excerpt"`
	Severity   string `json:"severity"`
	Action     string `json:"action"`
	Status     string `json:"status"`
	RuleID     string `json:"rule_id"`
	PolicyHash string `json:"policy_hash"`
	PrevHash   string `json:"prev_hash"`
}

// Recorder is the write-only sink interface. Implementations must be safe
// for concurrent use; missions append from independent goroutines.
type Recorder interface {
	Record(Entry) error
}
