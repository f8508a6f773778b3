package alert

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["BLOCKED", "AUTHORITY_EXCEEDED", ...]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp  string `json:"timestamp"`
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	RuleID     string `json:"rule_id,omitempty"`
	Reason     string `json:"reason"`
	Severity   string `json:"severity"`
	Excerpt    string `json:"excerpt"`
	PolicyHash string `json:"policy_hash"`
}
