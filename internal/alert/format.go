package alert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("firebreak: %s", event.Status),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Run:* %s", event.RunID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Rule:* %s", event.RuleID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", event.Severity)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
			map[string]any{
				"type": "context",
				"elements": []any{
					map[string]any{"type": "mrkdwn", "text": event.Excerpt},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("firebreak %s: %s", event.Status, event.Reason),
			"severity": pagerDutySeverity(event),
			"source":   "firebreak",
			"custom_details": map[string]any{
				"run_id":      event.RunID,
				"rule_id":     event.RuleID,
				"severity":    event.Severity,
				"excerpt":     event.Excerpt,
				"policy_hash": event.PolicyHash,
			},
		},
	}
	return json.Marshal(payload)
}

// pagerDutySeverity maps mission severity to the PagerDuty scale.
// AUTHORITY_EXCEEDED is always critical regardless of mission severity.
func pagerDutySeverity(event Event) string {
	if event.Status == "AUTHORITY_EXCEEDED" {
		return "critical"
	}
	switch strings.ToUpper(event.Severity) {
	case "CRITICAL":
		return "critical"
	case "HIGH":
		return "error"
	case "MEDIUM":
		return "warning"
	default:
		return "info"
	}
}
