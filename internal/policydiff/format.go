package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the report as human-readable text.
func FormatText(r *Report) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s → %s\n", r.OldPath, r.NewPath)

	scalars := filterScalar(r.Changes)
	kinds := filterField(r.Changes, "allowed_action_kinds")

	if len(scalars) > 0 {
		b.WriteString("\n")
		for _, c := range scalars {
			fmt.Fprintf(&b, "  %-24s %s → %s", c.Field+":", c.Old, c.New)
			if c.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", c.Comment)
			}
			b.WriteString("\n")
		}
	}

	if len(kinds) > 0 {
		b.WriteString("\n  Action kinds:\n")
		for _, c := range kinds {
			if c.Old == "" {
				fmt.Fprintf(&b, "    + %s  (%s)\n", c.New, c.Comment)
			} else {
				fmt.Fprintf(&b, "    - %s  (%s)\n", c.Old, c.Comment)
			}
		}
	}

	if len(r.RuleChanges) > 0 {
		b.WriteString("\n  Content rules:\n")
		for _, rc := range r.RuleChanges {
			switch rc.Type {
			case "added":
				fmt.Fprintf(&b, "    + %s\n", rc.Rule)
			case "removed":
				fmt.Fprintf(&b, "    - %s\n", rc.Rule)
			}
		}
	}

	return b.String()
}

// FormatJSON renders the report as JSON.
func FormatJSON(r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff report: %w", err)
	}
	return string(data), nil
}

func filterScalar(changes []Change) []Change {
	var out []Change
	for _, c := range changes {
		if c.Field != "allowed_action_kinds" {
			out = append(out, c)
		}
	}
	return out
}

func filterField(changes []Change, field string) []Change {
	var out []Change
	for _, c := range changes {
		if c.Field == field {
			out = append(out, c)
		}
	}
	return out
}
