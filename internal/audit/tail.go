package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Tail reads the last n entries from a JSONL trail, oldest first.
// Malformed lines are skipped; Verify is the tool for spotting them.
func Tail(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit trail: %w", err)
	}
	defer f.Close()

	if n <= 0 {
		n = 10
	}

	var window []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		window = append(window, entry)
		if len(window) > n {
			window = window[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit trail: %w", err)
	}
	return window, nil
}

const separator = "──────────────────────────────────────────────────────────"

// FormatEntries renders entries as a fixed-width text table for the CLI.
func FormatEntries(entries []Entry) string {
	if len(entries) == 0 {
		return "No entries found.\n"
	}

	var b strings.Builder
	b.WriteString(separator + "\n")
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("%-24s %-8s %-19s %-18s %s\n",
			e.Timestamp,
			e.Severity,
			e.Status,
			shorten(e.RuleID, 18),
			shorten(e.Excerpt, 48),
		))
	}
	b.WriteString(separator + "\n")
	return b.String()
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
