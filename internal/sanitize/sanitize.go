// Package sanitize cleans untrusted report text before it enters the
// mission pipeline and produces safe excerpts for audit rows and error
// surfaces.
package sanitize

import (
	"errors"
	"regexp"
	"strings"
)

// MaxInputLength caps report text; longer input is truncated, not rejected.
const MaxInputLength = 1000

var (
	// ErrEmpty is returned when input is empty before or after cleaning.
	ErrEmpty = errors.New("input is empty")
	// ErrInjection is returned when input matches a prompt-injection phrase.
	ErrInjection = errors.New("input matches a prompt-injection pattern")
)

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// injectionRe lists phrase-level prompt-injection markers (OWASP LLM
// Top 10 derived). Matching input is rejected outright rather than
// stripped: partial removal leaves reassembled fragments behind.
var injectionRe = regexp.MustCompile(`(?i)(` +
	`ignore\s+(previous|all|my\s+)?\s*instructions` +
	`|system\s+(prompt|override|instruction)` +
	`|bypass\s+(safety|filter|guard|security)` +
	`|reveal\s+(your|the)\s+(prompt|instruction|rule)` +
	`|disregard\s+(all|previous|above|your)\s*(instructions|rules|directives)?` +
	`|forget\s+(previous|all|your)\s*(instructions|rules|context)?` +
	`|override\s+(previous|all|safety|security)\s*(instructions|rules|protocol)?` +
	`|inject\s+(prompt|instruction|command)` +
	`|pretend\s+you\s+are` +
	`|act\s+as\s+(if|a|an)` +
	`|you\s+are\s+now\s+` +
	`|new\s+instructions?\s*:` +
	`|\bDAN\b` +
	`|do\s+anything\s+now` +
	`)`)

var controlRe = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")

// Clean sanitizes raw report text: trim, length cap, HTML strip,
// injection rejection, control-character removal. Returns the cleaned
// text or an error when nothing safe remains.
func Clean(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmpty
	}

	if len(s) > MaxInputLength {
		s = truncateRunes(s, MaxInputLength)
	}

	s = htmlTagRe.ReplaceAllString(s, "")

	if injectionRe.MatchString(s) {
		return "", ErrInjection
	}

	s = controlRe.ReplaceAllString(s, "")

	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmpty
	}
	return s, nil
}

// Excerpt returns at most n runes of s, appending "..." when truncated.
// Used wherever raw text leaves the pipeline: audit rows, error reasons,
// alert payloads.
func Excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
