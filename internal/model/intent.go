package model

import (
	"sort"
	"strings"
)

// Intent is a typed snapshot of one proposed action awaiting judgment.
//
// Fields are fixed at construction and must not be modified afterward:
// a corrected attempt builds a new Intent rather than editing this one, so
// every policy decision stays reproducible from the snapshot it judged.
type Intent struct {
	ActionKind   ActionKind        `json:"action_kind"`
	RawText      string            `json:"raw_text"`
	ProposedPath string            `json:"proposed_path,omitempty"`
	Category     Category          `json:"category"`
	Keywords     []string          `json:"keywords"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewIntent constructs an Intent with normalized keywords: lowercased,
// deduplicated, sorted.
func NewIntent(kind ActionKind, rawText, proposedPath string, category Category, keywords []string) Intent {
	return Intent{
		ActionKind:   kind,
		RawText:      rawText,
		ProposedPath: proposedPath,
		Category:     category,
		Keywords:     NormalizeKeywords(keywords),
	}
}

// NormalizeKeywords lowercases, deduplicates, and sorts a keyword list.
// Empty entries are dropped. Always returns a non-nil slice.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HasKeyword reports whether the normalized keyword set contains k.
func (in Intent) HasKeyword(k string) bool {
	k = strings.ToLower(k)
	for _, kw := range in.Keywords {
		if kw == k {
			return true
		}
	}
	return false
}
