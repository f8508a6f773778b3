package policy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/relieflabs/firebreak/internal/intent"
	"github.com/relieflabs/firebreak/internal/model"
)

// Evaluate applies the policy to a single intent and produces exactly one
// outcome. Pure: no I/O, no hidden state beyond the arguments. Fails
// closed — any internal failure surfaces as a block, never an allow.
//
// Evaluation order (must not be changed):
//  1. Action-kind check      — block, RULE:ACTION_TYPE
//  2. Sensitive-content check — route, RULE:MEDICAL_BLOCK (content only)
//  3. Path-scope check       — block, RULE:DIR_SCOPE
//
// Content is checked before the path so a routable specialist handoff is
// never masked by a mechanical path decision.
func Evaluate(in model.Intent, pol *Policy) (out model.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = model.Blocked(fmt.Sprintf("internal evaluation failure: %v", r), model.RuleShieldError)
		}
	}()

	if pol == nil {
		return model.Blocked("no policy loaded", model.RuleShieldError)
	}

	// Step 1: Action kind
	if !pol.AllowedActionKinds[in.ActionKind] {
		return model.Blocked(
			fmt.Sprintf("action kind %q is not permitted; allowed: %s",
				in.ActionKind, strings.Join(allowedKindNames(pol), ", ")),
			model.RuleActionType)
	}

	// Step 2: Sensitive content (never inspects paths)
	if reason, hit := SensitiveContent(in, pol); hit {
		return model.Routed(reason)
	}

	// Step 3: Path scope
	if in.ProposedPath != "" {
		if reason := checkPathScope(in.ProposedPath, pol); reason != "" {
			return model.Blocked(reason, model.RuleDirScope)
		}
	}

	return model.Allowed()
}

// SensitiveContent scans an intent for blocked clinical content. The scan
// unions the intent's keyword set with tokens freshly re-extracted from
// the raw text, so a stripped or forged keyword field upstream cannot hide
// content from the check. Returns the first matching cluster or pattern as
// the reason.
func SensitiveContent(in model.Intent, pol *Policy) (string, bool) {
	unified := make(map[string]bool, len(in.Keywords)+16)
	for _, k := range in.Keywords {
		unified[k] = true
	}
	for _, tok := range intent.Tokenize(in.RawText) {
		unified[tok] = true
	}

	for _, cluster := range pol.Clusters {
		if clusterSubset(cluster, unified) {
			return fmt.Sprintf("blocked keyword cluster matched: requires specialist handling (%s)",
				strings.Join(cluster, " + ")), true
		}
	}

	for i, re := range pol.Patterns {
		if re.MatchString(strings.ToLower(in.RawText)) {
			return fmt.Sprintf("blocked content pattern %d matched: requires specialist handling (%s)",
				i, pol.rawPatterns[i]), true
		}
	}

	return "", false
}

// clusterSubset reports whether every term of the cluster is present.
func clusterSubset(cluster []string, tokens map[string]bool) bool {
	for _, term := range cluster {
		if !tokens[term] {
			return false
		}
	}
	return true
}

// checkPathScope verifies the proposed path stays inside the policy base
// directory. Resolution is lexical: relative proposals resolve against the
// base dir (never the process working directory) and ".." segments are
// collapsed before the containment check, so traversal cannot slip past a
// prefix comparison. Returns "" when in scope.
func checkPathScope(proposed string, pol *Policy) string {
	p := proposed
	if !filepath.IsAbs(p) {
		p = filepath.Join(pol.BaseDir, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(pol.BaseDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Sprintf("directory scope violation: proposed path %q is outside the allowed base %q", p, pol.BaseDir)
	}

	depth := 0
	if rel != "." {
		depth = len(strings.Split(rel, string(filepath.Separator)))
	}

	if depth > pol.MaxPathDepth {
		return fmt.Sprintf("file depth violation: path is %d level(s) deep, but policy allows max %d", depth, pol.MaxPathDepth)
	}
	if !pol.AllowSubdirectories && depth > 1 {
		return fmt.Sprintf("subdirectory violation: policy requires files to be direct children of %q, but %q has subdirectory nesting", pol.BaseDir, p)
	}

	return ""
}

func allowedKindNames(pol *Policy) []string {
	names := make([]string, 0, len(pol.AllowedActionKinds))
	for k := range pol.AllowedActionKinds {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}
