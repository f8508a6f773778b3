// Package intent converts raw mission text into a typed model.Intent
// without consulting any LLM. Extraction is deterministic (regex plus
// vocabulary lookup) so that enforcement never depends on a second model
// call that could itself be manipulated.
package intent

import (
	"regexp"
	"strings"

	"github.com/relieflabs/firebreak/internal/model"
)

var tokenRe = regexp.MustCompile(`[a-z]+`)

// sensitiveVocabulary lists terms that signal clinical content. Tokens in
// this set populate Intent.Keywords so the Shield's content check can see
// them even when the raw text is later stripped upstream.
var sensitiveVocabulary = map[string]bool{
	"diagnosis": true, "treatment": true, "prescription": true,
	"medication": true, "medical": true, "triage": true, "wound": true,
	"burn": true, "fracture": true, "surgery": true, "drug": true,
	"dosage": true, "patient": true, "symptom": true, "therapy": true,
	"infection": true, "antibiotic": true, "clinical": true, "injury": true,
	"injuries": true, "casualties": true, "treat": true, "prescribe": true,
	"diagnose": true, "rehabilitate": true, "anesthesia": true,
	"suture": true, "laceration": true, "sterile": true,
}

// categorySignals maps logistics terms to disaster categories.
var categorySignals = map[string]model.Category{
	"flood":          model.CategoryFlood,
	"flooding":       model.CategoryFlood,
	"earthquake":     model.CategoryEarthquake,
	"seismic":        model.CategoryEarthquake,
	"wildfire":       model.CategoryWildfire,
	"fire":           model.CategoryWildfire,
	"cyclone":        model.CategoryCyclone,
	"hurricane":      model.CategoryCyclone,
	"typhoon":        model.CategoryCyclone,
	"evacuation":     model.CategoryEvacuation,
	"evacuate":       model.CategoryEvacuation,
	"rescue":         model.CategorySearchRescue,
	"search":         model.CategorySearchRescue,
	"logistics":      model.CategoryLogistics,
	"dispatch":       model.CategoryLogistics,
	"infrastructure": model.CategoryInfrastructure,
	"bridge":         model.CategoryInfrastructure,
	"road":           model.CategoryInfrastructure,
}

// Tokenize lowercases text and extracts alphabetic token runs, in text
// order with duplicates preserved. The Shield re-tokenizes raw text with
// this same function when building its unified token set.
func Tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// Extract builds an Intent from raw text and an optional proposed path.
// Pure and deterministic: no I/O, no randomness, never fails. The action
// kind defaults to the single write action this pipeline performs; use
// ExtractWithKind for anything else. Worst case is an Intent with an
// empty keyword set and unknown category.
func Extract(rawText, proposedPath string) model.Intent {
	return ExtractWithKind(model.ActionWriteDispatchLog, rawText, proposedPath)
}

// ExtractWithKind is Extract with an explicit action kind.
func ExtractWithKind(kind model.ActionKind, rawText, proposedPath string) model.Intent {
	tokens := Tokenize(rawText)

	keywords := make([]string, 0, 8)
	category := model.CategoryUnknown
	for _, tok := range tokens {
		if sensitiveVocabulary[tok] {
			keywords = append(keywords, tok)
		}
		if c, ok := categorySignals[tok]; ok {
			keywords = append(keywords, tok)
			// First category signal in text order wins.
			if category == model.CategoryUnknown {
				category = c
			}
		}
	}

	return model.NewIntent(kind, rawText, proposedPath, category, keywords)
}
