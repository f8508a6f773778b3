// Package reasoner calls an OpenAI-compatible chat-completions endpoint
// to triage mission reports. Triage is advisory: it grades and suggests,
// it never decides policy. Every failure path degrades to the
// deterministic stub so the control plane keeps working offline.
package reasoner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/neurorouter"

	"github.com/relieflabs/firebreak/internal/model"
	"github.com/relieflabs/firebreak/internal/zone"
)

// Config holds parameters for the triage endpoint.
type Config struct {
	APIURL    string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// FromEnv builds a Config from the FIREBREAK_API_URL, FIREBREAK_API_KEY,
// and FIREBREAK_MODEL environment variables. Unset variables leave the
// corresponding field empty, which keeps triage on the offline stub.
func FromEnv() Config {
	return Config{
		APIURL: os.Getenv("FIREBREAK_API_URL"),
		APIKey: os.Getenv("FIREBREAK_API_KEY"),
		Model:  os.Getenv("FIREBREAK_MODEL"),
	}
}

// maxSchemaRetries bounds how often a malformed model response is re-asked
// before the caller falls back to the stub.
const maxSchemaRetries = 2

// Triage is the structured assessment of a mission report.
type Triage struct {
	Severity           string   `json:"severity"`
	Category           string   `json:"category"`
	RecommendedActions []string `json:"recommended_actions"`
	AffectedZones      []string `json:"affected_zones"`
	Confidence         float64  `json:"confidence"`
	Reasoning          string   `json:"reasoning,omitempty"`
	Stub               bool     `json:"stub,omitempty"`
}

const triageSystemPrompt = `You are a triage assistant for Disaster Logistics Command. Your ONLY role is to analyse emergency situation reports and produce a structured JSON triage summary for logistics use.

Output ONLY a valid JSON object with these exact keys:
{
  "severity":            "CRITICAL" | "HIGH" | "MEDIUM" | "LOW",
  "category":            string (e.g. "flood", "earthquake"),
  "recommended_actions": [list of logistics strings, max 5],
  "affected_zones":      [list of zone identifiers],
  "confidence":          float (0.0 to 1.0)
}

Output ONLY the JSON. No preamble, no explanation, no markdown fences.
Do NOT include medical advice, treatment plans, or clinical diagnoses.`

const rewriteSystemPrompt = `You rewrite emergency mission briefings so they comply with a named logistics constraint. Keep the operational substance: quantities, locations, urgency. Remove or rephrase only what violates the constraint.

Output ONLY the corrected briefing text. No preamble, no quotes, no markdown.`

// Classify sends a mission report (and optional situation image) for triage.
// Malformed responses are re-asked up to maxSchemaRetries times; transport
// failures return immediately. HTTP 429 surfaces as
// neurorouter.ErrRateLimited so callers can stop retrying.
func Classify(ctx context.Context, cfg Config, missionText string, image []byte, imageMIME string) (Triage, error) {
	messages := []map[string]any{
		{"role": "system", "content": triageSystemPrompt},
		{"role": "user", "content": userContent(missionText, image, imageMIME)},
	}

	var lastErr error
	for attempt := 0; attempt <= maxSchemaRetries; attempt++ {
		raw, err := chat(ctx, cfg, messages)
		if err != nil {
			return Triage{}, err
		}

		triage, perr := parseTriage(raw)
		if perr == nil {
			perr = validateTriage(&triage)
			if perr == nil {
				return triage, nil
			}
		}
		lastErr = perr

		messages = append(messages,
			map[string]any{"role": "assistant", "content": raw},
			map[string]any{"role": "user", "content": fmt.Sprintf(
				"Your last response was rejected: %v. Return ONLY the corrected JSON object with the required keys.", perr)},
		)
	}
	return Triage{}, fmt.Errorf("triage schema invalid after %d attempts: %w", maxSchemaRetries+1, lastErr)
}

// Rewrite asks for a corrected mission briefing that satisfies the named
// constraint without changing operational substance. Returns plain text.
func Rewrite(ctx context.Context, cfg Config, violation, missionText string) (string, error) {
	messages := []map[string]any{
		{"role": "system", "content": rewriteSystemPrompt},
		{"role": "user", "content": fmt.Sprintf("Constraint violated: %s\n\nOriginal briefing:\n%s", violation, missionText)},
	}

	raw, err := chat(ctx, cfg, messages)
	if err != nil {
		return "", err
	}
	out := cleanJSON(raw)
	if out == "" {
		return "", fmt.Errorf("empty rewrite response")
	}
	return out, nil
}

// StubTriage is the deterministic offline fallback.
func StubTriage() Triage {
	return Triage{
		Severity: string(model.SeverityHigh),
		Category: string(model.CategoryLogistics),
		RecommendedActions: []string{
			"Deploy rapid-response logistics unit",
			"Establish supply corridor",
			"Activate zone command centre",
		},
		AffectedZones: []string{zone.Unspecified},
		Confidence:    0.75,
		Stub:          true,
	}
}

// chat performs one chat-completions round trip and returns the assistant
// message content.
func chat(ctx context.Context, cfg Config, messages []map[string]any) (string, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	body, _ := json.Marshal(map[string]any{
		"model":       cfg.Model,
		"messages":    messages,
		"max_tokens":  cfg.MaxTokens,
		"temperature": 0,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: cfg.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("triage request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("triage HTTP 429: %w", neurorouter.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("triage HTTP %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 200))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || len(result.Choices) == 0 {
		return "", fmt.Errorf("empty triage response")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// userContent builds the user message: a bare string for text-only
// missions, or OpenAI multi-part content with a data-URL image part.
func userContent(missionText string, image []byte, imageMIME string) any {
	if len(image) == 0 {
		return missionText
	}
	dataURL := "data:" + imageMIME + ";base64," + base64.StdEncoding.EncodeToString(image)
	return []map[string]any{
		{"type": "text", "text": missionText},
		{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
	}
}

// parseTriage extracts a triage object from model response text.
// Handles bare objects, arrays ([{...}]), and {"triage":{...}} wrappers.
func parseTriage(raw string) (Triage, error) {
	raw = cleanJSON(raw)

	var t Triage
	if err := json.Unmarshal([]byte(raw), &t); err == nil {
		if !emptyTriage(t) {
			return t, nil
		}
		// The object parsed but carried none of the triage keys; it may
		// be a wrapper.
		var wrapped struct {
			Triage *Triage `json:"triage"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.Triage != nil {
			return *wrapped.Triage, nil
		}
		return t, nil
	}

	var arr []Triage
	if err := json.Unmarshal([]byte(raw), &arr); err == nil && len(arr) > 0 {
		return arr[0], nil
	}

	return Triage{}, fmt.Errorf("cannot parse triage response: %s", truncate(raw, 200))
}

func emptyTriage(t Triage) bool {
	return t.Severity == "" && t.Category == "" && len(t.RecommendedActions) == 0
}

// validateTriage normalizes severity/category casing and checks the schema.
func validateTriage(t *Triage) error {
	sev := model.ParseSeverity(t.Severity)
	if !model.ValidSeverities[sev] {
		return fmt.Errorf("severity %q is not valid", t.Severity)
	}
	t.Severity = string(sev)

	if strings.TrimSpace(t.Category) == "" {
		return fmt.Errorf("category is required")
	}
	t.Category = strings.ToLower(strings.TrimSpace(t.Category))

	if len(t.RecommendedActions) == 0 {
		return fmt.Errorf("at least one recommended action is required")
	}
	if len(t.RecommendedActions) > 5 {
		return fmt.Errorf("too many recommended actions (%d, max 5)", len(t.RecommendedActions))
	}
	for i, a := range t.RecommendedActions {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("recommended_actions[%d] is empty", i)
		}
	}

	if t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("confidence %.2f is outside [0, 1]", t.Confidence)
	}
	return nil
}

// cleanJSON strips markdown fences and leading/trailing whitespace.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
