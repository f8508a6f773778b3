package firebreak

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// maxBodyPeek bounds how much of a request body the middleware reads
// when extracting the report. Reports are capped by the sanitizer long
// before this limit.
const maxBodyPeek = 1 << 16

// Middleware returns an http.Handler that evaluates dispatch policy on
// request bodies before passing to the next handler. Only POST requests
// on guarded paths are inspected; the body must carry a JSON "report"
// or "text" field. Routed and blocked requests receive a 403 with a
// JSON body. The request body is restored for the next handler.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !c.guardedPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyPeek))
		r.Body.Close()
		if err != nil {
			http.Error(w, "read request body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		report := reportFromBody(body)
		if report == "" {
			next.ServeHTTP(w, r)
			return
		}

		result := c.CheckContext(r.Context(), CheckRequest{Text: report})
		if !result.Allowed() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{
				"blocked": true,
				"verdict": string(result.Verdict),
				"rule_id": result.RuleID,
				"reason":  result.Reason,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// guardedPath reports whether the middleware should inspect the path.
// An empty guard list inspects every path.
func (c *Client) guardedPath(path string) bool {
	if len(c.cfg.guardedPaths) == 0 {
		return true
	}
	for _, p := range c.cfg.guardedPaths {
		if p == path {
			return true
		}
	}
	return false
}

// reportFromBody pulls the report text out of a JSON request body.
// It accepts either a "report" or a "text" field.
func reportFromBody(body []byte) string {
	var payload struct {
		Report string `json:"report"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Report != "" {
		return payload.Report
	}
	return payload.Text
}
