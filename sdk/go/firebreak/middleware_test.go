package firebreak

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/relieflabs/firebreak/internal/model"
)

func TestMiddlewareAllows(t *testing.T) {
	c := newTestClient(t)
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))

	body := `{"report": "Deploy 40 generators to the eastern relief corridor"}`
	req := httptest.NewRequest("POST", "/dispatch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %q", rec.Body.String())
	}
}

func TestMiddlewareBlocksMedical(t *testing.T) {
	c := newTestClient(t)
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be called")
	}))

	body := `{"report": "Victims need diagnosis and treatment at the field hospital"}`
	req := httptest.NewRequest("POST", "/dispatch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode JSON body: %v", err)
	}
	if blocked, ok := resp["blocked"].(bool); !ok || !blocked {
		t.Error("expected blocked=true in response")
	}
	if verdict, _ := resp["verdict"].(string); verdict != string(Route) {
		t.Errorf("expected verdict route, got %q", verdict)
	}
	if ruleID, _ := resp["rule_id"].(string); ruleID != model.RuleMedicalBlock {
		t.Errorf("expected %s, got %q", model.RuleMedicalBlock, ruleID)
	}
	if _, ok := resp["reason"].(string); !ok {
		t.Error("expected reason string in response")
	}
}

func TestMiddlewareGuardedPaths(t *testing.T) {
	c := newTestClient(t, WithGuardedPaths("/dispatch"))
	nextCalled := false
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"report": "Victims need diagnosis and treatment at the field hospital"}`

	req := httptest.NewRequest("POST", "/status", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if !nextCalled {
		t.Error("unguarded path should pass through")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/dispatch", strings.NewReader(body))
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 on guarded path, got %d", rec.Code)
	}
}

func TestMiddlewareNonPostPasses(t *testing.T) {
	c := newTestClient(t)
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/dispatch", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for GET, got %d", rec.Code)
	}
}

func TestMiddlewareBodyPreserved(t *testing.T) {
	c := newTestClient(t)
	body := `{"report": "Deploy 40 generators to the eastern relief corridor"}`
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("next handler read body: %v", err)
		}
		if string(got) != body {
			t.Errorf("expected original body, got %q", string(got))
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/dispatch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewareNoReportPassesThrough(t *testing.T) {
	c := newTestClient(t)
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/dispatch", strings.NewReader(`{"other": "field"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for body without report, got %d", rec.Code)
	}
}

func TestMiddlewareTextFieldAccepted(t *testing.T) {
	c := newTestClient(t)
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be called")
	}))

	body := `{"text": "Victims need diagnosis and treatment at the field hospital"}`
	req := httptest.NewRequest("POST", "/dispatch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for text field, got %d", rec.Code)
	}
}
