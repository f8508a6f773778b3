//go:build fieldtest

package fieldtest

import (
	"os"
	"strings"
	"testing"
)

func TestRound6_TamperEvidence(t *testing.T) {
	const report = "Deploy 40 generators to the eastern relief corridor"

	seed := func(t *testing.T, n int) (string, string) {
		t.Helper()
		_, policy, auditLog := newArena(t)
		for i := 0; i < n; i++ {
			checkExpectAllow(t, policy, auditLog, report, "")
		}
		verifyChain(t, auditLog)
		return policy, auditLog
	}

	t.Run("forged_middle_entry_detected", func(t *testing.T) {
		_, auditLog := seed(t, 5)

		data, err := os.ReadFile(auditLog)
		if err != nil {
			t.Fatalf("read audit trail: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 5 {
			t.Fatalf("expected 5 lines, got %d", len(lines))
		}

		// Replace the middle entry with a well-formed forgery.
		lines[2] = `{"ts":"2026-08-25T00:00:00.000Z","excerpt":"forged","severity":"","action":"write_dispatch_log","status":"ALLOWED","rule_id":"","policy_hash":"sha256:fake","prev_hash":"sha256:fake"}`
		if err := os.WriteFile(auditLog, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
			t.Fatalf("write tampered trail: %v", err)
		}

		verifyChainBroken(t, auditLog)
		t.Log("PASS: middle-entry tampering detected by hash chain")
	})

	t.Run("truncated_tail_keeps_prefix_valid", func(t *testing.T) {
		_, auditLog := seed(t, 5)

		data, err := os.ReadFile(auditLog)
		if err != nil {
			t.Fatalf("read audit trail: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		truncated := strings.Join(lines[:3], "\n") + "\n"
		if err := os.WriteFile(auditLog, []byte(truncated), 0o600); err != nil {
			t.Fatalf("write truncated trail: %v", err)
		}

		// The surviving prefix still chains from genesis; the loss shows
		// up as a count difference, not a hash break.
		verifyChain(t, auditLog)
		if count := countEntries(t, auditLog); count != 3 {
			t.Errorf("expected 3 entries after truncation, got %d", count)
		}
	})

	t.Run("deleted_trail_fails_verification", func(t *testing.T) {
		_, auditLog := seed(t, 3)

		if err := os.Remove(auditLog); err != nil {
			t.Fatalf("remove audit trail: %v", err)
		}

		verifyChainBroken(t, auditLog)
	})

	t.Run("appended_unchained_entry_detected", func(t *testing.T) {
		_, auditLog := seed(t, 3)

		f, err := os.OpenFile(auditLog, os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			t.Fatalf("open trail: %v", err)
		}
		forged := `{"ts":"2026-08-25T12:00:00.000Z","excerpt":"injected","severity":"","action":"write_dispatch_log","status":"ALLOWED","rule_id":"","policy_hash":"sha256:aaa","prev_hash":"sha256:wrong"}` + "\n"
		if _, err := f.WriteString(forged); err != nil {
			f.Close()
			t.Fatalf("write forged entry: %v", err)
		}
		f.Close()

		verifyChainBroken(t, auditLog)
		t.Log("PASS: appended unchained entry detected")
	})

	t.Run("new_process_appends_to_tampered_tail", func(t *testing.T) {
		// A writer that opens an already-tampered trail chains off the
		// tampered tail. Verification still pinpoints the original break.
		policy, auditLog := seed(t, 3)

		data, err := os.ReadFile(auditLog)
		if err != nil {
			t.Fatalf("read audit trail: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		lines[1] = strings.Replace(lines[1], "ALLOWED", "BLOCKED", 1)
		if err := os.WriteFile(auditLog, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
			t.Fatalf("write tampered trail: %v", err)
		}

		checkExpectAllow(t, policy, auditLog, report, "")

		verifyChainBroken(t, auditLog)
	})
}
