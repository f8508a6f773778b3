//go:build fieldtest

package fieldtest

import (
	"strings"
	"testing"
)

func TestRound8_ProfilesAndDefaults(t *testing.T) {
	const report = "Deploy 40 generators to the eastern relief corridor"

	t.Run("profile_overlay_widens_scope", func(t *testing.T) {
		_, policy, auditLog := newArena(t)

		// Base policy: depth 1, no subdirectories.
		checkExpectBlock(t, policy, auditLog, report, "nested/deep.json")

		// field-dev: depth 2 with subdirectories allowed.
		_, stderr, code := execFirebreak(t,
			"check", "--policy", policy, "--profile", "field-dev",
			"--audit-log", auditLog, "--text", report, "--path", "nested/deep.json")
		if code != 0 {
			t.Errorf("expected allow under field-dev profile, got exit %d: %s", code, stderr)
		}
	})

	t.Run("unknown_profile_lists_available", func(t *testing.T) {
		_, policy, auditLog := newArena(t)

		_, stderr, code := execFirebreak(t,
			"check", "--policy", policy, "--profile", "atlantis",
			"--audit-log", auditLog, "--text", report)
		if code == 0 {
			t.Fatal("expected failure for unknown profile")
		}
		if !strings.Contains(stderr, "available:") || !strings.Contains(stderr, "production") {
			t.Errorf("expected the available profile names in the error, got: %s", stderr)
		}
	})

	t.Run("missing_policy_file_uses_defaults", func(t *testing.T) {
		arenaDir, _, auditLog := newArena(t)
		missing := arenaDir + "/does-not-exist.yaml"

		// Built-in defaults still enforce scope.
		checkExpectBlock(t, missing, auditLog, report, "/somewhere/else/escape.json")
		checkExpectAllow(t, missing, auditLog, report, "relief_manifest.json")
	})

	t.Run("full_mission_loop_offline", func(t *testing.T) {
		// Every subprocess in this suite runs with no reasoner endpoint.
		// A complete mission still triages, evaluates, and dispatches.
		arenaDir, policy, auditLog := newArena(t)

		stdout, stderr, code := execFirebreak(t,
			"triage", "500 water purification units needed for flood zone 4",
			"--policy", policy, "--audit-log", auditLog)
		if code != 0 {
			t.Fatalf("offline triage should exit 0, got %d: %s", code, stderr)
		}
		res := triageResult(t, stdout)
		if res["status"] != "SUCCESS" {
			t.Errorf("expected SUCCESS, got %v", res["status"])
		}
		if files := dispatchFiles(t, arenaDir); len(files) != 1 {
			t.Errorf("expected 1 dispatch artifact, got %d", len(files))
		}
		verifyChain(t, auditLog)
	})

	t.Run("short_report_graded_without_reasoner", func(t *testing.T) {
		_, policy, auditLog := newArena(t)

		stdout, stderr, code := execFirebreak(t,
			"triage", "Status check",
			"--policy", policy, "--audit-log", auditLog)
		if code != 0 {
			t.Fatalf("short report should exit 0, got %d: %s", code, stderr)
		}
		res := triageResult(t, stdout)
		if res["status"] != "SUCCESS" {
			t.Errorf("expected SUCCESS, got %v", res["status"])
		}
		if res["severity"] != "LOW" {
			t.Errorf("expected LOW severity for a trivial report, got %v", res["severity"])
		}
	})
}
