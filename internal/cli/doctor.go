package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relieflabs/firebreak/internal/approval"
	"github.com/relieflabs/firebreak/internal/audit"
	"github.com/relieflabs/firebreak/internal/profile"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check deployment readiness and diagnose configuration issues",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	// 1. Binary location and version.
	execPath, _ := os.Executable()
	if execPath != "" {
		checks = append(checks, checkResult{
			label:  "firebreak binary",
			ok:     true,
			detail: fmt.Sprintf("%s (v%s)", execPath, version),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "firebreak binary",
			ok:     false,
			detail: "cannot determine executable path",
		})
	}

	// 2. Config directory.
	home, homeErr := os.UserHomeDir()
	configDir := ""
	if homeErr == nil {
		configDir = filepath.Join(home, ".firebreak")
	}

	if configDir != "" {
		if info, err := os.Stat(configDir); err == nil && info.IsDir() {
			checks = append(checks, checkResult{
				label:  "config directory",
				ok:     true,
				detail: configDir,
			})
		} else {
			checks = append(checks, checkResult{
				label:  "config directory",
				ok:     false,
				detail: "missing",
				fix:    "firebreak init",
			})
		}
	} else {
		checks = append(checks, checkResult{
			label:  "config directory",
			ok:     false,
			detail: "cannot determine home directory",
		})
	}

	// 3. Active policy. Missing is fine, the built-in defaults apply; a
	// present file must load and compile.
	policyPath := rootPolicy
	if policyPath == "" && configDir != "" {
		policyPath = filepath.Join(configDir, "policy.yaml")
	}
	if policyPath != "" {
		if _, err := os.Stat(policyPath); err != nil {
			checks = append(checks, checkResult{
				label:  "policy",
				ok:     true,
				detail: "not present, built-in defaults apply",
			})
		} else if pol, err := loadActivePolicy(); err != nil {
			checks = append(checks, checkResult{
				label:  "policy",
				ok:     false,
				detail: err.Error(),
				fix:    "edit " + policyPath,
			})
		} else {
			checks = append(checks, checkResult{
				label:  "policy",
				ok:     true,
				detail: fmt.Sprintf("%s (dispatch root %s)", policyPath, pol.BaseDir),
			})
		}
	}

	// 4. Profiles.
	profiles := profile.List()
	if len(profiles) > 0 {
		checks = append(checks, checkResult{
			label:  "profiles",
			ok:     true,
			detail: fmt.Sprintf("%d available", len(profiles)),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "profiles",
			ok:     false,
			detail: "none found",
			fix:    "firebreak profile init <name>",
		})
	}

	// 5. Approval store.
	if store, err := approval.NewStore(approval.DefaultDir()); err != nil {
		checks = append(checks, checkResult{
			label:  "approval store",
			ok:     false,
			detail: err.Error(),
		})
	} else if list, err := store.List(); err != nil {
		checks = append(checks, checkResult{
			label:  "approval store",
			ok:     false,
			detail: err.Error(),
		})
	} else {
		pending := 0
		for _, a := range list {
			if a.Status == approval.StatusPending {
				pending++
			}
		}
		checks = append(checks, checkResult{
			label:  "approval store",
			ok:     true,
			detail: fmt.Sprintf("%d awaiting sign-off", pending),
		})
	}

	// 6. Reasoner endpoint.
	if url := os.Getenv("FIREBREAK_API_URL"); url != "" {
		checks = append(checks, checkResult{
			label:  "reasoner",
			ok:     true,
			detail: fmt.Sprintf("configured (%s)", url),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "reasoner",
			ok:     true,
			detail: "offline, stub triage applies",
		})
	}

	// 7. Audit trail, when one is named.
	if rootAuditLog != "" {
		result := audit.Verify(rootAuditLog)
		if result.Valid {
			checks = append(checks, checkResult{
				label:  "audit trail",
				ok:     true,
				detail: fmt.Sprintf("%d entries verified", result.Lines),
			})
		} else {
			checks = append(checks, checkResult{
				label:  "audit trail",
				ok:     false,
				detail: fmt.Sprintf("broken at line %d: %s", result.ErrorLine, result.Error),
			})
		}
	}

	// Print results.
	hasFailures := false
	for _, c := range checks {
		mark := "✓"
		if !c.ok {
			mark = "✗"
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-20s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}

	if hasFailures {
		fmt.Println()
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}
