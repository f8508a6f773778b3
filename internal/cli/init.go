package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relieflabs/firebreak/internal/policy"
)

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing policy file")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the firebreak configuration directory",
	Long: "Creates ~/.firebreak with a commented default policy, the profiles\n" +
		"directory, and the pending-approvals directory.",
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}
	configDir := filepath.Join(home, ".firebreak")

	for _, dir := range []string{
		filepath.Join(configDir, "profiles"),
		filepath.Join(configDir, "pending"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	var created []string
	policyPath := filepath.Join(configDir, "policy.yaml")
	if wrote, err := writeIfMissing(policyPath, policy.DefaultYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, policyPath)
	}

	fmt.Println("firebreak init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
	} else {
		fmt.Println("All files already exist (use --force to overwrite).")
	}
	fmt.Println()
	fmt.Println("Run a report through the pipeline:")
	fmt.Printf("  firebreak triage --policy %s \"600 water purification units needed in zone 4\"\n", policyPath)
	fmt.Println()
	fmt.Println("Start the HTTP surface:")
	fmt.Printf("  firebreak serve --policy %s\n", policyPath)
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is
// set. Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
