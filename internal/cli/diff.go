package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relieflabs/firebreak/internal/policy"
	"github.com/relieflabs/firebreak/internal/policydiff"
)

var diffFormat string

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
}

var diffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Compare two policy files and show what changed",
	Long: "Loads two policy YAML files and reports the differences in enforcement\n" +
		"terms: action kinds, base directory, path depth, clusters, patterns,\n" +
		"threshold. Scalar changes are annotated stricter or looser.",
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldCfg, err := policy.Load(args[0])
	if err != nil {
		return fmt.Errorf("load old policy: %w", err)
	}

	newCfg, err := policy.Load(args[1])
	if err != nil {
		return fmt.Errorf("load new policy: %w", err)
	}

	report := policydiff.Diff(oldCfg, newCfg)
	report.OldPath = args[0]
	report.NewPath = args[1]

	switch diffFormat {
	case "json":
		out, err := policydiff.FormatJSON(report)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(policydiff.FormatText(report))
	}

	return nil
}
