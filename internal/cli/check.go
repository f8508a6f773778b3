package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relieflabs/firebreak/internal/dispatch"
	"github.com/relieflabs/firebreak/internal/intent"
	"github.com/relieflabs/firebreak/internal/model"
	"github.com/relieflabs/firebreak/internal/sanitize"
)

var (
	checkText string
	checkPath string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkText, "text", "", "Mission text to evaluate (required)")
	checkCmd.Flags().StringVar(&checkPath, "path", "", "Proposed artifact path (default: generated under the policy base dir)")
	checkCmd.MarkFlagRequired("text")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate mission text against the policy without dispatching",
	Long: "Extracts the dispatch intent from the text and runs the Shield\n" +
		"evaluation alone: no triage, no sub-agent write. The evaluation is\n" +
		"still recorded when an audit sink is configured.\n\n" +
		"Exit code 0 for allow, 1 for block, 2 for route.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	text, err := sanitize.Clean(checkText)
	if err != nil {
		return fmt.Errorf("text rejected: %w", err)
	}

	p, err := buildPipeline(rootLogger)
	if err != nil {
		return err
	}
	defer p.Close()

	path := checkPath
	if path == "" {
		path = filepath.Join(p.guard.Policy().BaseDir, dispatch.NewFilename())
	}

	in := intent.Extract(text, path)
	out := p.guard.Evaluate(cmd.Context(), in, "")

	fmt.Printf("verdict: %s\n", out.Verdict)
	if out.RuleID != "" {
		fmt.Printf("rule:    %s\n", out.RuleID)
	}
	if out.Reason != "" {
		fmt.Printf("reason:  %s\n", out.Reason)
	}

	switch out.Verdict {
	case model.VerdictBlock:
		os.Exit(1)
	case model.VerdictRoute:
		os.Exit(2)
	}
	return nil
}
