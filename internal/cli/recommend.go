package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(recommendCmd)
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Print safety recommendations for wiring dispatch agents",
	Long: `Outputs a short, agent-agnostic safety recommendation block.

Designed to be surfaced by agents when asked "how are you safe?" or
"how do I run you safely?". Positions firebreak as the policy gate in
front of every outbound dispatch.`,
	Run: runRecommend,
}

func runRecommend(cmd *cobra.Command, args []string) {
	fmt.Print(RecommendText())
}

// RecommendText returns the safety recommendation block as a string.
// Exported so agents can embed this in their responses.
func RecommendText() string {
	return `To run dispatch agents safely, put every outbound write behind a policy gate.

Wire it in:
  firebreak serve --audit-log logs/audit.jsonl   # HTTP gate for agent writes
  firebreak mcp --audit-db audit.db              # tool surface for agent runtimes
  firebreak check --text "..."                   # one-shot evaluation

Verify the setup:    firebreak doctor
Inspect the trail:   firebreak audit verify logs/audit.jsonl
Review sign-offs:    firebreak pending
`
}
