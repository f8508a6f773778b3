package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/relieflabs/firebreak/internal/approval"
)

var (
	approveTTL  time.Duration
	approveDeny bool
)

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().DurationVar(&approveTTL, "ttl", 0, "Validity period (e.g., 30m, 2h). Default: one-time use")
	approveCmd.Flags().BoolVar(&approveDeny, "deny", false, "Deny the dispatch instead of approving it")
}

var approveCmd = &cobra.Command{
	Use:   "approve <key>",
	Short: "Approve or deny a parked high-volume dispatch",
	Long: "Resolves a pending approval request. Without --ttl the approval is\n" +
		"one-time (consumed by the next submission of the same report). With\n" +
		"--ttl the approval stays valid for the period and can be reused.",
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	key := args[0]

	store, err := approval.NewStore(approval.DefaultDir())
	if err != nil {
		return fmt.Errorf("open approval store: %w", err)
	}

	if approveDeny {
		if approveTTL != 0 {
			return fmt.Errorf("--ttl and --deny are mutually exclusive")
		}
		if err := store.Deny(key); err != nil {
			return err
		}
		fmt.Printf("Denied %q\n", key)
		return nil
	}

	if err := store.Approve(key, approveTTL); err != nil {
		return err
	}

	if approveTTL > 0 {
		fmt.Printf("Approved %q for %s\n", key, approveTTL)
	} else {
		fmt.Printf("Approved %q (one-time use)\n", key)
	}
	return nil
}
