package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relieflabs/firebreak/internal/approval"
)

func init() {
	rootCmd.AddCommand(denyCmd)
}

var denyCmd = &cobra.Command{
	Use:   "deny <key>",
	Short: "Deny a parked high-volume dispatch",
	Long:  "Denies a pending approval request. Resubmissions of the same report\nstay blocked for this key. Shorthand for approve --deny.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeny,
}

func runDeny(cmd *cobra.Command, args []string) error {
	key := args[0]

	store, err := approval.NewStore(approval.DefaultDir())
	if err != nil {
		return fmt.Errorf("open approval store: %w", err)
	}

	if err := store.Deny(key); err != nil {
		return err
	}

	fmt.Printf("Denied %q\n", key)
	return nil
}
