package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relieflabs/firebreak/internal/approval"
)

var pendingClear bool

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.Flags().BoolVar(&pendingClear, "clear", false, "Remove every record, including unresolved requests")
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List parked high-volume dispatches",
	Long:  "Shows all approval requests in the store with their status, quantity,\nreport excerpt, and creation time.",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	store, err := approval.NewStore(approval.DefaultDir())
	if err != nil {
		return fmt.Errorf("open approval store: %w", err)
	}

	if pendingClear {
		if err := store.Cleanup(); err != nil {
			return fmt.Errorf("clear approval store: %w", err)
		}
		fmt.Println("Approval store cleared.")
		return nil
	}

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("list approvals: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No pending dispatches.")
		return nil
	}

	fmt.Printf("%-16s %-10s %8s  %-44s %s\n", "KEY", "STATUS", "QUANTITY", "EXCERPT", "CREATED")
	for _, a := range list {
		fmt.Printf("%-16s %-10s %8d  %-44s %s\n",
			a.Key,
			a.Status,
			a.Quantity,
			truncate(a.Excerpt, 44),
			a.CreatedAt.Format("15:04:05"),
		)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
