package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/relieflabs/firebreak/internal/audit"
)

var auditTailN int

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditStatsCmd)
	auditTailCmd.Flags().IntVarP(&auditTailN, "lines", "n", 10, "Number of recent entries to show")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail operations",
	Long:  "Commands for inspecting and verifying the hash-chained audit trail.",
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent audit trail entries",
	Long:  "Reads the last N entries from the JSONL audit trail and prints them\nas a table. Falls back to --audit-log when no path is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of an audit trail",
	Long:  "Walks the JSONL audit trail and validates that every entry's prev_hash\nmatches the SHA-256 of the previous line. Exits 0 if intact, 1 if broken.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats [db]",
	Short: "Summarize audit store rows by status",
	Long:  "Counts rows per status in the SQLite audit store. Falls back to\n--audit-db when no path is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditStats,
}

// auditPath resolves the trail path from the argument or --audit-log.
func auditPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if rootAuditLog != "" {
		return rootAuditLog, nil
	}
	return "", fmt.Errorf("no audit trail given (pass a path or --audit-log)")
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}

	entries, err := audit.Tail(path, auditTailN)
	if err != nil {
		return err
	}
	fmt.Print(audit.FormatEntries(entries))
	return nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}

	result := audit.Verify(path)
	if result.Valid {
		fmt.Printf("OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditStats(cmd *cobra.Command, args []string) error {
	path := ""
	switch {
	case len(args) == 1:
		path = args[0]
	case rootAuditDB != "":
		path = rootAuditDB
	default:
		return fmt.Errorf("no audit store given (pass a path or --audit-db)")
	}

	store, err := audit.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.CountByStatus()
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		fmt.Println("No rows.")
		return nil
	}

	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	total := 0
	for _, s := range statuses {
		fmt.Printf("%-20s %6d\n", s, counts[s])
		total += counts[s]
	}
	fmt.Printf("%-20s %6d\n", "TOTAL", total)
	return nil
}
