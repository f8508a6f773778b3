package cli

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	rootPolicy   string
	rootProfile  string
	rootAuditLog string
	rootAuditDB  string
	rootVerbose  bool

	// rootLogger is built in PersistentPreRunE. The default keeps
	// command funcs callable from tests without the cobra lifecycle.
	rootLogger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "firebreak",
	Short: "Policy firewall for disaster-response agents",
	Long: "Evaluates every outbound dispatch against a policy before anything is\n" +
		"written: action kind, medical-content routing, directory scope. Missions\n" +
		"that clear the Shield are written by scoped sub-agents; every evaluation\n" +
		"lands in a hash-chained audit trail.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if rootVerbose {
			cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		logger, err := cfg.Build()
		if err != nil {
			return err
		}
		rootLogger = logger
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = rootLogger.Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootPolicy, "policy", "", "Path to policy YAML (default: built-in policy)")
	pf.StringVar(&rootProfile, "profile", "", "Deployment profile to apply (e.g., production, field-dev)")
	pf.StringVar(&rootAuditLog, "audit-log", "", "Path to hash-chained JSONL audit trail")
	pf.StringVar(&rootAuditDB, "audit-db", "", "Path to SQLite audit store")
	pf.BoolVar(&rootVerbose, "verbose", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
