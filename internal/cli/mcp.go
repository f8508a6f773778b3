package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	firemcp "github.com/relieflabs/firebreak/internal/mcp"
	"github.com/relieflabs/firebreak/internal/reasoner"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP tool server on stdio",
	Long: "Runs the mission pipeline as an MCP (Model Context Protocol) server\n" +
		"over stdio. Exposes tools: triage_mission, check_intent, audit_recent,\n" +
		"policy_show, approve_dispatch, pending_dispatches.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := firemcp.Config{
		PolicyPath: rootPolicy,
		Profile:    rootProfile,
		AuditLog:   rootAuditLog,
		AuditDB:    rootAuditDB,
		Reasoner:   reasoner.FromEnv(),
	}

	srv, err := firemcp.New(cfg, rootLogger)
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	// Stdout carries the protocol; operator messages go to stderr.
	fmt.Fprintln(os.Stderr, "firebreak MCP server running on stdio")
	if rootProfile != "" {
		fmt.Fprintf(os.Stderr, "Profile: %s\n", rootProfile)
	}
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
