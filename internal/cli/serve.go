package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relieflabs/firebreak/internal/server"
)

var (
	serveAddr   string
	serveConfig string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default "+server.DefaultListen+")")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Path to server config YAML")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP mission server",
	Long: "Runs the mission pipeline behind an HTTP API: POST /api/analyze,\n" +
		"GET /api/audit/recent, GET /api/policy, GET /healthz. The policy file\n" +
		"hot-reloads on change; a broken file keeps the active policy serving.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := server.LoadConfig(serveConfig)
	if err != nil {
		return fmt.Errorf("load server config: %w", err)
	}
	if serveAddr != "" {
		cfg.Listen = serveAddr
	}
	if rootPolicy != "" {
		cfg.PolicyPath = rootPolicy
	}
	if rootProfile != "" {
		cfg.Profile = rootProfile
	}
	if rootAuditLog != "" {
		cfg.AuditLog = rootAuditLog
	}
	if rootAuditDB != "" {
		cfg.AuditDB = rootAuditDB
	}

	srv, err := server.New(cfg, rootLogger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reloader, err := server.NewReloader(srv, []string{cfg.PolicyPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	}
	if reloader != nil {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down mission server...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "firebreak mission server listening on %s\n", cfg.Listen)
	if cfg.Profile != "" {
		fmt.Fprintf(os.Stderr, "Profile: %s\n", cfg.Profile)
	}
	if cfg.PolicyPath != "" {
		fmt.Fprintf(os.Stderr, "Policy: %s (hot-reload enabled)\n", cfg.PolicyPath)
	}
	fmt.Fprintln(os.Stderr)

	return srv.Start(ctx)
}
