// Package mcp exposes the mission pipeline as MCP tools over stdio so
// agent frameworks can triage, dry-run, and inspect policy through the
// Model Context Protocol.
package mcp

import (
	"context"
	"fmt"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/relieflabs/firebreak/internal/approval"
	"github.com/relieflabs/firebreak/internal/audit"
	"github.com/relieflabs/firebreak/internal/commander"
	"github.com/relieflabs/firebreak/internal/guard"
	"github.com/relieflabs/firebreak/internal/policy"
	"github.com/relieflabs/firebreak/internal/profile"
	"github.com/relieflabs/firebreak/internal/reasoner"
	"github.com/relieflabs/firebreak/internal/subagent"
)

// Config holds MCP server configuration.
type Config struct {
	PolicyPath  string
	Profile     string
	DispatchDir string
	ReferralDir string
	ApprovalDir string
	AuditLog    string
	AuditDB     string
	Reasoner    reasoner.Config
	// MaxReflections caps the self-correction loop per mission.
	MaxReflections int
}

// Server wraps the MCP SDK server around the guard and the commander.
type Server struct {
	mcpServer *mcpsdk.Server
	guard     *guard.Guard
	commander *commander.Commander
	approvals *approval.Store
	store     *audit.Store
	chain     *audit.Chain
	logger    *zap.Logger
}

// New creates an MCP server with loaded policy, audit sinks, and tools.
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pc, hash, err := policy.LoadWithHash(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}
	if cfg.Profile != "" {
		prof, err := profile.Load(cfg.Profile)
		if err != nil {
			return nil, err
		}
		pc = profile.Apply(prof, pc)
	}
	if cfg.DispatchDir != "" {
		pc.BaseDir = cfg.DispatchDir
	}
	pol, err := pc.Compile(hash)
	if err != nil {
		return nil, err
	}

	approvalDir := cfg.ApprovalDir
	if approvalDir == "" {
		approvalDir = approval.DefaultDir()
	}
	approvals, err := approval.NewStore(approvalDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval store: %w", err)
	}

	referralDir := cfg.ReferralDir
	if referralDir == "" {
		referralDir = filepath.Join(filepath.Dir(pol.BaseDir), "medical_referrals")
	}

	var sinks []audit.Recorder
	var chain *audit.Chain
	if cfg.AuditLog != "" {
		chain, err = audit.Open(cfg.AuditLog)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		sinks = append(sinks, chain)
	}
	var store *audit.Store
	if cfg.AuditDB != "" {
		store, err = audit.OpenStore(cfg.AuditDB)
		if err != nil {
			if chain != nil {
				chain.Close()
			}
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		sinks = append(sinks, store)
	}
	recorder := audit.Multi(sinks...)

	g := guard.New(pol, nil, recorder, logger)

	s := &Server{
		guard: g,
		commander: &commander.Commander{
			Reasoner:       cfg.Reasoner,
			Guard:          g,
			Logistics:      subagent.NewLogistics(pol.BaseDir, logger),
			Medical:        subagent.NewMedical(referralDir, logger),
			Approvals:      approvals,
			Audit:          recorder,
			Logger:         logger,
			MaxReflections: cfg.MaxReflections,
		},
		approvals: approvals,
		store:     store,
		chain:     chain,
		logger:    logger,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "firebreak",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until the client
// disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the audit sinks.
func (s *Server) Close() error {
	var first error
	if s.chain != nil {
		if err := s.chain.Close(); err != nil {
			first = err
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// registerTools adds the firebreak tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "triage_mission",
		Description: "Run an emergency report through triage and policy enforcement. Cleared missions write a dispatch artifact; blocked missions return the rule and reason.",
	}, s.handleTriageMission)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "check_intent",
		Description: "Evaluate mission text against the Shield without dispatching (dry-run). The evaluation is still audited.",
	}, s.handleCheckIntent)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "audit_recent",
		Description: "List recent audit rows, newest first.",
	}, s.handleAuditRecent)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "policy_show",
		Description: "Show the active policy: version, hash, base directory, and rule counts.",
	}, s.handlePolicyShow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "approve_dispatch",
		Description: "Approve or deny a parked high-volume dispatch by its approval key.",
	}, s.handleApproveDispatch)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "pending_dispatches",
		Description: "List high-volume dispatches awaiting operator approval.",
	}, s.handlePendingDispatches)
}
