package cli

import (
	"fmt"
	"path/filepath"
	"strings"

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

// pipeline bundles what a one-shot command needs to run or check a
// mission with the same wiring the long-running surfaces use.
type pipeline struct {
	guard     *guard.Guard
	commander *commander.Commander
	approvals *approval.Store
	chain     *audit.Chain
	store     *audit.Store
}

// buildPipeline assembles the mission pipeline from the persistent flags.
// Audit sinks are optional; without --audit-log or --audit-db the
// evaluation still runs, it just leaves no trail.
func buildPipeline(logger *zap.Logger) (*pipeline, error) {
	pol, err := loadActivePolicy()
	if err != nil {
		return nil, err
	}

	approvals, err := approval.NewStore(approval.DefaultDir())
	if err != nil {
		return nil, fmt.Errorf("open approval store: %w", err)
	}

	var sinks []audit.Recorder
	var chain *audit.Chain
	var store *audit.Store
	if rootAuditLog != "" {
		chain, err = audit.Open(rootAuditLog)
		if err != nil {
			return nil, fmt.Errorf("open audit trail: %w", err)
		}
		sinks = append(sinks, chain)
	}
	if rootAuditDB != "" {
		store, err = audit.OpenStore(rootAuditDB)
		if err != nil {
			if chain != nil {
				chain.Close()
			}
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		sinks = append(sinks, store)
	}
	recorder := audit.Multi(sinks...)

	g := guard.New(pol, nil, recorder, logger)
	referralDir := filepath.Join(filepath.Dir(pol.BaseDir), "medical_referrals")

	return &pipeline{
		guard: g,
		commander: &commander.Commander{
			Reasoner:  reasoner.FromEnv(),
			Guard:     g,
			Logistics: subagent.NewLogistics(pol.BaseDir, logger),
			Medical:   subagent.NewMedical(referralDir, logger),
			Approvals: approvals,
			Audit:     recorder,
			Logger:    logger,
		},
		approvals: approvals,
		chain:     chain,
		store:     store,
	}, nil
}

func (p *pipeline) Close() error {
	var first error
	if p.chain != nil {
		if err := p.chain.Close(); err != nil {
			first = err
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// loadActivePolicy loads, overlays, and compiles the policy named by the
// persistent flags.
func loadActivePolicy() (*policy.Policy, error) {
	cfg, hash, err := policy.LoadWithHash(rootPolicy)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	if rootProfile != "" {
		prof, err := profile.Load(rootProfile)
		if err != nil {
			return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(profile.List(), ", "))
		}
		cfg = profile.Apply(prof, cfg)
	}
	pol, err := cfg.Compile(hash)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	return pol, nil
}
