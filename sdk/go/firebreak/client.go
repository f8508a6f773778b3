package firebreak

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/relieflabs/firebreak/internal/audit"
	"github.com/relieflabs/firebreak/internal/dispatch"
	"github.com/relieflabs/firebreak/internal/guard"
	"github.com/relieflabs/firebreak/internal/intent"
	"github.com/relieflabs/firebreak/internal/model"
	"github.com/relieflabs/firebreak/internal/oracle"
	"github.com/relieflabs/firebreak/internal/policy"
	"github.com/relieflabs/firebreak/internal/profile"
	"github.com/relieflabs/firebreak/internal/sanitize"
)

// Client evaluates dispatch intents in process. Safe for concurrent
// checks; the compiled policy is immutable for the client's lifetime.
type Client struct {
	cfg   clientConfig
	guard *guard.Guard
	chain *audit.Chain
	store *audit.Store
}

// New creates a Client with the given options. Without WithPolicy the
// built-in default policy applies.
func New(opts ...Option) (*Client, error) {
	var cfg clientConfig
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	pc, hash, err := policy.LoadWithHash(cfg.policyPath)
	if err != nil {
		return nil, fmt.Errorf("firebreak: load policy: %w", err)
	}
	if cfg.profileName != "" {
		prof, err := profile.Load(cfg.profileName)
		if err != nil {
			return nil, fmt.Errorf("firebreak: load profile %q: %w", cfg.profileName, err)
		}
		pc = profile.Apply(prof, pc)
	}
	pol, err := pc.Compile(hash)
	if err != nil {
		return nil, fmt.Errorf("firebreak: compile policy: %w", err)
	}

	var sinks []audit.Recorder
	var chain *audit.Chain
	var store *audit.Store
	if cfg.auditLogPath != "" {
		chain, err = audit.Open(cfg.auditLogPath)
		if err != nil {
			return nil, fmt.Errorf("firebreak: open audit trail: %w", err)
		}
		sinks = append(sinks, chain)
	}
	if cfg.auditDBPath != "" {
		store, err = audit.OpenStore(cfg.auditDBPath)
		if err != nil {
			if chain != nil {
				chain.Close()
			}
			return nil, fmt.Errorf("firebreak: open audit store: %w", err)
		}
		sinks = append(sinks, store)
	}

	var orc *oracle.Client
	if cfg.oracleCommand != "" {
		orc = &oracle.Client{Command: cfg.oracleCommand, Args: cfg.oracleArgs}
	}

	return &Client{
		cfg:   cfg,
		guard: guard.New(pol, orc, audit.Multi(sinks...), cfg.logger),
		chain: chain,
		store: store,
	}, nil
}

// Check evaluates policy for a dispatch without writing anything.
func (c *Client) Check(req CheckRequest) Result {
	return c.CheckContext(context.Background(), req)
}

// CheckContext is Check with a caller-supplied context. The context
// bounds the oracle subprocess when one is configured.
func (c *Client) CheckContext(ctx context.Context, req CheckRequest) Result {
	_, out := c.evaluate(ctx, req)
	return toResult(out)
}

// BaseDir returns the directory the active policy scopes writes to.
func (c *Client) BaseDir() string {
	return c.guard.Policy().BaseDir
}

// Close releases the audit sinks.
func (c *Client) Close() error {
	var first error
	if c.chain != nil {
		if err := c.chain.Close(); err != nil {
			first = err
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// evaluate resolves defaults and runs the Shield. The returned request
// carries the text and path that were actually judged: text after
// sanitization, path after default resolution.
func (c *Client) evaluate(ctx context.Context, req CheckRequest) (CheckRequest, model.Outcome) {
	text, err := sanitize.Clean(req.Text)
	if err != nil {
		return req, model.Blocked(fmt.Sprintf("report rejected: %v", err), model.RuleShieldError)
	}
	req.Text = text

	if req.Path == "" {
		req.Path = filepath.Join(c.guard.Policy().BaseDir, dispatch.NewFilename())
	}

	kind := model.ActionWriteDispatchLog
	if req.ActionKind != "" {
		kind = model.ParseActionKind(req.ActionKind)
	}

	in := intent.ExtractWithKind(kind, req.Text, req.Path)
	return req, c.guard.Evaluate(ctx, in, "")
}
