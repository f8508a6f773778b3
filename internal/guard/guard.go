// Package guard is the evaluation front door: one call that consults the
// advisory oracle, runs the deterministic Shield, and writes exactly one
// audit row. The active policy sits behind an atomic pointer so hot
// reloads never block in-flight evaluations.
package guard

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/relieflabs/firebreak/internal/audit"
	"github.com/relieflabs/firebreak/internal/model"
	"github.com/relieflabs/firebreak/internal/oracle"
	"github.com/relieflabs/firebreak/internal/policy"
	"github.com/relieflabs/firebreak/internal/sanitize"
)

// excerptLen caps how much mission text reaches an audit row.
const excerptLen = 120

// Guard wraps the Shield with the advisory oracle and the audit sink.
type Guard struct {
	pol    atomic.Pointer[policy.Policy]
	oracle *oracle.Client
	sink   audit.Recorder
	logger *zap.Logger
}

// New builds a Guard. A nil oracle disables consultation; a nil sink
// records nowhere (tests); a nil logger is replaced with a nop.
func New(pol *policy.Policy, orc *oracle.Client, sink audit.Recorder, logger *zap.Logger) *Guard {
	if sink == nil {
		sink = audit.Multi()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{oracle: orc, sink: sink, logger: logger}
	g.pol.Store(pol)
	return g
}

// Policy returns the active policy.
func (g *Guard) Policy() *policy.Policy {
	return g.pol.Load()
}

// SwapPolicy atomically replaces the active policy. In-flight evaluations
// finish under the policy they already loaded.
func (g *Guard) SwapPolicy(p *policy.Policy) {
	g.pol.Store(p)
}

// Evaluate runs one intent through the oracle pre-check and the Shield,
// writes exactly one audit row, and returns the outcome. The intent is
// never mutated; severity is the caller's triage tag for the audit row.
func (g *Guard) Evaluate(ctx context.Context, in model.Intent, severity string) model.Outcome {
	pol := g.pol.Load()

	out, decided := g.consult(ctx, in, pol)
	if !decided {
		out = policy.Evaluate(in, pol)
	}

	g.record(in, severity, out, pol)

	switch {
	case out.Block():
		g.logger.Warn("intent blocked",
			zap.String("rule", out.RuleID),
			zap.String("reason", out.Reason),
			zap.String("action", string(in.ActionKind)),
		)
	case out.Route():
		g.logger.Info("intent routed to specialist",
			zap.String("reason", out.Reason),
		)
	default:
		g.logger.Debug("intent allowed",
			zap.String("action", string(in.ActionKind)),
		)
	}
	return out
}

// consult asks the oracle for a first-pass verdict. Only a usable deny
// decides the outcome; allow, disabled, and unavailable all fall through
// to the deterministic rules. A deny can only tighten: it blocks, or
// routes when the same intent carries sensitive-content signals and a
// permitted action kind.
func (g *Guard) consult(ctx context.Context, in model.Intent, pol *policy.Policy) (model.Outcome, bool) {
	if !g.oracle.Enabled() {
		return model.Outcome{}, false
	}

	v, err := g.oracle.Consult(ctx, oracle.Query{
		Action:   string(in.ActionKind),
		Path:     in.ProposedPath,
		Category: string(in.Category),
		Keywords: in.Keywords,
		Excerpt:  sanitize.Excerpt(in.RawText, excerptLen),
	})
	if err != nil {
		g.logger.Debug("oracle unavailable", zap.Error(err))
		return model.Outcome{}, false
	}
	if !v.Deny() {
		return model.Outcome{}, false
	}

	reason := v.Reason
	if reason == "" {
		reason = "denied by policy oracle"
	}

	// Route instead of block only when the intent would have reached the
	// content check anyway: a disallowed action kind stays a block no
	// matter what the content looks like.
	if pol != nil && pol.AllowedActionKinds[in.ActionKind] {
		if _, sensitive := policy.SensitiveContent(in, pol); sensitive {
			out := model.Routed(fmt.Sprintf("oracle deny with clinical content signals: %s", reason))
			out.RuleID = model.RuleOracleDeny
			return out, true
		}
	}
	return model.Blocked(reason, model.RuleOracleDeny), true
}

// record writes the one audit row for this evaluation. A failing sink is
// logged, never allowed to change the outcome.
func (g *Guard) record(in model.Intent, severity string, out model.Outcome, pol *policy.Policy) {
	status := audit.StatusBlocked
	switch {
	case out.Allow():
		status = audit.StatusAllowed
	case out.Route():
		status = audit.StatusRouted
	}

	hash := ""
	if pol != nil {
		hash = pol.Hash
	}

	entry := audit.Entry{
		Excerpt:    sanitize.Excerpt(in.RawText, excerptLen),
		Severity:   severity,
		Action:     string(in.ActionKind),
		Status:     status,
		RuleID:     out.RuleID,
		PolicyHash: hash,
	}
	if err := g.sink.Record(entry); err != nil {
		g.logger.Error("audit record failed", zap.Error(err))
	}
}
