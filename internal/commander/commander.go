// Package commander orchestrates one mission end to end: sanitize the
// report, gate high-volume dispatches on operator approval, triage with
// the reasoner, run the Shield evaluation loop with bounded reflection,
// and hand the cleared artifact to a sub-agent for the write.
//
// The commander never writes a file itself and never overrides a Shield
// verdict. Its audit rows cover only events the guard does not see:
// parked approvals, sub-agent refusals, and write failures.
package commander

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ppiankov/neurorouter"
	"go.uber.org/zap"

	"github.com/relieflabs/firebreak/internal/alert"
	"github.com/relieflabs/firebreak/internal/approval"
	"github.com/relieflabs/firebreak/internal/audit"
	"github.com/relieflabs/firebreak/internal/dispatch"
	"github.com/relieflabs/firebreak/internal/guard"
	"github.com/relieflabs/firebreak/internal/intent"
	"github.com/relieflabs/firebreak/internal/model"
	"github.com/relieflabs/firebreak/internal/reasoner"
	"github.com/relieflabs/firebreak/internal/sanitize"
	"github.com/relieflabs/firebreak/internal/subagent"
	"github.com/relieflabs/firebreak/internal/zone"
)

// Name identifies the commander in delegation blocks.
const Name = "triage_commander"

// DefaultMaxReflections bounds the self-correction loop.
const DefaultMaxReflections = 2

// shortReportTokens is the token count below which the network reasoner
// is skipped in favor of a deterministic low-severity grade. The Shield
// still evaluates the report like any other mission.
const shortReportTokens = 3

// excerptLen caps how much mission text reaches audit rows and alerts.
const excerptLen = 120

// Commander wires the mission pipeline together. Guard, Logistics, and
// Medical are required; Approvals, Alerts, Audit, and Logger may be nil,
// which disables that concern.
type Commander struct {
	Reasoner  reasoner.Config
	Guard     *guard.Guard
	Logistics *subagent.Agent
	Medical   *subagent.Agent
	Approvals *approval.Store
	Alerts    *alert.Dispatcher
	Audit     audit.Recorder
	Logger    *zap.Logger

	// MaxReflections caps corrected re-evaluations per mission.
	// Zero or negative selects DefaultMaxReflections.
	MaxReflections int
}

// Request is one mission submission.
type Request struct {
	Report    string
	Image     []byte
	ImageMIME string
	Filename  string
}

// Result is the terminal outcome of one mission run.
type Result struct {
	RunID              string              `json:"run_id"`
	Status             model.MissionStatus `json:"status"`
	Message            string              `json:"message,omitempty"`
	Severity           string              `json:"severity,omitempty"`
	Category           string              `json:"category,omitempty"`
	RuleID             string              `json:"rule_id,omitempty"`
	Reason             string              `json:"reason,omitempty"`
	ReflectionAttempts int                 `json:"reflection_attempts"`
	ArtifactPath       string              `json:"artifact_path,omitempty"`
	ApprovalKey        string              `json:"approval_key,omitempty"`
	Triage             *reasoner.Triage    `json:"triage,omitempty"`
}

// Run executes one mission. It always returns a Result; failures inside
// the pipeline surface as terminal statuses, never as partial state.
func (c *Commander) Run(ctx context.Context, req Request) Result {
	runID := dispatch.NewRunID()
	log := c.logger().With(zap.String("run_id", runID))
	m := newMission()

	text, err := sanitize.Clean(req.Report)
	if err != nil {
		log.Warn("report rejected", zap.Error(err))
		return Result{RunID: runID, Status: model.StatusAgentError, Reason: err.Error()}
	}

	if res, parked := c.gateHighVolume(runID, text, log); parked {
		return res
	}

	tri := c.triage(ctx, text, req.Image, req.ImageMIME, log)
	log.Info("triage complete",
		zap.String("severity", tri.Severity),
		zap.String("category", tri.Category),
		zap.Bool("stub", tri.Stub),
	)
	c.advance(m, model.StateTriaged, log)

	return c.evaluate(ctx, m, runID, text, req.Filename, tri, log)
}

// gateHighVolume parks missions whose supply quantity exceeds the policy
// threshold until an operator signs off. The gate runs before triage:
// a mission awaiting sign-off spends no reasoner tokens. Returns
// parked=true when the mission must not proceed this run.
func (c *Commander) gateHighVolume(runID, text string, log *zap.Logger) (Result, bool) {
	if c.Approvals == nil {
		return Result{}, false
	}

	threshold := zone.HighVolumeThreshold
	if pol := c.Guard.Policy(); pol != nil {
		threshold = pol.HighVolumeThreshold
	}
	over, qty := zone.DetectHighVolume(text, threshold)
	if !over {
		return Result{}, false
	}

	key := approval.NewKey(text)
	reason := fmt.Sprintf("requested quantity %d exceeds threshold %d", qty, threshold)
	log = log.With(zap.String("approval_key", key), zap.Int("quantity", qty))

	status, err := c.Approvals.Check(key)
	if err != nil {
		// First submission: park the mission.
		if rerr := c.Approvals.Request(key, reason, runID, sanitize.Excerpt(text, excerptLen), qty); rerr != nil {
			log.Error("approval request failed", zap.Error(rerr))
			return Result{RunID: runID, Status: model.StatusAgentError, Reason: "approval store unavailable"}, true
		}
		return c.pending(runID, key, reason, text, log), true
	}

	switch status {
	case approval.StatusApproved:
		if uerr := c.Approvals.Use(key); uerr != nil {
			log.Warn("approval unusable", zap.Error(uerr))
			return c.pending(runID, key, reason, text, log), true
		}
		log.Info("high-volume dispatch approved")
		return Result{}, false
	case approval.StatusDenied:
		log.Warn("high-volume dispatch denied")
		return Result{
			RunID:       runID,
			Status:      model.StatusAgentError,
			Reason:      fmt.Sprintf("high-volume dispatch denied by operator (key %s)", key),
			ApprovalKey: key,
		}, true
	case approval.StatusExpired:
		return c.pending(runID, key, reason+" (earlier approval expired)", text, log), true
	case approval.StatusConsumed:
		return c.pending(runID, key, reason+" (earlier approval already used)", text, log), true
	default:
		return c.pending(runID, key, reason, text, log), true
	}
}

// pending records the parked mission and tells the caller which key an
// operator has to approve.
func (c *Commander) pending(runID, key, reason, text string, log *zap.Logger) Result {
	c.record(audit.Entry{
		Excerpt: sanitize.Excerpt(text, excerptLen),
		Action:  string(model.ActionWriteDispatchLog),
		Status:  audit.StatusPendingApproval,
	}, log)
	c.alert(alert.Event{
		RunID:   runID,
		Status:  audit.StatusPendingApproval,
		Reason:  reason,
		Excerpt: sanitize.Excerpt(text, excerptLen),
	})
	log.Info("mission parked for approval")
	return Result{
		RunID:       runID,
		Status:      model.StatusPendingApproval,
		Message:     fmt.Sprintf("awaiting operator approval (key %s)", key),
		Reason:      reason,
		ApprovalKey: key,
	}
}

// triage grades the mission. Short reports and offline configurations
// use deterministic grades; any reasoner failure degrades to the stub.
// Zones the grader left unspecified are backfilled from the text.
func (c *Commander) triage(ctx context.Context, text string, image []byte, imageMIME string, log *zap.Logger) reasoner.Triage {
	var tri reasoner.Triage
	switch {
	case len(intent.Tokenize(text)) < shortReportTokens:
		tri = shortTriage()
	case c.Reasoner.APIURL == "":
		tri = reasoner.StubTriage()
	default:
		var err error
		tri, err = reasoner.Classify(ctx, c.Reasoner, text, image, imageMIME)
		if err != nil {
			log.Warn("triage failed, using stub", zap.Error(err))
			tri = reasoner.StubTriage()
		}
	}

	if len(tri.AffectedZones) == 0 || (len(tri.AffectedZones) == 1 && tri.AffectedZones[0] == zone.Unspecified) {
		tri.AffectedZones = zone.Extract(text)
	}
	return tri
}

// shortTriage grades trivially short reports without a network call.
// Distinct from the offline stub: a greeting is not a HIGH-severity event.
func shortTriage() reasoner.Triage {
	return reasoner.Triage{
		Severity:           string(model.SeverityLow),
		Category:           string(model.CategoryLogistics),
		RecommendedActions: []string{"Log report and await situation details"},
		AffectedZones:      []string{zone.Unspecified},
		Confidence:         0.2,
		Stub:               true,
	}
}

// evaluate runs the Shield loop: at most MaxReflections corrected
// re-evaluations after the first pass. Every pass builds a fresh Intent;
// the Shield judges each one independently.
func (c *Commander) evaluate(ctx context.Context, m *mission, runID, text, filename string, tri reasoner.Triage, log *zap.Logger) Result {
	baseDir := ""
	if pol := c.Guard.Policy(); pol != nil {
		baseDir = pol.BaseDir
	}
	if filename == "" {
		filename = dispatch.NewFilename()
	}

	attempts := 0
	for {
		c.advance(m, model.StateEvaluating, log)

		in := intent.Extract(text, filepath.Join(baseDir, filename))
		out := c.Guard.Evaluate(ctx, in, tri.Severity)

		switch {
		case out.Allow():
			c.advance(m, model.StateAllowed, log)
			return c.dispatchCleared(m, runID, text, filename, in, tri, attempts, log)

		case out.Route():
			c.advance(m, model.StateRouted, log)
			return c.routeToMedical(m, runID, text, in, out, tri, attempts, log)

		default:
			if !out.ReflectionEligible() || attempts >= c.maxReflections() {
				c.advance(m, model.StateHardBlocked, log)
				return c.hardBlocked(runID, text, out, tri, attempts, log)
			}

			c.advance(m, model.StateReflectionPending, log)
			corrected, err := reasoner.Rewrite(ctx, c.Reasoner, out.Reason, text)
			if err != nil {
				if errors.Is(err, neurorouter.ErrRateLimited) {
					log.Warn("rewrite rate limited, stopping reflection")
				} else {
					log.Warn("rewrite failed, stopping reflection", zap.Error(err))
				}
				c.advance(m, model.StateHardBlocked, log)
				return c.hardBlocked(runID, text, out, tri, attempts, log)
			}

			attempts++
			text = corrected
			// A corrected attempt writes a new artifact, never the
			// original name.
			filename = dispatch.NewFilename()
			log.Info("reflection pass",
				zap.Int("attempt", attempts),
				zap.String("rule", out.RuleID),
			)
			c.advance(m, model.StateTriaged, log)
		}
	}
}

// dispatchCleared builds the payload for a cleared mission and hands it
// to the logistics sub-agent.
func (c *Commander) dispatchCleared(m *mission, runID, text, filename string, in model.Intent, tri reasoner.Triage, attempts int, log *zap.Logger) Result {
	payload := dispatch.NewPayload(dispatch.Params{
		RunID:              runID,
		Model:              c.modelName(tri),
		Category:           string(in.Category),
		Severity:           tri.Severity,
		RecommendedActions: tri.RecommendedActions,
		AffectedZones:      tri.AffectedZones,
		Confidence:         tri.Confidence,
		MissionBriefing:    text,
		Enforcement: dispatch.Enforcement{
			ShieldCleared:      true,
			ActionType:         string(in.ActionKind),
			RulesChecked:       dispatch.RulesChecked(),
			ReflectionUsed:     attempts > 0,
			ReflectionAttempts: attempts,
		},
		Delegation: dispatch.Delegation{
			Commander: Name,
			SubAgent:  c.Logistics.Name,
			Scope:     scopeOf(c.Logistics),
			Bounded:   true,
		},
	})

	msg, err := c.Logistics.Write(payload, filename)
	if err != nil {
		return c.subAgentFailure(m, runID, text, c.Logistics, err, tri, attempts, log)
	}

	c.advance(m, model.StateCompleted, log)
	status := model.StatusSuccess
	if attempts > 0 {
		status = model.StatusSuccessAfterReflection
	}
	log.Info("mission dispatched",
		zap.String("status", string(status)),
		zap.Int("reflection_attempts", attempts),
	)
	return Result{
		RunID:              runID,
		Status:             status,
		Message:            msg,
		Severity:           tri.Severity,
		Category:           string(in.Category),
		ReflectionAttempts: attempts,
		ArtifactPath:       filepath.Join(c.Logistics.Root(), filename),
		Triage:             &tri,
	}
}

// routeToMedical hands a routed mission to the medical referral officer.
// Routing is terminal: the logistics path is never invoked for it.
func (c *Commander) routeToMedical(m *mission, runID, text string, in model.Intent, out model.Outcome, tri reasoner.Triage, attempts int, log *zap.Logger) Result {
	referral := dispatch.NewReferral(runID, text, out.Reason)
	filename := dispatch.NewReferralFilename()

	msg, err := c.Medical.Write(referral, filename)
	if err != nil {
		return c.subAgentFailure(m, runID, text, c.Medical, err, tri, attempts, log)
	}

	log.Info("mission routed to medical officer", zap.String("referral", filename))
	return Result{
		RunID:              runID,
		Status:             model.StatusRoutedToMedical,
		Message:            msg,
		Severity:           tri.Severity,
		Category:           string(in.Category),
		RuleID:             out.RuleID,
		Reason:             out.Reason,
		ReflectionAttempts: attempts,
		ArtifactPath:       filepath.Join(c.Medical.Root(), filename),
		Triage:             &tri,
	}
}

// hardBlocked surfaces a terminal block. The guard already recorded the
// BLOCKED audit row for the final evaluation; here the reason reaches
// the caller verbatim with the attempt count.
func (c *Commander) hardBlocked(runID, text string, out model.Outcome, tri reasoner.Triage, attempts int, log *zap.Logger) Result {
	msg := "mission blocked"
	if attempts > 0 {
		msg = fmt.Sprintf("self-healing exhausted after %d attempts", attempts)
	}
	log.Warn("mission hard-blocked",
		zap.String("rule", out.RuleID),
		zap.Int("reflection_attempts", attempts),
	)

	c.alert(alert.Event{
		RunID:    runID,
		Status:   audit.StatusBlocked,
		RuleID:   out.RuleID,
		Reason:   out.Reason,
		Severity: tri.Severity,
		Excerpt:  sanitize.Excerpt(text, excerptLen),
	})

	return Result{
		RunID:              runID,
		Status:             model.StatusBlockedByShield,
		Message:            msg,
		Severity:           tri.Severity,
		RuleID:             out.RuleID,
		Reason:             out.Reason,
		ReflectionAttempts: attempts,
		Triage:             &tri,
	}
}

// subAgentFailure distinguishes a boundary refusal from an operational
// write failure. Both get an audit row; neither leaves a file behind.
func (c *Commander) subAgentFailure(m *mission, runID, text string, agent *subagent.Agent, err error, tri reasoner.Triage, attempts int, log *zap.Logger) Result {
	if m.state == model.StateAllowed {
		c.advance(m, model.StateFailed, log)
	}

	var authority *subagent.AuthorityError
	if errors.As(err, &authority) {
		log.Warn("sub-agent refused write",
			zap.String("sub_agent", authority.SubAgent),
			zap.String("filename", authority.Filename),
			zap.String("refusal", authority.Reason),
		)
		c.record(audit.Entry{
			Excerpt:  sanitize.Excerpt(text, excerptLen),
			Severity: tri.Severity,
			Action:   agent.Scope,
			Status:   audit.StatusAuthorityExceeded,
			RuleID:   model.RuleAuthorityExceeded,
		}, log)
		c.alert(alert.Event{
			RunID:    runID,
			Status:   audit.StatusAuthorityExceeded,
			RuleID:   model.RuleAuthorityExceeded,
			Reason:   authority.Error(),
			Severity: tri.Severity,
			Excerpt:  sanitize.Excerpt(text, excerptLen),
		})
		return Result{
			RunID:              runID,
			Status:             model.StatusBlockedBySubAgent,
			Severity:           tri.Severity,
			RuleID:             model.RuleAuthorityExceeded,
			Reason:             authority.Error(),
			ReflectionAttempts: attempts,
			Triage:             &tri,
		}
	}

	log.Error("sub-agent write failed", zap.Error(err))
	c.record(audit.Entry{
		Excerpt:  sanitize.Excerpt(text, excerptLen),
		Severity: tri.Severity,
		Action:   agent.Scope,
		Status:   audit.StatusToolError,
	}, log)
	c.alert(alert.Event{
		RunID:    runID,
		Status:   audit.StatusToolError,
		Reason:   err.Error(),
		Severity: tri.Severity,
		Excerpt:  sanitize.Excerpt(text, excerptLen),
	})
	return Result{
		RunID:              runID,
		Status:             model.StatusToolError,
		Severity:           tri.Severity,
		Reason:             err.Error(),
		ReflectionAttempts: attempts,
		Triage:             &tri,
	}
}

// record writes one terminal-event audit row. Evaluation rows are the
// guard's; the commander records only events the guard never sees.
func (c *Commander) record(entry audit.Entry, log *zap.Logger) {
	if c.Audit == nil {
		return
	}
	if entry.PolicyHash == "" {
		if pol := c.Guard.Policy(); pol != nil {
			entry.PolicyHash = pol.Hash
		}
	}
	if err := c.Audit.Record(entry); err != nil {
		log.Error("audit record failed", zap.Error(err))
	}
}

func (c *Commander) alert(event alert.Event) {
	if c.Alerts == nil {
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = dispatch.Timestamp()
	}
	if event.PolicyHash == "" {
		if pol := c.Guard.Policy(); pol != nil {
			event.PolicyHash = pol.Hash
		}
	}
	c.Alerts.Dispatch(event)
}

// advance moves the mission state. Transitions come from the fixed flow
// above; on a violation the mission keeps its prior state and the error
// is logged.
func (c *Commander) advance(m *mission, next model.MissionState, log *zap.Logger) {
	if err := m.to(next); err != nil {
		log.Error("mission state error", zap.Error(err))
	}
}

// modelName names the grader in the dispatch artifact. Stub grades are
// labeled as such rather than crediting a model that never ran.
func (c *Commander) modelName(tri reasoner.Triage) string {
	if tri.Stub || c.Reasoner.Model == "" {
		return "offline-stub"
	}
	return c.Reasoner.Model
}

func (c *Commander) maxReflections() int {
	if c.MaxReflections > 0 {
		return c.MaxReflections
	}
	return DefaultMaxReflections
}

func (c *Commander) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

// scopeOf renders a delegation scope like ".json only | outgoing_dispatch/ only".
func scopeOf(a *subagent.Agent) string {
	return fmt.Sprintf(".json only | %s/ only", filepath.Base(a.Root()))
}
