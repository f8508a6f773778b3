package mcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/relieflabs/firebreak/internal/commander"
	"github.com/relieflabs/firebreak/internal/dispatch"
	"github.com/relieflabs/firebreak/internal/intent"
	"github.com/relieflabs/firebreak/internal/model"
	"github.com/relieflabs/firebreak/internal/sanitize"
)

// --- Input/Output types ---

// TriageInput defines parameters for the triage_mission tool.
type TriageInput struct {
	Report   string `json:"report" jsonschema:"emergency report text to triage and dispatch"`
	Filename string `json:"filename,omitempty" jsonschema:"dispatch artifact filename, defaults to a generated name"`
}

// TriageOutput is the terminal mission result.
type TriageOutput struct {
	RunID              string `json:"run_id"`
	Status             string `json:"status"`
	Message            string `json:"message,omitempty"`
	Severity           string `json:"severity,omitempty"`
	Category           string `json:"category,omitempty"`
	RuleID             string `json:"rule_id,omitempty"`
	Reason             string `json:"reason,omitempty"`
	ReflectionAttempts int    `json:"reflection_attempts"`
	ArtifactPath       string `json:"artifact_path,omitempty"`
	ApprovalKey        string `json:"approval_key,omitempty"`
}

// CheckInput defines parameters for the check_intent tool.
type CheckInput struct {
	Text string `json:"text" jsonschema:"mission text to evaluate"`
	Path string `json:"path,omitempty" jsonschema:"proposed artifact path, defaults to a generated name under the policy base directory"`
}

// CheckOutput carries the Shield verdict.
type CheckOutput struct {
	Verdict string `json:"verdict"`
	RuleID  string `json:"rule_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// AuditRecentInput defines parameters for the audit_recent tool.
type AuditRecentInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of rows to return, defaults to 5"`
}

// AuditRecentOutput lists recent audit rows, newest first.
type AuditRecentOutput struct {
	Entries []AuditRow `json:"entries"`
}

// AuditRow is one audit trail row.
type AuditRow struct {
	Timestamp string `json:"timestamp"`
	Excerpt   string `json:"excerpt"`
	Severity  string `json:"severity,omitempty"`
	Action    string `json:"action"`
	Status    string `json:"status"`
	RuleID    string `json:"rule_id,omitempty"`
}

// PolicyShowInput is empty. The tool takes no parameters.
type PolicyShowInput struct{}

// PolicyShowOutput summarizes the active policy.
type PolicyShowOutput struct {
	Version             string   `json:"version"`
	Hash                string   `json:"hash"`
	BaseDir             string   `json:"base_dir"`
	AllowedActionKinds  []string `json:"allowed_action_kinds"`
	BlockedClusters     int      `json:"blocked_clusters"`
	BlockedPatterns     int      `json:"blocked_patterns"`
	HighVolumeThreshold int      `json:"high_volume_threshold"`
}

// ApproveInput defines parameters for the approve_dispatch tool.
type ApproveInput struct {
	Key      string `json:"key" jsonschema:"approval key from a parked mission"`
	Duration string `json:"duration,omitempty" jsonschema:"validity window (e.g. 30m), omit for a one-time approval"`
	Deny     bool   `json:"deny,omitempty" jsonschema:"deny instead of approve"`
}

// ApproveOutput confirms the decision.
type ApproveOutput struct {
	Key      string `json:"key"`
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
}

// PendingInput is empty. The tool takes no parameters.
type PendingInput struct{}

// PendingOutput lists parked dispatches.
type PendingOutput struct {
	Approvals []PendingItem `json:"approvals"`
}

// PendingItem describes one approval request.
type PendingItem struct {
	Key       string `json:"key"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	Excerpt   string `json:"excerpt,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
	CreatedAt string `json:"created_at"`
}

// --- Handlers ---

func (s *Server) handleTriageMission(ctx context.Context, req *mcpsdk.CallToolRequest, input TriageInput) (*mcpsdk.CallToolResult, TriageOutput, error) {
	if input.Report == "" {
		return nil, TriageOutput{}, errors.New("report is required")
	}

	res := s.commander.Run(ctx, commander.Request{
		Report:   input.Report,
		Filename: input.Filename,
	})

	out := TriageOutput{
		RunID:              res.RunID,
		Status:             string(res.Status),
		Message:            res.Message,
		Severity:           res.Severity,
		Category:           res.Category,
		RuleID:             res.RuleID,
		Reason:             res.Reason,
		ReflectionAttempts: res.ReflectionAttempts,
		ArtifactPath:       res.ArtifactPath,
		ApprovalKey:        res.ApprovalKey,
	}
	if terminalFailure(res.Status) {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

// terminalFailure reports whether a mission status means the dispatch
// did not happen. Routed missions are a successful handoff, not a
// failure.
func terminalFailure(status model.MissionStatus) bool {
	switch status {
	case model.StatusSuccess, model.StatusSuccessAfterReflection, model.StatusRoutedToMedical:
		return false
	}
	return true
}

func (s *Server) handleCheckIntent(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	text, err := sanitize.Clean(input.Text)
	if err != nil {
		return nil, CheckOutput{}, fmt.Errorf("text rejected: %w", err)
	}

	path := input.Path
	if path == "" {
		path = filepath.Join(s.guard.Policy().BaseDir, dispatch.NewFilename())
	}

	in := intent.Extract(text, path)
	out := s.guard.Evaluate(ctx, in, "")

	result := CheckOutput{
		Verdict: string(out.Verdict),
		RuleID:  out.RuleID,
		Reason:  out.Reason,
	}
	if out.Block() {
		return &mcpsdk.CallToolResult{IsError: true}, result, nil
	}
	return nil, result, nil
}

func (s *Server) handleAuditRecent(ctx context.Context, req *mcpsdk.CallToolRequest, input AuditRecentInput) (*mcpsdk.CallToolResult, AuditRecentOutput, error) {
	if s.store == nil {
		return nil, AuditRecentOutput{}, errors.New("audit store not configured")
	}

	entries, err := s.store.Recent(input.Limit)
	if err != nil {
		return nil, AuditRecentOutput{}, err
	}

	rows := make([]AuditRow, len(entries))
	for i, e := range entries {
		rows[i] = AuditRow{
			Timestamp: e.Timestamp,
			Excerpt:   e.Excerpt,
			Severity:  e.Severity,
			Action:    e.Action,
			Status:    e.Status,
			RuleID:    e.RuleID,
		}
	}
	return nil, AuditRecentOutput{Entries: rows}, nil
}

func (s *Server) handlePolicyShow(ctx context.Context, req *mcpsdk.CallToolRequest, input PolicyShowInput) (*mcpsdk.CallToolResult, PolicyShowOutput, error) {
	pol := s.guard.Policy()

	kinds := make([]string, 0, len(pol.AllowedActionKinds))
	for k := range pol.AllowedActionKinds {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	return nil, PolicyShowOutput{
		Version:             pol.Version,
		Hash:                pol.Hash,
		BaseDir:             pol.BaseDir,
		AllowedActionKinds:  kinds,
		BlockedClusters:     len(pol.Clusters),
		BlockedPatterns:     len(pol.Patterns),
		HighVolumeThreshold: pol.HighVolumeThreshold,
	}, nil
}

func (s *Server) handleApproveDispatch(ctx context.Context, req *mcpsdk.CallToolRequest, input ApproveInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	if input.Key == "" {
		return nil, ApproveOutput{}, errors.New("key is required")
	}

	if input.Deny {
		if err := s.approvals.Deny(input.Key); err != nil {
			return nil, ApproveOutput{}, err
		}
		return nil, ApproveOutput{Key: input.Key, Status: "denied"}, nil
	}

	var duration time.Duration
	if input.Duration != "" {
		var err error
		duration, err = time.ParseDuration(input.Duration)
		if err != nil {
			return nil, ApproveOutput{}, fmt.Errorf("invalid duration %q: %w", input.Duration, err)
		}
	}
	if err := s.approvals.Approve(input.Key, duration); err != nil {
		return nil, ApproveOutput{}, err
	}

	out := ApproveOutput{Key: input.Key, Status: "approved"}
	if duration > 0 {
		out.Duration = duration.String()
	}
	return nil, out, nil
}

func (s *Server) handlePendingDispatches(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	list, err := s.approvals.List()
	if err != nil {
		return nil, PendingOutput{}, err
	}

	items := make([]PendingItem, len(list))
	for i, a := range list {
		items[i] = PendingItem{
			Key:       a.Key,
			Status:    string(a.Status),
			Reason:    a.Reason,
			Excerpt:   a.Excerpt,
			Quantity:  a.Quantity,
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, PendingOutput{Approvals: items}, nil
}
