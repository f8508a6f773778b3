// Package subagent implements bounded delegation: single-purpose agents
// that can write exactly one kind of artifact inside exactly one
// directory. An agent re-validates everything it is handed. It does not
// trust the commander, and a validation failure means no file is created.
package subagent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/relieflabs/firebreak/internal/dispatch"
)

// Boundary is the write authority granted to a sub-agent: one root
// directory and a closed set of file extensions.
type Boundary struct {
	Root        string
	AllowedExts map[string]bool
}

// Agent is a delegated writer. Its only action is Write.
type Agent struct {
	Name     string
	Scope    string
	boundary Boundary
	logger   *zap.Logger
}

// NewLogistics returns the logistics dispatcher: JSON dispatch logs under
// the given root, nothing else.
func NewLogistics(root string, logger *zap.Logger) *Agent {
	return newAgent("logistics_dispatcher", "write_dispatch_log", root, logger)
}

// NewMedical returns the medical referral officer: JSON referral notes
// under the given root. The root must be a different directory from the
// logistics root; the commander wires them apart.
func NewMedical(root string, logger *zap.Logger) *Agent {
	return newAgent("medical_referral_officer", "write_medical_referral", root, logger)
}

func newAgent(name, scope, root string, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		Name:  name,
		Scope: scope,
		boundary: Boundary{
			Root:        filepath.Clean(root),
			AllowedExts: map[string]bool{".json": true},
		},
		logger: logger,
	}
}

// Root returns the agent's write root.
func (a *Agent) Root() string {
	return a.boundary.Root
}

// AuthorityError is raised when a write crosses the agent's boundary.
// It always carries the attempted filename.
type AuthorityError struct {
	SubAgent string
	Filename string
	Reason   string
}

func (e *AuthorityError) Error() string {
	return fmt.Sprintf("%s refused %q: %s", e.SubAgent, e.Filename, e.Reason)
}

// ToolError is an I/O failure during a write that had already cleared
// the boundary checks. It is an operational fault, not a violation.
type ToolError struct {
	SubAgent string
	Op       string
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.SubAgent, e.Op, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Write validates the artifact and filename against the agent's boundary,
// then writes the artifact atomically. The checks run in a fixed order on
// every call:
//
//  1. artifact present and self-valid
//  2. filename well-formed (non-empty, no null bytes)
//  3. destination stays inside the root after cleaning
//  4. extension on the allowlist
//
// Any failed check returns an *AuthorityError and no file is created.
// A failure after the checks (marshal, disk) returns a *ToolError.
// On success the returned message names the written path.
func (a *Agent) Write(artifact dispatch.Artifact, filename string) (string, error) {
	if artifact == nil {
		return a.refuse(filename, "no artifact provided")
	}
	if err := artifact.Validate(); err != nil {
		return a.refuse(filename, fmt.Sprintf("artifact failed validation: %v", err))
	}

	if filename == "" {
		return a.refuse(filename, "empty filename")
	}
	if strings.ContainsRune(filename, 0) {
		return a.refuse(filename, "filename contains a null byte")
	}

	dest := filepath.Clean(filepath.Join(a.boundary.Root, filename))
	rel, err := filepath.Rel(a.boundary.Root, dest)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return a.refuse(filename, "path escapes the delegation boundary")
	}

	ext := strings.ToLower(filepath.Ext(dest))
	if !a.boundary.AllowedExts[ext] {
		return a.refuse(filename, fmt.Sprintf("extension %q is not permitted", ext))
	}

	if err := os.MkdirAll(a.boundary.Root, 0750); err != nil {
		return "", a.fail("create directory", err)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", a.fail("marshal artifact", err)
	}

	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", a.fail("write temp file", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", a.fail("rename to final", err)
	}

	a.logger.Info("artifact written",
		zap.String("sub_agent", a.Name),
		zap.String("path", dest),
	)
	return fmt.Sprintf("log written: %s", dest), nil
}

// refuse logs the violation and returns an *AuthorityError.
func (a *Agent) refuse(filename, reason string) (string, error) {
	a.logger.Warn("authority violation",
		zap.String("sub_agent", a.Name),
		zap.String("filename", filename),
		zap.String("reason", reason),
	)
	return "", &AuthorityError{SubAgent: a.Name, Filename: filename, Reason: reason}
}

func (a *Agent) fail(op string, err error) error {
	a.logger.Error("write failed",
		zap.String("sub_agent", a.Name),
		zap.String("op", op),
		zap.Error(err),
	)
	return &ToolError{SubAgent: a.Name, Op: op, Err: err}
}
