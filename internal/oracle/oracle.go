// Package oracle consults an external policy process as a first-pass
// advisory check. The oracle can only tighten an outcome: it may flag an
// intent the deterministic rules would have cleared, but an allow (or an
// unavailable oracle) changes nothing. Nothing downstream depends on it
// for safety.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrUnavailable means the oracle could not produce a verdict: timeout,
// non-zero exit, or unparseable output. Callers fall through to the
// deterministic rules.
var ErrUnavailable = errors.New("oracle unavailable")

// DefaultTimeout bounds how long one consultation may run.
const DefaultTimeout = 3 * time.Second

// Client invokes the configured oracle process. A nil client or empty
// command disables consultation.
type Client struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// Query is what the oracle sees: the typed intent, never raw user input
// beyond the sanitized excerpt.
type Query struct {
	Action   string   `json:"action"`
	Path     string   `json:"path,omitempty"`
	Category string   `json:"category,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Excerpt  string   `json:"excerpt,omitempty"`
}

// Verdict is the oracle's one-object answer.
type Verdict struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// Deny reports whether the oracle asked for a block.
func (v Verdict) Deny() bool {
	return strings.EqualFold(v.Decision, "deny")
}

// Enabled reports whether a command is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.Command != ""
}

// Consult writes the query as JSON to the oracle's stdin and parses one
// JSON verdict from its stdout. Any failure is ErrUnavailable; the oracle
// is advisory and must never wedge a mission.
func (c *Client) Consult(ctx context.Context, q Query) (Verdict, error) {
	if !c.Enabled() {
		return Verdict{}, ErrUnavailable
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	input, err := json.Marshal(q)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: marshal query: %v", ErrUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = bytes.NewReader(input)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Verdict{}, fmt.Errorf("%w: timeout after %s", ErrUnavailable, timeout)
		}
		return Verdict{}, fmt.Errorf("%w: %v: %s", ErrUnavailable, err, strings.TrimSpace(stderr.String()))
	}

	var v Verdict
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &v); err != nil {
		return Verdict{}, fmt.Errorf("%w: parse verdict: %v", ErrUnavailable, err)
	}
	if v.Decision != "allow" && v.Decision != "deny" {
		return Verdict{}, fmt.Errorf("%w: unknown decision %q", ErrUnavailable, v.Decision)
	}
	return v, nil
}
