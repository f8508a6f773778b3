package oracle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func shellOracle(script string) *Client {
	return &Client{Command: "sh", Args: []string{"-c", script}}
}

func TestConsultAllow(t *testing.T) {
	c := shellOracle(`echo '{"decision":"allow"}'`)
	v, err := c.Consult(context.Background(), Query{Action: "write_dispatch_log"})
	if err != nil {
		t.Fatalf("consult: %v", err)
	}
	if v.Deny() {
		t.Error("expected allow verdict")
	}
}

func TestConsultDeny(t *testing.T) {
	c := shellOracle(`echo '{"decision":"deny","reason":"staging freeze"}'`)
	v, err := c.Consult(context.Background(), Query{Action: "write_dispatch_log"})
	if err != nil {
		t.Fatalf("consult: %v", err)
	}
	if !v.Deny() {
		t.Error("expected deny verdict")
	}
	if v.Reason != "staging freeze" {
		t.Errorf("expected reason to survive, got %q", v.Reason)
	}
}

func TestConsultReceivesQueryOnStdin(t *testing.T) {
	script := `if grep -q write_dispatch_log; then echo '{"decision":"deny","reason":"saw the action"}'; else echo '{"decision":"allow"}'; fi`
	c := shellOracle(script)
	v, err := c.Consult(context.Background(), Query{Action: "write_dispatch_log"})
	if err != nil {
		t.Fatalf("consult: %v", err)
	}
	if !v.Deny() {
		t.Error("oracle should have seen the action on stdin")
	}
}

func TestConsultDisabled(t *testing.T) {
	var c *Client
	if c.Enabled() {
		t.Error("nil client must be disabled")
	}
	if _, err := c.Consult(context.Background(), Query{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got: %v", err)
	}

	empty := &Client{}
	if _, err := empty.Consult(context.Background(), Query{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for empty command, got: %v", err)
	}
}

func TestConsultNonZeroExit(t *testing.T) {
	c := shellOracle(`exit 3`)
	if _, err := c.Consult(context.Background(), Query{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got: %v", err)
	}
}

func TestConsultUnparseableOutput(t *testing.T) {
	c := shellOracle(`echo "I refuse to answer in JSON"`)
	if _, err := c.Consult(context.Background(), Query{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got: %v", err)
	}
}

func TestConsultUnknownDecision(t *testing.T) {
	c := shellOracle(`echo '{"decision":"maybe"}'`)
	if _, err := c.Consult(context.Background(), Query{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got: %v", err)
	}
}

func TestConsultTimeout(t *testing.T) {
	c := shellOracle(`sleep 5`)
	c.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := c.Consult(context.Background(), Query{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout did not bound the consultation (%s)", elapsed)
	}
}
