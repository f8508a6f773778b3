package firebreak

import "context"

// WriteFunc is the function signature that Wrap guards: one artifact
// write. The request describes what is being written and where.
type WriteFunc func(ctx context.Context, req CheckRequest) error

// Wrap returns a WriteFunc that evaluates policy before calling fn.
// Routed and blocked requests return a *BlockedError without calling
// fn. The request fn receives is the resolved one: sanitized text and
// a concrete path, so what was judged is what gets written.
func (c *Client) Wrap(fn WriteFunc) WriteFunc {
	return func(ctx context.Context, req CheckRequest) error {
		resolved, out := c.evaluate(ctx, req)
		if !out.Allow() {
			return &BlockedError{
				Request: resolved,
				Verdict: Verdict(out.Verdict),
				RuleID:  out.RuleID,
				Reason:  out.Reason,
			}
		}
		return fn(ctx, resolved)
	}
}
