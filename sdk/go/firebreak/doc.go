// Package firebreak provides in-process policy enforcement for Go agent
// frameworks. It evaluates dispatch intents against the same Shield the
// server and CLI surfaces use: action-kind check, medical-content
// routing, directory scope, and the optional oracle pre-check. Wrapped
// write functions never run for a routed or blocked mission.
//
// Usage:
//
//	fb, err := firebreak.New(firebreak.WithPolicy("policy.yaml"))
//	res := fb.Check(firebreak.CheckRequest{Text: "600 blankets to zone 2"})
//	write := fb.Wrap(func(ctx context.Context, req firebreak.CheckRequest) error {
//	    return os.WriteFile(req.Path, payload, 0o644)
//	})
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/relieflabs/firebreak/sdk/go/firebreak.
package firebreak
