// Package dispatch defines the artifacts a cleared mission hands to a
// sub-agent: the logistics dispatch payload and the medical referral.
// Artifacts validate themselves; sub-agents re-run that validation and
// never trust the caller.
package dispatch

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the wire format for artifact timestamps: UTC, millisecond
// precision, trailing Z.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Timestamp returns the current UTC time in TimeLayout.
func Timestamp() string {
	return time.Now().UTC().Format(TimeLayout)
}

// Artifact is anything a sub-agent will accept for writing. Sub-agents
// call Validate themselves regardless of what the caller already checked.
type Artifact interface {
	Validate() error
}

// ValidationError collects all validation failures for an artifact.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("artifact validation failed: %s", strings.Join(e.Errors, "; "))
}

// add appends an error message.
func (e *ValidationError) add(msg string) {
	e.Errors = append(e.Errors, msg)
}
