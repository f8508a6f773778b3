package dispatch

import (
	"fmt"

	"github.com/google/uuid"
)

// NewRunID returns a fresh mission run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// NewFilename returns a fresh dispatch log filename like
// "dispatch_a1b2c3d4.json". Each call draws a new UUID, so names are
// never reused.
func NewFilename() string {
	return fmt.Sprintf("dispatch_%s.json", uuid.New().String()[:8])
}

// NewReferralFilename returns a fresh medical referral filename like
// "medical_a1b2c3d4.json".
func NewReferralFilename() string {
	return fmt.Sprintf("medical_%s.json", uuid.New().String()[:8])
}
