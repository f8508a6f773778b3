package profile

import (
	"github.com/relieflabs/firebreak/internal/policy"
)

// Apply merges a profile into a policy config. Returns a new config and
// does not mutate the input. Scope fields (base dir, depth, threshold) are
// overridden when the profile sets them; content rules are appended, never
// removed. Relative base dirs resolve to absolute when the policy compiles.
func Apply(p *Profile, cfg *policy.Config) *policy.Config {
	merged := *cfg

	if p.BaseDir != "" {
		merged.BaseDir = p.BaseDir
	}
	if p.MaxPathDepth != nil {
		merged.MaxPathDepth = *p.MaxPathDepth
	}
	if p.AllowSubdirectories != nil {
		merged.AllowSubdirectories = *p.AllowSubdirectories
	}
	if p.HighVolumeThreshold != nil {
		merged.HighVolumeThreshold = *p.HighVolumeThreshold
	}

	if len(p.ExtraClusters) > 0 {
		clusters := make([][]string, 0, len(cfg.BlockedClusters)+len(p.ExtraClusters))
		clusters = append(clusters, cfg.BlockedClusters...)
		clusters = append(clusters, p.ExtraClusters...)
		merged.BlockedClusters = clusters
	}
	if len(p.ExtraPatterns) > 0 {
		patterns := make([]string, 0, len(cfg.BlockedPatterns)+len(p.ExtraPatterns))
		patterns = append(patterns, cfg.BlockedPatterns...)
		patterns = append(patterns, p.ExtraPatterns...)
		merged.BlockedPatterns = patterns
	}

	return &merged
}
