package profile

import "fmt"

// InitTemplate returns a commented YAML profile template for a new
// deployment. Scope fields are commented out so an untouched template
// changes nothing; content additions are append-only.
func InitTemplate(name string) string {
	return fmt.Sprintf(`name: %s
description: Custom deployment profile

# Scope overrides. Uncomment to retarget the dispatch boundary.
# Relative paths resolve to absolute when the policy compiles.
# base_dir: /app/workspace/outgoing_dispatch
# max_path_depth: 1
# allow_subdirectories: false

# Reports mentioning a larger quantity than this park for operator
# sign-off. Set to 0 to disable the gate.
# high_volume_threshold: 1000

# Extra keyword clusters. A report matching every word in a cluster is
# routed to the medical channel. Appended to the policy, never replacing it.
extra_clusters: []
#  - [triage, casualty]

# Extra content patterns (regular expressions), also append-only.
extra_patterns: []
#  - '\b(blood\s+type|transfusion)\b'
`, name)
}
