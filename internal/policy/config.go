// Package policy holds the declarative ruleset of the Shield and the
// evaluator that applies it. Rule data (allowed action kinds, keyword
// clusters, regex patterns, path scope) lives in versioned YAML so policy
// changes never require recompilation; the evaluator logic itself is fixed.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/relieflabs/firebreak/internal/model"
)

// Config is the on-disk shape of a policy file.
type Config struct {
	Version             string     `yaml:"version"`
	AllowedActionKinds  []string   `yaml:"allowed_action_kinds"`
	BaseDir             string     `yaml:"base_dir"`
	MaxPathDepth        int        `yaml:"max_path_depth"`
	AllowSubdirectories bool       `yaml:"allow_subdirectories"`
	BlockedClusters     [][]string `yaml:"blocked_clusters"`
	BlockedPatterns     []string   `yaml:"blocked_patterns"`
	HighVolumeThreshold int        `yaml:"high_volume_threshold"`
}

// DefaultConfig returns the built-in policy. The content rules mirror the
// clinical deny set the dispatch pipeline shipped with.
func DefaultConfig() *Config {
	return &Config{
		Version:             "1",
		AllowedActionKinds:  []string{string(model.ActionWriteDispatchLog)},
		BaseDir:             "/app/workspace/outgoing_dispatch",
		MaxPathDepth:        1,
		AllowSubdirectories: false,
		BlockedClusters: [][]string{
			{"diagnosis", "treatment"},
			{"prescription", "medication"},
			{"medical", "advice"},
			{"triage", "injury", "wound"},
			{"burns", "laceration", "fracture"},
			{"surgery", "procedure", "anesthesia"},
			{"drug", "dosage", "antibiotic"},
			{"patient", "clinical", "symptom"},
			{"diagnose", "treat", "prescribe"},
			{"therapy", "rehabilitation"},
			{"infection", "sterile", "suture"},
		},
		BlockedPatterns: []string{
			`\b(treat|treating|treated)\b.{0,50}\b(patient|victim|casualty)\b`,
			`\b(prescribe|prescription)\b`,
			`\b(diagnos[ei][sd]?)\b`,
			`\b(medical\s+advice|clinical\s+assessment|clinical\s+diagnosis)\b`,
			`\b(mg|ml|tablet|capsule|injection|iv\s+drip)\b`,
			`\b(burn\s+wound|second[\s\-]degree|third[\s\-]degree)\b`,
		},
		HighVolumeThreshold: 1000,
	}
}

// Load reads a policy config from a YAML file.
// Empty path falls back to ~/.firebreak/policy.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads a policy config and returns its SHA-256 hash, computed
// over the raw YAML bytes on disk. When defaults are used, the hash covers
// DefaultYAML() so the hash always identifies the active rules.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), hashBytes([]byte(DefaultYAML())), nil
		}
		path = filepath.Join(home, ".firebreak", "policy.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashBytes([]byte(DefaultYAML())), nil
		}
		return nil, "", fmt.Errorf("failed to read policy config: %w", err)
	}

	// Start with defaults; YAML overwrites only the fields it names.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse policy config: %w", err)
	}

	return cfg, hashBytes(data), nil
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Policy is the compiled, immutable form of a Config. Every field is fixed
// at Compile time; a different ruleset means constructing a new Policy,
// never mutating this one. Safe to share across concurrent missions.
type Policy struct {
	Version             string
	Hash                string
	AllowedActionKinds  map[model.ActionKind]bool
	BaseDir             string
	MaxPathDepth        int
	AllowSubdirectories bool
	Clusters            [][]string
	Patterns            []*regexp.Regexp
	HighVolumeThreshold int

	rawPatterns []string
}

// Compile validates a Config and produces an immutable Policy.
// Compilation fails closed: unknown action kinds, an empty base dir, or an
// invalid regex reject the whole config rather than silently dropping the
// offending rule.
func (c *Config) Compile(hash string) (*Policy, error) {
	if c == nil {
		return nil, fmt.Errorf("nil policy config")
	}
	if c.BaseDir == "" {
		return nil, fmt.Errorf("policy base_dir must not be empty")
	}
	base, err := filepath.Abs(filepath.Clean(c.BaseDir))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve base_dir %q: %w", c.BaseDir, err)
	}

	kinds := make(map[model.ActionKind]bool, len(c.AllowedActionKinds))
	for _, s := range c.AllowedActionKinds {
		k := model.ActionKind(s)
		if !model.ValidActionKinds[k] {
			return nil, fmt.Errorf("unknown action kind %q in allowed_action_kinds", s)
		}
		kinds[k] = true
	}

	clusters := make([][]string, 0, len(c.BlockedClusters))
	for i, cl := range c.BlockedClusters {
		if len(cl) == 0 {
			return nil, fmt.Errorf("blocked_clusters[%d] is empty", i)
		}
		clusters = append(clusters, model.NormalizeKeywords(cl))
	}

	patterns := make([]*regexp.Regexp, 0, len(c.BlockedPatterns))
	for i, p := range c.BlockedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("blocked_patterns[%d]: invalid regex %q: %w", i, p, err)
		}
		patterns = append(patterns, re)
	}

	depth := c.MaxPathDepth
	if depth < 0 {
		return nil, fmt.Errorf("max_path_depth must not be negative")
	}

	return &Policy{
		Version:             c.Version,
		Hash:                hash,
		AllowedActionKinds:  kinds,
		BaseDir:             base,
		MaxPathDepth:        depth,
		AllowSubdirectories: c.AllowSubdirectories,
		Clusters:            clusters,
		Patterns:            patterns,
		HighVolumeThreshold: c.HighVolumeThreshold,
		rawPatterns:         append([]string(nil), c.BlockedPatterns...),
	}, nil
}

// LoadPolicy loads, hashes, and compiles in one step.
func LoadPolicy(path string) (*Policy, error) {
	cfg, hash, err := LoadWithHash(path)
	if err != nil {
		return nil, err
	}
	return cfg.Compile(hash)
}

// WithBaseDir returns a new Policy identical to p except for the base
// directory. This is the deployment-directory switch: a pure function
// producing a fresh instance, never an in-place edit.
func (p *Policy) WithBaseDir(dir string) (*Policy, error) {
	if dir == "" {
		return nil, fmt.Errorf("base dir must not be empty")
	}
	base, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve base dir %q: %w", dir, err)
	}
	q := *p
	q.BaseDir = base
	return &q, nil
}

// DefaultYAML returns a commented policy template for `firebreak init`.
func DefaultYAML() string {
	return `# firebreak policy configuration
# Generated by: firebreak init
#
# Evaluation order (cannot be changed):
#   1. Action-kind check        -> block (RULE:ACTION_TYPE)
#   2. Sensitive-content check  -> route to medical (RULE:MEDICAL_BLOCK)
#   3. Path-scope check         -> block (RULE:DIR_SCOPE)
version: "1"

# Action kinds the Shield will clear. Anything else is blocked.
allowed_action_kinds:
  - write_dispatch_log

# All dispatch writes must land under this directory.
base_dir: /app/workspace/outgoing_dispatch

# Maximum number of path components below base_dir. With depth 1 only
# direct children are writable.
max_path_depth: 1
allow_subdirectories: false

# Keyword clusters: a cluster triggers only when ALL of its terms appear
# (AND within a cluster, OR across clusters). Matches route the mission to
# the medical specialist instead of the dispatch path.
blocked_clusters:
  - [diagnosis, treatment]
  - [prescription, medication]
  - [medical, advice]
  - [triage, injury, wound]
  - [burns, laceration, fracture]
  - [surgery, procedure, anesthesia]
  - [drug, dosage, antibiotic]
  - [patient, clinical, symptom]
  - [diagnose, treat, prescribe]
  - [therapy, rehabilitation]
  - [infection, sterile, suture]

# Regex patterns evaluated in order against the raw mission text.
blocked_patterns:
  - '\b(treat|treating|treated)\b.{0,50}\b(patient|victim|casualty)\b'
  - '\b(prescribe|prescription)\b'
  - '\b(diagnos[ei][sd]?)\b'
  - '\b(medical\s+advice|clinical\s+assessment|clinical\s+diagnosis)\b'
  - '\b(mg|ml|tablet|capsule|injection|iv\s+drip)\b'
  - '\b(burn\s+wound|second[\s\-]degree|third[\s\-]degree)\b'

# Missions requesting more than this many supply units need a human
# sign-off before they run. 0 disables the gate.
high_volume_threshold: 1000
`
}
