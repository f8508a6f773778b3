// Package profile provides named deployment profiles: small overlays that
// retarget the policy at a deployment layout without touching its content
// rules. Content rules are append-only; a profile can add clusters and
// patterns, never remove them.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// Profile is a named overlay applied on top of a policy config.
// Pointer fields distinguish "leave as is" from an explicit zero.
type Profile struct {
	Name                string     `yaml:"name"`
	Description         string     `yaml:"description"`
	BaseDir             string     `yaml:"base_dir"`
	MaxPathDepth        *int       `yaml:"max_path_depth,omitempty"`
	AllowSubdirectories *bool      `yaml:"allow_subdirectories,omitempty"`
	HighVolumeThreshold *int       `yaml:"high_volume_threshold,omitempty"`
	ExtraClusters       [][]string `yaml:"extra_clusters"`
	ExtraPatterns       []string   `yaml:"extra_patterns"`
}

// Load loads a profile by name. Checks built-in profiles first,
// then falls back to ~/.firebreak/profiles/<name>.yaml.
func Load(name string) (*Profile, error) {
	if data, ok := builtinProfiles[name]; ok {
		var p Profile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse built-in profile %q: %w", name, err)
		}
		return &p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("profile %q not found (no built-in, cannot determine home dir)", name)
	}

	path := filepath.Join(home, ".firebreak", "profiles", name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile %q not found", name)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %q: %w", name, err)
	}

	return &p, nil
}

// List returns sorted names of all available profiles (built-in + user).
func List() []string {
	seen := make(map[string]bool)
	for name := range builtinProfiles {
		seen[name] = true
	}

	home, err := os.UserHomeDir()
	if err == nil {
		dir := filepath.Join(home, ".firebreak", "profiles")
		entries, err := os.ReadDir(dir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				name := e.Name()
				if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
					seen[name[:len(name)-len(ext)]] = true
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that a profile is well-formed.
func Validate(p *Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.MaxPathDepth != nil && *p.MaxPathDepth < 0 {
		return fmt.Errorf("max_path_depth must not be negative")
	}
	for i, cl := range p.ExtraClusters {
		if len(cl) == 0 {
			return fmt.Errorf("extra_clusters[%d] is empty", i)
		}
	}
	for i, pat := range p.ExtraPatterns {
		if _, err := regexp.Compile(pat); err != nil {
			return fmt.Errorf("extra_patterns[%d]: invalid regex %q: %w", i, pat, err)
		}
	}
	return nil
}
