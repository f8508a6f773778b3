package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relieflabs/firebreak/internal/alert"
	"github.com/relieflabs/firebreak/internal/reasoner"
)

// Config is the on-disk configuration for `firebreak serve`.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// PolicyPath names the policy file. Empty falls back to the user
	// policy location, then to built-in defaults.
	PolicyPath string `yaml:"policy"`
	// Profile overlays a named deployment profile on the policy.
	Profile string `yaml:"profile"`
	// DispatchDir overrides the policy base directory. The directory is
	// fixed for the lifetime of the process; hot reload changes rules,
	// not where artifacts land.
	DispatchDir string `yaml:"dispatch_dir"`
	// ReferralDir is where medical referrals are written. Empty selects
	// a medical_referrals directory next to the dispatch directory.
	ReferralDir string `yaml:"referral_dir"`
	// ApprovalDir holds pending high-volume approvals.
	ApprovalDir string `yaml:"approval_dir"`
	// AuditLog is the hash-chained JSONL trail. Empty disables it.
	AuditLog string `yaml:"audit_log"`
	// AuditDB is the SQLite recent-activity store. Empty disables it
	// and the /api/audit/recent endpoint with it.
	AuditDB string `yaml:"audit_db"`

	Reasoner ReasonerConfig `yaml:"reasoner"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Alerts   []alert.Config `yaml:"alerts"`

	// MaxReflections caps the self-correction loop per mission.
	// Zero selects the commander default.
	MaxReflections int `yaml:"max_reflections"`
}

// ReasonerConfig selects the triage endpoint.
type ReasonerConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OracleConfig names the advisory oracle process.
type OracleConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// DefaultListen is the address `firebreak serve` binds without a config.
const DefaultListen = ":8787"

// DefaultConfig returns the built-in server configuration.
func DefaultConfig() Config {
	return Config{Listen: DefaultListen}
}

// LoadConfig reads server configuration from a YAML file. Empty path and
// missing file return defaults. Reasoner fields left empty fall back to
// the FIREBREAK_API_URL, FIREBREAK_API_KEY, and FIREBREAK_MODEL
// environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read server config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse server config: %w", err)
		}
	}

	env := reasoner.FromEnv()
	if cfg.Reasoner.APIURL == "" {
		cfg.Reasoner.APIURL = env.APIURL
	}
	if cfg.Reasoner.APIKey == "" {
		cfg.Reasoner.APIKey = env.APIKey
	}
	if cfg.Reasoner.Model == "" {
		cfg.Reasoner.Model = env.Model
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	return cfg, nil
}
