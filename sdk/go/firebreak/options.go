package firebreak

import "go.uber.org/zap"

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	policyPath    string
	profileName   string
	auditLogPath  string
	auditDBPath   string
	oracleCommand string
	oracleArgs    []string
	guardedPaths  []string
	logger        *zap.Logger
}

// WithPolicy sets the path to a policy YAML file.
func WithPolicy(path string) Option {
	return func(c *clientConfig) { c.policyPath = path }
}

// WithProfile sets the deployment profile (e.g., "production").
func WithProfile(name string) Option {
	return func(c *clientConfig) { c.profileName = name }
}

// WithAuditLog appends every evaluation to a hash-chained JSONL trail.
func WithAuditLog(path string) Option {
	return func(c *clientConfig) { c.auditLogPath = path }
}

// WithAuditDB records every evaluation in a SQLite store.
func WithAuditDB(path string) Option {
	return func(c *clientConfig) { c.auditDBPath = path }
}

// WithOracleCommand enables the advisory pre-check subprocess.
func WithOracleCommand(command string, args ...string) Option {
	return func(c *clientConfig) {
		c.oracleCommand = command
		c.oracleArgs = args
	}
}

// WithGuardedPaths restricts Middleware evaluation to the given URL
// paths. Without it every POST body is evaluated.
func WithGuardedPaths(paths ...string) Option {
	return func(c *clientConfig) { c.guardedPaths = paths }
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}
