// ABOUTME: Configuration loading and parsing for hive-orchestrator
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete hive-orchestrator configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Agents     AgentsConfig     `yaml:"agents"`
	Provider   ProviderConfig   `yaml:"provider"`
	Tools      ToolsConfig      `yaml:"tools"`
	Tasks      TasksConfig      `yaml:"tasks"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration for the SSO collaborator.
// The orchestrator never issues tokens; it only validates them against
// the identity provider's published endpoints.
type AuthConfig struct {
	Issuer          string `yaml:"issuer"`
	Audience        string `yaml:"audience"`
	JWKSURL         string `yaml:"jwks_url"`
	APIKeyVerifyURL string `yaml:"api_key_verify_url"`

	// DevOverride enables the X-Hive-Dev-Identity bypass header.
	// Disabled by default; every use is logged at WARN.
	DevOverride bool `yaml:"dev_override"`

	JWKSCacheTTL    time.Duration `yaml:"-"`
	JWKSCacheTTLRaw string        `yaml:"jwks_cache_ttl"`
}

// AgentsConfig holds actor loop timing and budget configuration
type AgentsConfig struct {
	CheckpointEvery int `yaml:"checkpoint_every"`
	RetryCeiling    int `yaml:"retry_ceiling"`

	ProgressInterval time.Duration `yaml:"-"`
	IdleEviction     time.Duration `yaml:"-"`
	ProviderTimeout  time.Duration `yaml:"-"`
	ToolTimeout      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ProgressIntervalRaw string `yaml:"progress_interval"`
	IdleEvictionRaw     string `yaml:"idle_eviction"`
	ProviderTimeoutRaw  string `yaml:"provider_timeout"`
	ToolTimeoutRaw      string `yaml:"tool_timeout"`
}

// ProviderConfig points at the LLM provider collaborator
type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// ToolsConfig points at the tool runtime collaborator
type ToolsConfig struct {
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"token"`
	Names   []string `yaml:"names"`
}

// TasksConfig points at the task-management collaborator
type TasksConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// GuardrailsConfig holds guardrail policy configuration
type GuardrailsConfig struct {
	PolicyPath string `yaml:"policy_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts the raw duration strings into time.Duration values.
// Empty strings are left as zero; applyDefaults fills those in afterwards.
func parseDurations(cfg *Config) error {
	parse := func(name, raw string, out *time.Duration) error {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		*out = d
		return nil
	}

	if err := parse("agents.progress_interval", cfg.Agents.ProgressIntervalRaw, &cfg.Agents.ProgressInterval); err != nil {
		return err
	}
	if err := parse("agents.idle_eviction", cfg.Agents.IdleEvictionRaw, &cfg.Agents.IdleEviction); err != nil {
		return err
	}
	if err := parse("agents.provider_timeout", cfg.Agents.ProviderTimeoutRaw, &cfg.Agents.ProviderTimeout); err != nil {
		return err
	}
	if err := parse("agents.tool_timeout", cfg.Agents.ToolTimeoutRaw, &cfg.Agents.ToolTimeout); err != nil {
		return err
	}
	if err := parse("auth.jwks_cache_ttl", cfg.Auth.JWKSCacheTTLRaw, &cfg.Auth.JWKSCacheTTL); err != nil {
		return err
	}
	return nil
}

// applyDefaults fills in zero-valued optional fields.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Agents.CheckpointEvery == 0 {
		c.Agents.CheckpointEvery = 10
	}
	if c.Agents.RetryCeiling == 0 {
		c.Agents.RetryCeiling = 3
	}
	if c.Agents.ProgressInterval == 0 {
		c.Agents.ProgressInterval = 30 * time.Second
	}
	if c.Agents.IdleEviction == 0 {
		c.Agents.IdleEviction = 15 * time.Minute
	}
	if c.Agents.ProviderTimeout == 0 {
		c.Agents.ProviderTimeout = 60 * time.Second
	}
	if c.Agents.ToolTimeout == 0 {
		c.Agents.ToolTimeout = 120 * time.Second
	}
	if c.Auth.JWKSCacheTTL == 0 {
		c.Auth.JWKSCacheTTL = time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "default"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.Issuer == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if c.Auth.Audience == "" {
		return fmt.Errorf("auth.audience is required")
	}
	if c.Auth.JWKSURL == "" {
		return fmt.Errorf("auth.jwks_url is required")
	}
	if c.Auth.APIKeyVerifyURL == "" {
		return fmt.Errorf("auth.api_key_verify_url is required")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Agents.CheckpointEvery < 1 {
		return fmt.Errorf("agents.checkpoint_every must be positive")
	}
	if c.Agents.RetryCeiling < 1 {
		return fmt.Errorf("agents.retry_ceiling must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}
	return nil
}
