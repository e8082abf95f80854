package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	dserrors "github.com/systmms/secretproxy/internal/errors"
	"github.com/systmms/secretproxy/pkg/backend"
)

//go:embed schema.json
var schemaJSON string

// Access roles granted to bearer tokens.
const (
	RoleSecretsUser       = "secrets-user"
	RoleSecretsCacheAdmin = "secrets-cache-admin"
)

// Defaults applied to unset fields.
const (
	DefaultAddress         = ":8081"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultStoreTimeoutMs  = 30000
	DefaultWorkers         = 16
	DefaultMetricsPath     = "/metrics"
)

// Config is the secretproxy.yaml structure
type Config struct {
	Path string `yaml:"-"`

	Version     int               `yaml:"version"`
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	SecretStore SecretStoreConfig `yaml:"secretStore"`
	Cache       CacheConfig       `yaml:"cache"`
	Workers     WorkersConfig     `yaml:"workers"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig maps bearer tokens to roles
type AuthConfig struct {
	Enabled *bool         `yaml:"enabled"`
	Tokens  []TokenConfig `yaml:"tokens"`
}

// IsEnabled reports whether requests must carry a bearer token. Auth is on
// unless explicitly disabled.
func (a AuthConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// TokenConfig is one accepted bearer token. The secret is read from
// token_env when set, so it need not live in the file.
type TokenConfig struct {
	Name     string   `yaml:"name"`
	Token    string   `yaml:"token"`
	TokenEnv string   `yaml:"token_env"`
	Roles    []string `yaml:"roles"`
}

// SecretStoreConfig selects and configures the backend. Variant-specific
// properties are kept inline.
type SecretStoreConfig struct {
	Type      string                 `yaml:"type"`
	TimeoutMs int                    `yaml:"timeout_ms,omitempty"`
	Config    map[string]interface{} `yaml:",inline"`
}

// Timeout returns the per-call backend timeout
func (s SecretStoreConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// CacheConfig holds entry cache options
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	ProtectMemory bool          `yaml:"protect_memory"`
}

// WorkersConfig sizes the backend worker pool
type WorkersConfig struct {
	Size int `yaml:"size"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// IsEnabled reports whether metrics are exposed. On unless explicitly disabled.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Debug   bool `yaml:"debug"`
	NoColor bool `yaml:"no_color"`
}

// Default returns a configuration for an IN_MEMORY store with auth disabled.
func Default() *Config {
	disabled := false
	cfg := &Config{
		Auth:        AuthConfig{Enabled: &disabled},
		SecretStore: SecretStoreConfig{Type: string(backend.TypeInMemory)},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads, validates and resolves the configuration file at path. An
// empty path yields Default() with environment overrides applied.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		if err := cfg.applyEnv(); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dserrors.ConfigError{
				Field:      "path",
				Value:      path,
				Message:    "configuration file not found",
				Suggestion: "Pass --config with the path to secretproxy.yaml",
			}
		}
		return nil, dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// Parse validates data against the embedded schema and decodes it.
func Parse(data []byte) (*Config, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, dserrors.ConfigError{
			Message:    fmt.Sprintf("invalid YAML syntax in configuration file: %v", err),
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
		}
	}
	if raw == nil {
		return nil, dserrors.ConfigError{
			Message:    "configuration file is empty",
			Suggestion: "Define at least secretStore.type",
		}
	}
	if err := validateWithSchema(raw); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, dserrors.ConfigError{
			Message:    fmt.Sprintf("invalid configuration: %v", err),
			Suggestion: "Durations use Go syntax such as 500ms, 10s or 1m",
		}
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateWithSchema(raw interface{}) error {
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return dserrors.ConfigError{
			Message:    "schema validation failed:\n  - " + strings.Join(errorMessages, "\n  - "),
			Suggestion: "Compare the file against the documented secretproxy.yaml layout",
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.SecretStore.TimeoutMs == 0 {
		c.SecretStore.TimeoutMs = DefaultStoreTimeoutMs
	}
	if c.SecretStore.Config == nil {
		c.SecretStore.Config = make(map[string]interface{})
	}
	if c.Workers.Size == 0 {
		c.Workers.Size = DefaultWorkers
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// applyEnv applies SECRETPROXY_* overrides and resolves token_env references.
func (c *Config) applyEnv() error {
	if v := os.Getenv("SECRETPROXY_STORE_TYPE"); v != "" {
		c.SecretStore.Type = v
	}
	if v := os.Getenv("SECRETPROXY_SERVER_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("SECRETPROXY_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return dserrors.ConfigError{Field: "workers.size", Value: v, Message: "SECRETPROXY_WORKERS must be an integer"}
		}
		c.Workers.Size = n
	}
	if v := os.Getenv("SECRETPROXY_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return dserrors.ConfigError{Field: "logging.debug", Value: v, Message: "SECRETPROXY_DEBUG must be a boolean"}
		}
		c.Logging.Debug = debug
	}

	for i := range c.Auth.Tokens {
		tok := &c.Auth.Tokens[i]
		if tok.TokenEnv == "" {
			continue
		}
		if v := os.Getenv(tok.TokenEnv); v != "" {
			tok.Token = v
		}
	}
	return nil
}

// Validate checks cross-field rules the schema cannot express.
func (c *Config) Validate() error {
	if c.Version != 0 {
		return dserrors.ConfigError{
			Field:      "version",
			Value:      c.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of secretproxy.yaml",
		}
	}

	t, err := backend.ParseType(c.SecretStore.Type)
	if err != nil {
		return dserrors.ConfigError{
			Field:      "secretStore.type",
			Value:      c.SecretStore.Type,
			Message:    err.Error(),
			Suggestion: fmt.Sprintf("Use one of: %s", typeList()),
		}
	}
	c.SecretStore.Type = string(t)

	if c.Workers.Size < 1 {
		return dserrors.ConfigError{Field: "workers.size", Value: c.Workers.Size, Message: "must be at least 1"}
	}
	if c.Cache.TTL < 0 {
		return dserrors.ConfigError{Field: "cache.ttl", Value: c.Cache.TTL, Message: "must not be negative"}
	}

	if c.Auth.IsEnabled() {
		if len(c.Auth.Tokens) == 0 {
			return dserrors.ConfigError{
				Field:      "auth.tokens",
				Message:    "auth is enabled but no tokens are configured",
				Suggestion: "Add tokens or set auth.enabled: false",
			}
		}
		seen := make(map[string]string)
		for _, tok := range c.Auth.Tokens {
			if tok.Token == "" {
				return dserrors.ConfigError{
					Field:      "auth.tokens." + tok.Name,
					Message:    "token has no value",
					Suggestion: fmt.Sprintf("Set token or export %s", nonEmpty(tok.TokenEnv, "the variable named by token_env")),
				}
			}
			if other, dup := seen[tok.Token]; dup {
				return dserrors.ConfigError{
					Field:   "auth.tokens." + tok.Name,
					Message: fmt.Sprintf("token value duplicates token %q", other),
				}
			}
			seen[tok.Token] = tok.Name
			for _, role := range tok.Roles {
				if role != RoleSecretsUser && role != RoleSecretsCacheAdmin {
					return dserrors.ConfigError{
						Field:   "auth.tokens." + tok.Name + ".roles",
						Value:   role,
						Message: "unknown role",
					}
				}
			}
		}
	}

	return nil
}

func typeList() string {
	var names []string
	for _, t := range backend.Types() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
