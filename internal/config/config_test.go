package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/secretproxy/internal/errors"
)

func TestParseMinimal(t *testing.T) {
	cfg, err := Parse([]byte(`
auth:
  enabled: false
secretStore:
  type: in-memory
`))
	require.NoError(t, err)

	assert.Equal(t, "IN_MEMORY", cfg.SecretStore.Type)
	assert.Equal(t, DefaultAddress, cfg.Server.Address)
	assert.Equal(t, DefaultReadTimeout, cfg.Server.ReadTimeout)
	assert.Equal(t, DefaultWriteTimeout, cfg.Server.WriteTimeout)
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DefaultWorkers, cfg.Workers.Size)
	assert.Equal(t, 30*time.Second, cfg.SecretStore.Timeout())
	assert.True(t, cfg.Metrics.IsEnabled())
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Auth.IsEnabled())
	assert.Zero(t, cfg.Cache.TTL)
}

func TestParseFull(t *testing.T) {
	t.Setenv("USER_TOKEN", "from-env")

	cfg, err := Parse([]byte(`
version: 0
server:
  address: 127.0.0.1:9000
  read_timeout: 5s
  write_timeout: 6s
  shutdown_timeout: 1m
auth:
  tokens:
    - name: app
      token_env: USER_TOKEN
      roles: [secrets-user]
    - name: ops
      token: ops-token
      roles: [secrets-user, secrets-cache-admin]
secretStore:
  type: AWS_SSM
  region: eu-west-1
  use_iam: true
  parameter_prefix: /prod/
  timeout_ms: 2500
cache:
  ttl: 10m
  protect_memory: true
workers:
  size: 4
metrics:
  enabled: false
logging:
  debug: true
  no_color: true
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 6*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, time.Minute, cfg.Server.ShutdownTimeout)

	assert.True(t, cfg.Auth.IsEnabled())
	require.Len(t, cfg.Auth.Tokens, 2)
	assert.Equal(t, "from-env", cfg.Auth.Tokens[0].Token)
	assert.Equal(t, []string{RoleSecretsUser, RoleSecretsCacheAdmin}, cfg.Auth.Tokens[1].Roles)

	assert.Equal(t, "AWS_SSM", cfg.SecretStore.Type)
	assert.Equal(t, 2500*time.Millisecond, cfg.SecretStore.Timeout())
	assert.Equal(t, "eu-west-1", cfg.SecretStore.Config["region"])
	assert.Equal(t, true, cfg.SecretStore.Config["use_iam"])
	assert.Equal(t, "/prod/", cfg.SecretStore.Config["parameter_prefix"])
	assert.NotContains(t, cfg.SecretStore.Config, "type")
	assert.NotContains(t, cfg.SecretStore.Config, "timeout_ms")

	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.Cache.ProtectMemory)
	assert.Equal(t, 4, cfg.Workers.Size)
	assert.False(t, cfg.Metrics.IsEnabled())
	assert.True(t, cfg.Logging.Debug)
	assert.True(t, cfg.Logging.NoColor)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name: "missing secret store",
			yaml: "server:\n  address: :1\n",
		},
		{
			name: "unknown top level key",
			yaml: "secretStore:\n  type: IN_MEMORY\nproviders: {}\n",
		},
		{
			name: "unknown role",
			yaml: "secretStore:\n  type: IN_MEMORY\nauth:\n  tokens:\n    - name: a\n      token: x\n      roles: [root]\n",
		},
		{
			name: "bad duration",
			yaml: "secretStore:\n  type: IN_MEMORY\ncache:\n  ttl: soon\n",
		},
		{
			name: "zero workers",
			yaml: "secretStore:\n  type: IN_MEMORY\nworkers:\n  size: 0\n",
		},
		{
			name: "metrics path without slash",
			yaml: "secretStore:\n  type: IN_MEMORY\nmetrics:\n  path: metrics\n",
		},
		{
			name:  "unknown backend type",
			yaml:  "auth:\n  enabled: false\nsecretStore:\n  type: CONSUL\n",
			field: "secretStore.type",
		},
		{
			name:  "auth enabled without tokens",
			yaml:  "secretStore:\n  type: IN_MEMORY\n",
			field: "auth.tokens",
		},
		{
			name:  "token without value",
			yaml:  "secretStore:\n  type: IN_MEMORY\nauth:\n  tokens:\n    - name: a\n      token_env: SECRETPROXY_TEST_UNSET\n      roles: [secrets-user]\n",
			field: "auth.tokens.a",
		},
		{
			name:  "duplicate token values",
			yaml:  "secretStore:\n  type: IN_MEMORY\nauth:\n  tokens:\n    - name: a\n      token: same\n      roles: [secrets-user]\n    - name: b\n      token: same\n      roles: [secrets-user]\n",
			field: "auth.tokens.b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, dserrors.IsConfigError(err), "expected ConfigError, got %T: %v", err, err)

			if tt.field != "" {
				var ce dserrors.ConfigError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, tt.field, ce.Field)
			}
		})
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("secretStore: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML syntax")
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse([]byte(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration file is empty")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SECRETPROXY_STORE_TYPE", "ephemeral")
	t.Setenv("SECRETPROXY_SERVER_ADDRESS", ":9999")
	t.Setenv("SECRETPROXY_WORKERS", "3")
	t.Setenv("SECRETPROXY_DEBUG", "true")

	cfg, err := Parse([]byte("auth:\n  enabled: false\nsecretStore:\n  type: IN_MEMORY\n"))
	require.NoError(t, err)

	assert.Equal(t, "EPHEMERAL", cfg.SecretStore.Type)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, 3, cfg.Workers.Size)
	assert.True(t, cfg.Logging.Debug)
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv("SECRETPROXY_DEBUG", "maybe")

	_, err := Parse([]byte("auth:\n  enabled: false\nsecretStore:\n  type: IN_MEMORY\n"))
	require.Error(t, err)
	assert.True(t, dserrors.IsConfigError(err))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secretproxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  enabled: false\nsecretStore:\n  type: EPHEMERAL\n  content:\n    a_b_c: v\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "EPHEMERAL", cfg.SecretStore.Type)
	assert.Equal(t, map[string]interface{}{"a_b_c": "v"}, cfg.SecretStore.Config["content"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var ce dserrors.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "path", ce.Field)
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "IN_MEMORY", cfg.SecretStore.Type)
	assert.False(t, cfg.Auth.IsEnabled())
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}
