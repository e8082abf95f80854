package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/secretproxy/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secretproxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand(BuildInfo{Version: "1.2.3", Commit: "abc123", Date: "2026-01-01"})
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(append(args, "--no-color"))

	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, context.Background(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "secretproxy 1.2.3")
	assert.Contains(t, out, "commit: abc123")
}

func TestBackendsCommand(t *testing.T) {
	out, err := execute(t, context.Background(), "backends")
	require.NoError(t, err)

	for _, want := range []string{"TYPE", "AWS_SSM", "VAULT", "emulated", "AZURE_KEY_VAULT", "IN_MEMORY"} {
		assert.Contains(t, out, want)
	}
}

func TestCheckCommandEphemeral(t *testing.T) {
	path := writeConfig(t, `
auth:
  enabled: false
secretStore:
  type: EPHEMERAL
  content:
    dev_app_db: pw
`)

	out, err := execute(t, context.Background(), "check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "Backend EPHEMERAL initialised (delete policy: native)")
	assert.Contains(t, out, "Backend reachable")
}

func TestCheckCommandConfigError(t *testing.T) {
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("VAULT_TOKEN", "")

	path := writeConfig(t, `
auth:
  enabled: false
secretStore:
  type: VAULT
  address: http://127.0.0.1:8200
`)

	_, err := execute(t, context.Background(), "check", "--config", path)
	require.Error(t, err)
	assert.True(t, dserrors.IsConfigError(err))
}

func TestCheckCommandMissingFile(t *testing.T) {
	_, err := execute(t, context.Background(), "check", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, dserrors.IsConfigError(err))
}

func TestServeCommandStopsOnCancel(t *testing.T) {
	path := writeConfig(t, `
server:
  address: 127.0.0.1:0
  shutdown_timeout: 1s
auth:
  enabled: false
secretStore:
  type: IN_MEMORY
metrics:
  enabled: false
`)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := execute(t, ctx, "serve", "--config", path)
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}

func TestServeCommandInvalidConfig(t *testing.T) {
	path := writeConfig(t, "secretStore:\n  type: NOPE\nauth:\n  enabled: false\n")

	_, err := execute(t, context.Background(), "serve", "--config", path)
	require.Error(t, err)
	assert.True(t, dserrors.IsConfigError(err))
}
