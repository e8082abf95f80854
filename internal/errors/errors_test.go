package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/systmms/secretproxy/internal/errors"
)

// TestUserErrorFormatting verifies UserError displays properly
func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.UserError{
		Message:    "Operation failed",
		Details:    "Connection timeout",
		Suggestion: "Check network connectivity",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "Operation failed")
	assert.Contains(t, errMsg, "Details: Connection timeout")
	assert.Contains(t, errMsg, "Try: Check network connectivity")
}

func TestUserErrorFallsBackToCause(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("dial tcp: connection refused")
	err := errors.UserError{Err: cause}

	assert.Equal(t, cause.Error(), err.Error())
	assert.ErrorIs(t, err, cause)
}

// TestConfigErrorFormatting verifies ConfigError displays with context
func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{
		Field:      "secretStore.address",
		Value:      "invalid-url",
		Message:    "Invalid URL format",
		Suggestion: "Use format: http://hostname:port",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "secretStore.address")
	assert.Contains(t, errMsg, "invalid-url")
	assert.Contains(t, errMsg, "Invalid URL format")
	assert.Contains(t, errMsg, "http://hostname:port")
}

func TestMissingProperty(t *testing.T) {
	t.Parallel()

	err := errors.MissingProperty("VAULT", "token")

	assert.Equal(t, "secretStore.token", err.Field)
	assert.Contains(t, err.Error(), "VAULT requires 'token'")
	assert.True(t, errors.IsConfigError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, errors.IsConfigError(stderrors.New("plain")))
}

func TestBackendSuggestion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		backendType string
		err         error
		contains    string
	}{
		{"ssm access denied", "AWS_SSM", fmt.Errorf("AccessDeniedException: nope"), "ssm:PutParameter"},
		{"ssm throttled", "AWS_SSM", fmt.Errorf("ThrottlingException"), "throttled"},
		{"vault forbidden", "VAULT", fmt.Errorf("Code: 403. permission denied"), "token policy"},
		{"vault mount", "VAULT", fmt.Errorf("no matching mount"), "secret_root"},
		{"azure forbidden", "AZURE_KEY_VAULT", fmt.Errorf("403 Forbidden"), "access policies"},
		{"generic timeout", "IN_MEMORY", fmt.Errorf("i/o timeout"), "timed out"},
		{"generic refused", "VAULT", fmt.Errorf("connection refused"), "Unable to connect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, errors.BackendSuggestion(tt.backendType, tt.err), tt.contains)
		})
	}

	assert.Empty(t, errors.BackendSuggestion("VAULT", nil))
	assert.Empty(t, errors.BackendSuggestion("EPHEMERAL", fmt.Errorf("odd")))
}

func TestBackendErrorWrapsCause(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("AccessDeniedException")
	err := errors.BackendError("AWS_SSM", "get", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "AWS_SSM backend error during get")
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, errors.IsRetryable(nil))
	assert.True(t, errors.IsRetryable(fmt.Errorf("Throttling: Rate exceeded")))
	assert.True(t, errors.IsRetryable(fmt.Errorf("read: connection reset by peer")))
	assert.False(t, errors.IsRetryable(fmt.Errorf("ParameterNotFound")))
}

func TestSimplifyError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.SimplifyError(nil))

	ce := errors.ConfigError{Message: "bad"}
	assert.Equal(t, ce, errors.SimplifyError(ce))

	yamlErr := errors.SimplifyError(fmt.Errorf("load: %w", stderrors.New("yaml: line 3: mapping values are not allowed")))
	assert.True(t, errors.IsConfigError(yamlErr))

	inUse := errors.SimplifyError(stderrors.New("listen tcp :8081: bind: address already in use"))
	var ue errors.UserError
	assert.ErrorAs(t, inUse, &ue)
	assert.Contains(t, ue.Suggestion, "server.address")

	other := stderrors.New("something else")
	assert.Equal(t, other, errors.SimplifyError(other))
}
