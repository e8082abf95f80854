package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the operator with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context.
// Startup aborts on any ConfigError.
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// MissingProperty is the ConfigError raised when a backend is configured
// without a property it cannot work without.
func MissingProperty(backendType, field string) ConfigError {
	return ConfigError{
		Field:      "secretStore." + field,
		Message:    fmt.Sprintf("%s requires '%s'", backendType, field),
		Suggestion: fmt.Sprintf("Set secretStore.%s in the configuration file", field),
	}
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce ConfigError
	return errors.As(err, &ce)
}

// BackendError enhances backend-specific errors with context for the operator
func BackendError(backendType string, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s backend error during %s", backendType, operation),
		Suggestion: BackendSuggestion(backendType, err),
		Err:        err,
	}
}

// BackendSuggestion returns a hint based on the backend type and error text
func BackendSuggestion(backendType string, err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())

	switch backendType {
	case "AWS_SSM":
		switch {
		case strings.Contains(errStr, "accessdenied"):
			return "Check IAM permissions: ssm:GetParameter, ssm:PutParameter, ssm:DeleteParameter and kms:Decrypt"
		case strings.Contains(errStr, "invalidkeyid"):
			return "The KMS key for this SecureString parameter may not exist or you lack kms:Decrypt permission"
		case strings.Contains(errStr, "throttl"):
			return "Request was throttled by SSM. Reduce the worker pool size or request rate"
		}
	case "AWS_SECRETS_MANAGER":
		switch {
		case strings.Contains(errStr, "accessdenied"):
			return "Check IAM permissions for secretsmanager:GetSecretValue, PutSecretValue, CreateSecret and DeleteSecret"
		case strings.Contains(errStr, "throttl"):
			return "AWS rate limit exceeded. Wait a moment and try again"
		}
	case "VAULT":
		switch {
		case strings.Contains(errStr, "permission denied") || strings.Contains(errStr, "403"):
			return "Check that the Vault token policy grants read/create/update/delete on the secret root"
		case strings.Contains(errStr, "no matching mount"):
			return "Verify secretStore.secret_root names an enabled KV v2 mount"
		case strings.Contains(errStr, "sealed"):
			return "Vault is sealed. Unseal it before retrying"
		}
	case "GCP_SECRET_MANAGER":
		if strings.Contains(errStr, "permissiondenied") || strings.Contains(errStr, "permission denied") {
			return "Grant roles/secretmanager.admin (or secretAccessor + secretVersionAdder) to the service account"
		}
	case "AZURE_KEY_VAULT":
		if strings.Contains(errStr, "forbidden") || strings.Contains(errStr, "403") {
			return "Check Key Vault access policies or RBAC role assignments for get/set/delete on secrets"
		}
	}

	// Generic suggestions
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "The operation timed out. Check network connectivity or raise secretStore.timeout_ms"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and backend address"
	}

	return ""
}

// IsRetryable checks if an error is likely transient
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"throttling",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// SimplifyError turns low-level startup errors into operator-facing ones
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	var ue UserError
	if errors.As(err, &ue) {
		return err
	}
	var ce ConfigError
	if errors.As(err, &ce) {
		return err
	}

	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "address already in use") {
		return UserError{
			Message:    "Listen address is already in use",
			Suggestion: "Change server.address or stop the process holding the port",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}
