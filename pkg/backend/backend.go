// Package backend defines the contract every secret store behind the
// proxy implements.
//
// A SecretBackend is a uniform Get/Set/Delete capability over a
// heterogeneous store: AWS Systems Manager Parameter Store, HashiCorp Vault
// KV v2, AWS Secrets Manager, GCP Secret Manager, Azure Key Vault or an
// in-process map. Exactly one backend is constructed per process, selected
// by static configuration at startup, and it is never swapped at runtime.
//
// # Absence
//
// A missing key is reported in one of two ways and callers must accept
// both:
//   - Get returns ("", nil)
//   - Get returns a *NotFoundError (see IsNotFound)
//
// Any other error is a backend failure and is surfaced to the caller
// unchanged.
//
// # Deletion
//
// Delete is idempotent. Deleting a key that does not exist succeeds. Each
// backend declares through DeletePolicy whether the store removes the entry
// itself (DeleteNative) or whether deletion is emulated on top of the
// store's write primitives (DeleteEmulated), for example by removing one
// field from a multi-field secret.
//
// # Threading and Concurrency
//
// Implementations must be safe for concurrent use. The entry service
// calls a backend from a bounded pool of goroutines and never serialises
// calls for distinct keys.
//
// # Security Considerations
//
// Implementations must never log secret values (wrap them in
// logging.Secret) and must honour context cancellation and deadlines.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SecretBackend is the storage capability the entry service delegates to.
type SecretBackend interface {
	// Name returns a human-readable identifier used in logs and metrics.
	Name() string

	// Type returns the configured variant.
	Type() Type

	// Get returns the value stored under key. A missing key yields either
	// an empty string with a nil error or a *NotFoundError.
	Get(ctx context.Context, key string) (string, error)

	// Set creates or overwrites the value stored under key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePolicy reports how Delete is realised by the store.
	DeletePolicy() DeletePolicy
}

// Closer is implemented by backends holding network clients that should
// be released on shutdown.
type Closer interface {
	Close() error
}

// DeletePolicy describes how a backend realises Delete.
type DeletePolicy int

const (
	// DeleteNative means the store itself removes the entry.
	DeleteNative DeletePolicy = iota
	// DeleteEmulated means deletion is built from other store primitives.
	DeleteEmulated
)

func (p DeletePolicy) String() string {
	switch p {
	case DeleteNative:
		return "native"
	case DeleteEmulated:
		return "emulated"
	default:
		return fmt.Sprintf("DeletePolicy(%d)", int(p))
	}
}

// Type identifies a backend variant.
type Type string

const (
	TypeAWSSSM            Type = "AWS_SSM"
	TypeVault             Type = "VAULT"
	TypeEphemeral         Type = "EPHEMERAL"
	TypeInMemory          Type = "IN_MEMORY"
	TypeAWSSecretsManager Type = "AWS_SECRETS_MANAGER"
	TypeGCPSecretManager  Type = "GCP_SECRET_MANAGER"
	TypeAzureKeyVault     Type = "AZURE_KEY_VAULT"
)

// Types lists every supported variant in a stable order.
func Types() []Type {
	return []Type{
		TypeAWSSSM,
		TypeVault,
		TypeEphemeral,
		TypeInMemory,
		TypeAWSSecretsManager,
		TypeGCPSecretManager,
		TypeAzureKeyVault,
	}
}

// ParseType maps a configured store type to a Type. Matching ignores case
// and treats '-' like '_', so "aws-ssm" and "AWS_SSM" are equivalent.
func ParseType(s string) (Type, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, t := range Types() {
		if string(t) == norm {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown secret store type %q", s)
}

// NotFoundError reports that a key does not exist in the store.
type NotFoundError struct {
	Backend string
	Key     string
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s: key %q not found", e.Backend, e.Key)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// InvalidKeyError reports a key the store cannot address. It is a caller
// mistake, not a store failure.
type InvalidKeyError struct {
	Backend string
	Key     string
	Reason  string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("%s: invalid key %q: %s", e.Backend, e.Key, e.Reason)
}

// IsInvalidKey reports whether err is or wraps an *InvalidKeyError.
func IsInvalidKey(err error) bool {
	var ik *InvalidKeyError
	return errors.As(err, &ik)
}
