// Package backends builds the configured secret backend.
package backends

import (
	"context"
	"fmt"
	"sort"

	"github.com/systmms/secretproxy/internal/backends/awssecretsmanager"
	"github.com/systmms/secretproxy/internal/backends/awsssm"
	"github.com/systmms/secretproxy/internal/backends/azurekeyvault"
	"github.com/systmms/secretproxy/internal/backends/gcpsecretmanager"
	"github.com/systmms/secretproxy/internal/backends/memory"
	"github.com/systmms/secretproxy/internal/backends/vault"
	"github.com/systmms/secretproxy/internal/config"
	dserrors "github.com/systmms/secretproxy/internal/errors"
	"github.com/systmms/secretproxy/internal/logging"
	"github.com/systmms/secretproxy/pkg/backend"
)

// Factory creates a backend from the secretStore properties.
type Factory func(ctx context.Context, props map[string]interface{}, logger *logging.Logger) (backend.SecretBackend, error)

// Registry maps backend types to factories.
type Registry struct {
	factories map[backend.Type]Factory
}

// NewRegistry creates a registry with every built-in backend.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[backend.Type]Factory),
	}

	r.Register(backend.TypeInMemory, newInMemory)
	r.Register(backend.TypeEphemeral, newEphemeral)
	r.Register(backend.TypeAWSSSM, newAWSSSM)
	r.Register(backend.TypeAWSSecretsManager, newAWSSecretsManager)
	r.Register(backend.TypeVault, newVault)
	r.Register(backend.TypeGCPSecretManager, newGCPSecretManager)
	r.Register(backend.TypeAzureKeyVault, newAzureKeyVault)

	return r
}

// Register adds or replaces the factory for t.
func (r *Registry) Register(t backend.Type, f Factory) {
	r.factories[t] = f
}

// Create builds the backend selected by cfg. Construction failures are
// returned as ConfigError or UserError and abort startup.
func (r *Registry) Create(ctx context.Context, cfg config.SecretStoreConfig, logger *logging.Logger) (backend.SecretBackend, error) {
	t, err := backend.ParseType(cfg.Type)
	if err != nil {
		return nil, dserrors.ConfigError{
			Field:      "secretStore.type",
			Value:      cfg.Type,
			Message:    err.Error(),
			Suggestion: fmt.Sprintf("Supported types: %v", r.SupportedTypes()),
		}
	}

	factory, ok := r.factories[t]
	if !ok {
		return nil, dserrors.ConfigError{
			Field:   "secretStore.type",
			Value:   cfg.Type,
			Message: "no backend registered for this type",
		}
	}

	if logger == nil {
		logger = logging.Discard()
	}
	props := cfg.Config
	if props == nil {
		props = map[string]interface{}{}
	}

	b, err := factory(ctx, props, logger)
	if err != nil {
		if dserrors.IsConfigError(err) {
			return nil, err
		}
		return nil, dserrors.UserError{
			Message:    fmt.Sprintf("Failed to initialise %s backend", t),
			Suggestion: dserrors.BackendSuggestion(string(t), err),
			Err:        err,
		}
	}

	logger.Debug("Secret backend ready: %s (%s, delete %s)", b.Name(), b.Type(), b.DeletePolicy())
	return b, nil
}

// SupportedTypes lists the registered types in sorted order.
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, string(t))
	}
	sort.Strings(types)
	return types
}

// IsSupported reports whether a factory is registered for the type name.
func (r *Registry) IsSupported(name string) bool {
	t, err := backend.ParseType(name)
	if err != nil {
		return false
	}
	_, ok := r.factories[t]
	return ok
}

func newInMemory(_ context.Context, _ map[string]interface{}, _ *logging.Logger) (backend.SecretBackend, error) {
	return memory.NewInMemory(), nil
}

func newEphemeral(_ context.Context, props map[string]interface{}, _ *logging.Logger) (backend.SecretBackend, error) {
	b, err := memory.NewEphemeral(props)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newAWSSSM(ctx context.Context, props map[string]interface{}, logger *logging.Logger) (backend.SecretBackend, error) {
	b, err := awsssm.New(ctx, props, awsssm.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newAWSSecretsManager(ctx context.Context, props map[string]interface{}, logger *logging.Logger) (backend.SecretBackend, error) {
	b, err := awssecretsmanager.New(ctx, props, awssecretsmanager.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newVault(_ context.Context, props map[string]interface{}, logger *logging.Logger) (backend.SecretBackend, error) {
	b, err := vault.New(props, vault.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newGCPSecretManager(ctx context.Context, props map[string]interface{}, logger *logging.Logger) (backend.SecretBackend, error) {
	b, err := gcpsecretmanager.New(ctx, props, gcpsecretmanager.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newAzureKeyVault(_ context.Context, props map[string]interface{}, logger *logging.Logger) (backend.SecretBackend, error) {
	b, err := azurekeyvault.New(props, azurekeyvault.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return b, nil
}
