// Package azurekeyvault stores each entry as an Azure Key Vault secret.
//
// Key Vault secret names only allow alphanumerics and dashes, so '_' in a
// key is stored as '-'. Keys differing only in that character therefore
// share a secret.
package azurekeyvault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/systmms/secretproxy/internal/backends/props"
	dserrors "github.com/systmms/secretproxy/internal/errors"
	"github.com/systmms/secretproxy/internal/logging"
	"github.com/systmms/secretproxy/pkg/backend"
)

// ClientAPI is the subset of *azsecrets.Client used by the backend
type ClientAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error)
}

// Config holds Azure Key Vault-specific configuration
type Config struct {
	VaultURL           string
	TenantID           string
	ClientID           string
	ClientSecret       string
	UseManagedIdentity bool
	UserAssignedID     string // For user-assigned managed identity
}

// Backend implements backend.SecretBackend on Key Vault
type Backend struct {
	client ClientAPI
	logger *logging.Logger
	config Config
}

// Option is a functional option for configuring the backend
type Option func(*Backend)

// WithClient sets a custom Key Vault client (for testing)
func WithClient(client ClientAPI) Option {
	return func(b *Backend) {
		b.client = client
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates an AZURE_KEY_VAULT backend. vault_url is required.
func New(configMap map[string]interface{}, opts ...Option) (*Backend, error) {
	config := Config{
		VaultURL:       props.String(configMap, "vault_url"),
		TenantID:       props.String(configMap, "tenant_id"),
		ClientID:       props.String(configMap, "client_id"),
		ClientSecret:   props.String(configMap, "client_secret"),
		UserAssignedID: props.String(configMap, "user_assigned_identity_id"),
	}
	var err error
	if config.UseManagedIdentity, err = props.BoolDefault(configMap, "use_managed_identity", false); err != nil {
		return nil, dserrors.ConfigError{Field: "secretStore.use_managed_identity", Message: err.Error()}
	}

	if config.VaultURL == "" {
		return nil, dserrors.ConfigError{
			Field:      "secretStore.vault_url",
			Message:    "AZURE_KEY_VAULT requires 'vault_url'",
			Suggestion: "Provide the Key Vault URL (e.g., https://my-vault.vault.azure.net/)",
		}
	}
	if u, err := url.Parse(config.VaultURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, dserrors.ConfigError{
			Field:      "secretStore.vault_url",
			Value:      config.VaultURL,
			Message:    "Invalid vault_url format",
			Suggestion: "Use format: https://vault-name.vault.azure.net/",
		}
	}
	if config.ClientSecret != "" && (config.TenantID == "" || config.ClientID == "") {
		return nil, dserrors.ConfigError{
			Field:   "secretStore.client_secret",
			Message: "client_secret authentication requires 'tenant_id' and 'client_id'",
		}
	}

	b := &Backend{
		logger: logging.Discard(),
		config: config,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		client, err := createClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Key Vault client: %w", err)
		}
		b.client = client
	}

	return b, nil
}

func createClient(config Config) (*azsecrets.Client, error) {
	var cred azcore.TokenCredential
	var err error

	switch {
	case config.UseManagedIdentity && config.UserAssignedID != "":
		cred, err = azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(config.UserAssignedID),
		})
	case config.UseManagedIdentity:
		cred, err = azidentity.NewManagedIdentityCredential(nil)
	case config.ClientSecret != "":
		cred, err = azidentity.NewClientSecretCredential(config.TenantID, config.ClientID, config.ClientSecret, nil)
	default:
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	return azsecrets.NewClient(config.VaultURL, cred, nil)
}

// Name returns the backend name
func (b *Backend) Name() string {
	return "azure-keyvault"
}

// Type returns AZURE_KEY_VAULT
func (b *Backend) Type() backend.Type {
	return backend.TypeAzureKeyVault
}

// DeletePolicy reports native deletion via DeleteSecret. Vaults with soft
// delete keep the secret recoverable until purged.
func (b *Backend) DeletePolicy() backend.DeletePolicy {
	return backend.DeleteNative
}

// SecretName maps an entry key to a Key Vault secret name.
func SecretName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// Get returns the latest version. A missing secret yields "".
func (b *Backend) Get(ctx context.Context, key string) (string, error) {
	name := SecretName(key)
	b.logger.Debug("Accessing Azure Key Vault secret: %s", name)

	resp, err := b.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", b.wrap("get", name, err)
	}
	if resp.Value == nil {
		return "", nil
	}
	return *resp.Value, nil
}

// Set writes a new version of the secret
func (b *Backend) Set(ctx context.Context, key, value string) error {
	name := SecretName(key)
	_, err := b.client.SetSecret(ctx, name, azsecrets.SetSecretParameters{Value: &value}, nil)
	if err != nil {
		return b.wrap("set", name, err)
	}
	return nil
}

// Delete deletes the secret. A missing secret is not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	name := SecretName(key)
	_, err := b.client.DeleteSecret(ctx, name, nil)
	if err != nil && !isNotFound(err) {
		return b.wrap("delete", name, err)
	}
	return nil
}

func (b *Backend) wrap(op, name string, err error) error {
	return dserrors.UserError{
		Message:    fmt.Sprintf("Azure Key Vault %s failed for secret %s", op, name),
		Suggestion: dserrors.BackendSuggestion(string(backend.TypeAzureKeyVault), err),
		Err:        err,
	}
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}
