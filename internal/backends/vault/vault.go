// Package vault stores entries as fields of HashiCorp Vault KV v2 secrets.
//
// Keys follow the <env>_<tenant>_<attribute> convention: the entry
// "prod_diku_db-password" lives in field "db-password" of the secret at
// <secret_root>/prod/diku. Deleting an entry removes only its field; the
// secret itself is destroyed once no fields remain.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/systmms/secretproxy/internal/backends/props"
	dserrors "github.com/systmms/secretproxy/internal/errors"
	"github.com/systmms/secretproxy/internal/logging"
	"github.com/systmms/secretproxy/pkg/backend"
)

const (
	DefaultSecretRoot = "secret"
	DefaultTimeout    = 30 * time.Second
)

// Config holds Vault-specific configuration
type Config struct {
	Address    string
	Token      string
	Namespace  string
	SecretRoot string
	EnableSSL  bool
	CACert     string // Path to CA certificate
	ClientCert string // Path to client certificate
	ClientKey  string // Path to client key
	TLSSkip    bool   // Skip TLS verification (not recommended)
	Timeout    time.Duration
}

// KVClient is the subset of *api.KVv2 used by the backend
type KVClient interface {
	Get(ctx context.Context, secretPath string) (*api.KVSecret, error)
	Put(ctx context.Context, secretPath string, data map[string]interface{}, opts ...api.KVOption) (*api.KVSecret, error)
	DeleteMetadata(ctx context.Context, secretPath string) error
}

// Backend implements backend.SecretBackend on a KV v2 mount
type Backend struct {
	config Config
	kv     KVClient
	logger *logging.Logger

	// Field updates are read-modify-write on the whole secret, so writers
	// to the same path are serialised.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option is a functional option for configuring the backend
type Option func(*Backend)

// WithKVClient sets a custom KV client (for testing)
func WithKVClient(kv KVClient) Option {
	return func(b *Backend) {
		b.kv = kv
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// ParseConfig reads Vault settings from the secretStore properties, then
// applies the standard VAULT_* environment overrides. address and token
// are required.
func ParseConfig(configMap map[string]interface{}) (Config, error) {
	config := Config{
		Address:    props.String(configMap, "address"),
		Token:      props.String(configMap, "token"),
		Namespace:  props.String(configMap, "namespace"),
		SecretRoot: props.StringDefault(configMap, "secret_root", DefaultSecretRoot),
		CACert:     props.String(configMap, "ca_cert"),
		ClientCert: props.String(configMap, "client_cert"),
		ClientKey:  props.String(configMap, "client_key"),
		Timeout:    DefaultTimeout,
	}

	var err error
	if config.EnableSSL, err = props.BoolDefault(configMap, "enable_ssl", false); err != nil {
		return Config{}, dserrors.ConfigError{Field: "secretStore.enable_ssl", Message: err.Error()}
	}
	if config.TLSSkip, err = props.BoolDefault(configMap, "tls_skip", false); err != nil {
		return Config{}, dserrors.ConfigError{Field: "secretStore.tls_skip", Message: err.Error()}
	}

	// Override with environment variables
	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		config.Address = addr
	}
	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		config.Token = token
	}
	if namespace := os.Getenv("VAULT_NAMESPACE"); namespace != "" {
		config.Namespace = namespace
	}
	if caCert := os.Getenv("VAULT_CACERT"); caCert != "" {
		config.CACert = caCert
	}
	if tlsSkip := os.Getenv("VAULT_SKIP_VERIFY"); tlsSkip == "1" || strings.ToLower(tlsSkip) == "true" {
		config.TLSSkip = true
	}

	if config.Address == "" {
		return Config{}, dserrors.MissingProperty(string(backend.TypeVault), "address")
	}
	if config.Token == "" {
		return Config{}, dserrors.ConfigError{
			Field:      "secretStore.token",
			Message:    "VAULT requires 'token'",
			Suggestion: "Set secretStore.token or export VAULT_TOKEN",
		}
	}

	return config, nil
}

// New creates a VAULT backend from the secretStore properties.
func New(configMap map[string]interface{}, opts ...Option) (*Backend, error) {
	config, err := ParseConfig(configMap)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		config: config,
		logger: logging.Discard(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.kv == nil {
		client, err := newAPIClient(config)
		if err != nil {
			return nil, err
		}
		b.kv = client.KVv2(config.SecretRoot)
	}

	return b, nil
}

func newAPIClient(config Config) (*api.Client, error) {
	apiConfig := api.DefaultConfig()
	if apiConfig.Error != nil {
		return nil, fmt.Errorf("failed to read vault environment: %w", apiConfig.Error)
	}
	apiConfig.Address = config.Address
	apiConfig.Timeout = config.Timeout

	if config.EnableSSL || config.CACert != "" || config.ClientCert != "" || config.TLSSkip {
		tlsConfig := &api.TLSConfig{
			CACert:     config.CACert,
			ClientCert: config.ClientCert,
			ClientKey:  config.ClientKey,
			Insecure:   config.TLSSkip,
		}
		if err := apiConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, dserrors.ConfigError{
				Field:      "secretStore.ca_cert",
				Message:    fmt.Sprintf("invalid Vault TLS settings: %v", err),
				Suggestion: "Check that ca_cert, client_cert and client_key point to readable PEM files",
			}
		}
	}

	client, err := api.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(config.Token)
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}
	return client, nil
}

// Name returns the backend name
func (b *Backend) Name() string {
	return "vault"
}

// Type returns VAULT
func (b *Backend) Type() backend.Type {
	return backend.TypeVault
}

// DeletePolicy reports emulated deletion: the field is removed from the
// secret by rewriting it.
func (b *Backend) DeletePolicy() backend.DeletePolicy {
	return backend.DeleteEmulated
}

// address is a parsed <env>_<tenant>_<attribute> key
type address struct {
	env, tenant, attr string
}

func (a address) path() string {
	return a.env + "/" + a.tenant
}

func parseKey(key string) (address, error) {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return address{}, &backend.InvalidKeyError{
			Backend: "vault",
			Key:     key,
			Reason:  "must have the form <env>_<tenant>_<attribute>",
		}
	}
	return address{env: parts[0], tenant: parts[1], attr: parts[2]}, nil
}

func (b *Backend) pathLock(path string) *sync.Mutex {
	b.locksMu.Lock()
	defer b.locksMu.Unlock()
	l, ok := b.locks[path]
	if !ok {
		l = &sync.Mutex{}
		b.locks[path] = l
	}
	return l
}

// Get returns the attribute's value, or a *backend.NotFoundError when the
// secret or the attribute is missing.
func (b *Backend) Get(ctx context.Context, key string) (string, error) {
	addr, err := parseKey(key)
	if err != nil {
		return "", err
	}
	b.logger.Debug("Fetching secret from Vault path: %s/%s, field: %s", b.config.SecretRoot, addr.path(), addr.attr)

	data, err := b.read(ctx, addr.path())
	if err != nil {
		return "", b.wrap("read", addr.path(), err)
	}

	raw, ok := data[addr.attr]
	if !ok || raw == nil {
		return "", &backend.NotFoundError{
			Backend: b.Name(),
			Key:     key,
			Message: fmt.Sprintf("Attribute: %s not set for %s", addr.attr, addr.path()),
		}
	}
	return stringify(raw)
}

// Set writes the attribute, preserving the secret's other fields.
func (b *Backend) Set(ctx context.Context, key, value string) error {
	addr, err := parseKey(key)
	if err != nil {
		return err
	}

	lock := b.pathLock(addr.path())
	lock.Lock()
	defer lock.Unlock()

	data, err := b.read(ctx, addr.path())
	if err != nil {
		return b.wrap("read", addr.path(), err)
	}
	data[addr.attr] = value

	if _, err := b.kv.Put(ctx, addr.path(), data); err != nil {
		return b.wrap("write", addr.path(), err)
	}
	return nil
}

// Delete removes the attribute from its secret. When it was the last
// attribute the secret's metadata and all versions are deleted.
func (b *Backend) Delete(ctx context.Context, key string) error {
	addr, err := parseKey(key)
	if err != nil {
		return err
	}

	lock := b.pathLock(addr.path())
	lock.Lock()
	defer lock.Unlock()

	data, err := b.read(ctx, addr.path())
	if err != nil {
		return b.wrap("read", addr.path(), err)
	}
	if _, ok := data[addr.attr]; !ok {
		return nil
	}
	delete(data, addr.attr)

	if len(data) == 0 {
		if err := b.kv.DeleteMetadata(ctx, addr.path()); err != nil && !isNotFound(err) {
			return b.wrap("delete", addr.path(), err)
		}
		return nil
	}

	if _, err := b.kv.Put(ctx, addr.path(), data); err != nil {
		return b.wrap("write", addr.path(), err)
	}
	return nil
}

// read returns a copy of the secret's fields; a missing secret reads as empty.
func (b *Backend) read(ctx context.Context, path string) (map[string]interface{}, error) {
	secret, err := b.kv.Get(ctx, path)
	if err != nil {
		if isNotFound(err) {
			return map[string]interface{}{}, nil
		}
		return nil, err
	}

	data := make(map[string]interface{})
	if secret != nil {
		for k, v := range secret.Data {
			data[k] = v
		}
	}
	return data, nil
}

func (b *Backend) wrap(op, path string, err error) error {
	return dserrors.UserError{
		Message:    fmt.Sprintf("Vault %s failed at %s/%s", op, b.config.SecretRoot, path),
		Suggestion: dserrors.BackendSuggestion(string(backend.TypeVault), err),
		Err:        err,
	}
}

func isNotFound(err error) bool {
	if errors.Is(err, api.ErrSecretNotFound) {
		return true
	}
	var apiErr *api.ResponseError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// stringify renders a KV field as the entry value
func stringify(fieldValue interface{}) (string, error) {
	switch v := fieldValue.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.Number:
		return v.String(), nil
	case int, int32, int64:
		return fmt.Sprintf("%d", v), nil
	case float32, float64:
		return fmt.Sprintf("%g", v), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		// Convert to JSON for complex types
		jsonData, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to convert field value to string: %w", err)
		}
		return string(jsonData), nil
	}
}
