// Package gcpsecretmanager stores each entry as a Google Cloud Secret
// Manager secret; writes add a new version and reads access "latest".
package gcpsecretmanager

import (
	"context"
	"fmt"
	"os"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/systmms/secretproxy/internal/backends/props"
	dserrors "github.com/systmms/secretproxy/internal/errors"
	"github.com/systmms/secretproxy/internal/logging"
	"github.com/systmms/secretproxy/pkg/backend"
)

// ClientAPI is the subset of *secretmanager.Client used by the backend
type ClientAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest, opts ...gax.CallOption) error
	Close() error
}

// Config holds GCP Secret Manager-specific configuration
type Config struct {
	ProjectID             string
	ServiceAccountKeyPath string
	ImpersonateAccount    string
	Endpoint              string
}

// Backend implements backend.SecretBackend on Secret Manager
type Backend struct {
	client ClientAPI
	logger *logging.Logger
	config Config
}

// Option is a functional option for configuring the backend
type Option func(*Backend)

// WithClient sets a custom client (for testing)
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

// New creates a GCP_SECRET_MANAGER backend. project_id is required and
// falls back to GOOGLE_CLOUD_PROJECT.
func New(ctx context.Context, configMap map[string]interface{}, opts ...Option) (*Backend, error) {
	config := Config{
		ProjectID:             props.String(configMap, "project_id"),
		ServiceAccountKeyPath: props.String(configMap, "service_account_key_path"),
		ImpersonateAccount:    props.String(configMap, "impersonate_service_account"),
		Endpoint:              props.String(configMap, "endpoint"),
	}
	if config.ProjectID == "" {
		config.ProjectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if config.ProjectID == "" {
		return nil, dserrors.ConfigError{
			Field:      "secretStore.project_id",
			Message:    "GCP_SECRET_MANAGER requires 'project_id'",
			Suggestion: "Set project_id in config or GOOGLE_CLOUD_PROJECT environment variable",
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
		client, err := createClient(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
		}
		b.client = client
	}

	return b, nil
}

func createClient(ctx context.Context, config Config) (*secretmanager.Client, error) {
	var clientOptions []option.ClientOption

	if config.ServiceAccountKeyPath != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(config.ServiceAccountKeyPath))
	}
	if config.ImpersonateAccount != "" {
		ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
			TargetPrincipal: config.ImpersonateAccount,
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create impersonated credentials: %w", err)
		}
		clientOptions = append(clientOptions, option.WithTokenSource(ts))
	}
	if config.Endpoint != "" {
		clientOptions = append(clientOptions, option.WithEndpoint(config.Endpoint))
	}

	return secretmanager.NewClient(ctx, clientOptions...)
}

// Name returns the backend name
func (b *Backend) Name() string {
	return "gcp-secretmanager"
}

// Type returns GCP_SECRET_MANAGER
func (b *Backend) Type() backend.Type {
	return backend.TypeGCPSecretManager
}

// DeletePolicy reports native deletion via DeleteSecret.
func (b *Backend) DeletePolicy() backend.DeletePolicy {
	return backend.DeleteNative
}

// Close releases the gRPC connection
func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) secretName(key string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", b.config.ProjectID, key)
}

// Get accesses the latest version. A missing secret yields "".
func (b *Backend) Get(ctx context.Context, key string) (string, error) {
	name := b.secretName(key) + "/versions/latest"
	b.logger.Debug("Accessing GCP secret: %s", name)

	resp, err := b.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", nil
		}
		return "", b.wrap("access", name, err)
	}
	if resp.GetPayload() == nil {
		return "", nil
	}
	return string(resp.GetPayload().GetData()), nil
}

// Set adds a new version, creating the secret with automatic replication
// on first write.
func (b *Backend) Set(ctx context.Context, key, value string) error {
	parent := b.secretName(key)
	add := &secretmanagerpb.AddSecretVersionRequest{
		Parent:  parent,
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}

	_, err := b.client.AddSecretVersion(ctx, add)
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return b.wrap("add version", parent, err)
	}

	_, err = b.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   "projects/" + b.config.ProjectID,
		SecretId: key,
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return b.wrap("create", parent, err)
	}

	if _, err := b.client.AddSecretVersion(ctx, add); err != nil {
		return b.wrap("add version", parent, err)
	}
	return nil
}

// Delete removes the secret and all of its versions.
func (b *Backend) Delete(ctx context.Context, key string) error {
	name := b.secretName(key)
	err := b.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: name})
	if err != nil && status.Code(err) != codes.NotFound {
		return b.wrap("delete", name, err)
	}
	return nil
}

func (b *Backend) wrap(op, name string, err error) error {
	return dserrors.UserError{
		Message:    fmt.Sprintf("GCP Secret Manager %s failed for %s", op, name),
		Suggestion: dserrors.BackendSuggestion(string(backend.TypeGCPSecretManager), err),
		Err:        err,
	}
}
