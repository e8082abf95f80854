// Package awssecretsmanager stores each entry as a plain-string secret in
// AWS Secrets Manager.
package awssecretsmanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/systmms/secretproxy/internal/backends/awsutil"
	"github.com/systmms/secretproxy/internal/backends/props"
	dserrors "github.com/systmms/secretproxy/internal/errors"
	"github.com/systmms/secretproxy/internal/logging"
	"github.com/systmms/secretproxy/pkg/backend"
)

// SecretsManagerClientAPI is the subset of the Secrets Manager client used by the backend
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// Backend implements backend.SecretBackend on Secrets Manager
type Backend struct {
	client     SecretsManagerClientAPI
	logger     *logging.Logger
	namePrefix string
	kmsKeyID   string
}

// Option is a functional option for configuring the backend
type Option func(*Backend)

// WithClient sets a custom Secrets Manager client (for testing)
func WithClient(client SecretsManagerClientAPI) Option {
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

// New creates an AWS_SECRETS_MANAGER backend from the secretStore properties.
func New(ctx context.Context, configMap map[string]interface{}, opts ...Option) (*Backend, error) {
	awsCfg, err := awsutil.ParseConfig(string(backend.TypeAWSSecretsManager), configMap)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		logger:     logging.Discard(),
		namePrefix: props.String(configMap, "name_prefix"),
		kmsKeyID:   props.String(configMap, "kms_key_id"),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		cfg, err := awsutil.Load(ctx, awsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create Secrets Manager client: %w", err)
		}
		var clientOpts []func(*secretsmanager.Options)
		if awsCfg.Endpoint != "" {
			endpoint := awsCfg.Endpoint
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		b.client = secretsmanager.NewFromConfig(cfg, clientOpts...)
	}

	return b, nil
}

// Name returns the backend name
func (b *Backend) Name() string {
	return "aws-secretsmanager"
}

// Type returns AWS_SECRETS_MANAGER
func (b *Backend) Type() backend.Type {
	return backend.TypeAWSSecretsManager
}

// DeletePolicy reports native deletion via DeleteSecret.
func (b *Backend) DeletePolicy() backend.DeletePolicy {
	return backend.DeleteNative
}

func (b *Backend) secretName(key string) string {
	return b.namePrefix + key
}

// Get returns the current SecretString. A missing secret yields "".
func (b *Backend) Get(ctx context.Context, key string) (string, error) {
	name := b.secretName(key)
	b.logger.Debug("Fetching secret from Secrets Manager: %s", name)

	result, err := b.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", b.wrap("get", name, err)
	}

	switch {
	case result.SecretString != nil:
		return *result.SecretString, nil
	case result.SecretBinary != nil:
		return string(result.SecretBinary), nil
	default:
		return "", nil
	}
}

// Set writes a new version of the secret, creating it on first write.
func (b *Backend) Set(ctx context.Context, key, value string) error {
	name := b.secretName(key)
	b.logger.Debug("Writing secret to Secrets Manager: %s", name)

	_, err := b.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return b.wrap("put", name, err)
	}

	input := &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(value),
	}
	if b.kmsKeyID != "" {
		input.KmsKeyId = aws.String(b.kmsKeyID)
	}
	if _, err := b.client.CreateSecret(ctx, input); err != nil {
		return b.wrap("create", name, err)
	}
	return nil
}

// Delete removes the secret immediately, without a recovery window.
func (b *Backend) Delete(ctx context.Context, key string) error {
	name := b.secretName(key)
	b.logger.Debug("Deleting secret from Secrets Manager: %s", name)

	_, err := b.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(name),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isNotFound(err) {
		return b.wrap("delete", name, err)
	}
	return nil
}

func (b *Backend) wrap(op, name string, err error) error {
	return dserrors.UserError{
		Message:    fmt.Sprintf("Secrets Manager %s failed for secret %s", op, name),
		Suggestion: dserrors.BackendSuggestion(string(backend.TypeAWSSecretsManager), err),
		Err:        err,
	}
}

func isNotFound(err error) bool {
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return true
	}
	return awsutil.ErrorCode(err) == "ResourceNotFoundException"
}
