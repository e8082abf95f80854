// Package awsssm stores entries as SecureString parameters in AWS Systems
// Manager Parameter Store.
package awsssm

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/systmms/secretproxy/internal/backends/awsutil"
	"github.com/systmms/secretproxy/internal/backends/props"
	dserrors "github.com/systmms/secretproxy/internal/errors"
	"github.com/systmms/secretproxy/internal/logging"
	"github.com/systmms/secretproxy/pkg/backend"
)

// SSMClientAPI is the subset of the SSM client used by the backend.
// This allows for mocking in tests
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
}

// Backend implements backend.SecretBackend on Parameter Store
type Backend struct {
	client SSMClientAPI
	logger *logging.Logger
	config Config
}

// Config holds SSM-specific configuration
type Config struct {
	AWS             awsutil.Config
	ParameterPrefix string
	KMSKeyID        string
}

// Option is a functional option for configuring the backend
type Option func(*Backend)

// WithClient sets a custom SSM client (for testing)
func WithClient(client SSMClientAPI) Option {
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

// New creates an AWS_SSM backend from the secretStore properties.
func New(ctx context.Context, configMap map[string]interface{}, opts ...Option) (*Backend, error) {
	awsCfg, err := awsutil.ParseConfig(string(backend.TypeAWSSSM), configMap)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		logger: logging.Discard(),
		config: Config{
			AWS:             awsCfg,
			ParameterPrefix: props.String(configMap, "parameter_prefix"),
			KMSKeyID:        props.String(configMap, "kms_key_id"),
		},
	}

	// Apply options (allows mock client injection)
	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		cfg, err := awsutil.Load(ctx, awsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSM client: %w", err)
		}
		var clientOpts []func(*ssm.Options)
		if awsCfg.Endpoint != "" {
			endpoint := awsCfg.Endpoint
			clientOpts = append(clientOpts, func(o *ssm.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		b.client = ssm.NewFromConfig(cfg, clientOpts...)
	}

	return b, nil
}

// Name returns the backend name
func (b *Backend) Name() string {
	return "aws-ssm"
}

// Type returns AWS_SSM
func (b *Backend) Type() backend.Type {
	return backend.TypeAWSSSM
}

// DeletePolicy reports native deletion via DeleteParameter.
func (b *Backend) DeletePolicy() backend.DeletePolicy {
	return backend.DeleteNative
}

func (b *Backend) parameterName(key string) string {
	return b.config.ParameterPrefix + key
}

// Get fetches and decrypts a parameter. A missing parameter yields "".
func (b *Backend) Get(ctx context.Context, key string) (string, error) {
	name := b.parameterName(key)
	b.logger.Debug("Fetching parameter from SSM: %s", name)

	result, err := b.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if isParameterNotFound(err) {
			return "", nil
		}
		return "", b.wrap("get", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", nil
	}
	return *result.Parameter.Value, nil
}

// Set writes value as a SecureString parameter, overwriting any previous value.
func (b *Backend) Set(ctx context.Context, key, value string) error {
	name := b.parameterName(key)
	b.logger.Debug("Writing parameter to SSM: %s", name)

	input := &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	}
	if b.config.KMSKeyID != "" {
		input.KeyId = aws.String(b.config.KMSKeyID)
	}

	if _, err := b.client.PutParameter(ctx, input); err != nil {
		return b.wrap("put", name, err)
	}
	return nil
}

// Delete removes the parameter. A parameter that is already gone is not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	name := b.parameterName(key)
	b.logger.Debug("Deleting parameter from SSM: %s", name)

	_, err := b.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{
		Name: aws.String(name),
	})
	if err != nil && !isParameterNotFound(err) {
		return b.wrap("delete", name, err)
	}
	return nil
}

func (b *Backend) wrap(op, name string, err error) error {
	return dserrors.UserError{
		Message:    fmt.Sprintf("SSM %s failed for parameter %s", op, name),
		Suggestion: dserrors.BackendSuggestion(string(backend.TypeAWSSSM), err),
		Err:        err,
	}
}

// isParameterNotFound checks if the error is a parameter not found error
func isParameterNotFound(err error) bool {
	var pnf *types.ParameterNotFound
	if errors.As(err, &pnf) {
		return true
	}
	return awsutil.ErrorCode(err) == "ParameterNotFound"
}
