package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// FakeSSMClient is an in-memory Parameter Store
type FakeSSMClient struct {
	mu sync.Mutex

	// Parameters maps parameter names to values
	Parameters map[string]string
	// Types records the parameter type used on the last put
	Types map[string]ssmtypes.ParameterType
	// Errors maps parameter names to errors to return from any operation
	Errors map[string]error
	// Calls counts invocations per operation name
	Calls map[string]int

	GetParameterFunc    func(ctx context.Context, params *ssm.GetParameterInput) (*ssm.GetParameterOutput, error)
	PutParameterFunc    func(ctx context.Context, params *ssm.PutParameterInput) (*ssm.PutParameterOutput, error)
	DeleteParameterFunc func(ctx context.Context, params *ssm.DeleteParameterInput) (*ssm.DeleteParameterOutput, error)
}

// NewFakeSSMClient creates an empty fake
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Parameters: make(map[string]string),
		Types:      make(map[string]ssmtypes.ParameterType),
		Errors:     make(map[string]error),
		Calls:      make(map[string]int),
	}
}

// AddParameter seeds a parameter
func (f *FakeSSMClient) AddParameter(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Parameters[name] = value
	f.Types[name] = ssmtypes.ParameterTypeSecureString
}

// AddError configures an error for a parameter name
func (f *FakeSSMClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// CallCount returns how many times op was invoked
func (f *FakeSSMClient) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

func (f *FakeSSMClient) record(op, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[op]++
	return f.Errors[name]
}

// GetParameter mocks the GetParameter operation
func (f *FakeSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	name := aws.ToString(params.Name)
	if err := f.record("GetParameter", name); err != nil {
		return nil, err
	}
	if f.GetParameterFunc != nil {
		return f.GetParameterFunc(ctx, params)
	}

	f.mu.Lock()
	value, ok := f.Parameters[name]
	typ := f.Types[name]
	f.mu.Unlock()
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String(fmt.Sprintf("Parameter %s not found.", name))}
	}

	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:    params.Name,
			Value:   aws.String(value),
			Type:    typ,
			Version: 1,
		},
	}, nil
}

// PutParameter mocks the PutParameter operation
func (f *FakeSSMClient) PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	name := aws.ToString(params.Name)
	if err := f.record("PutParameter", name); err != nil {
		return nil, err
	}
	if f.PutParameterFunc != nil {
		return f.PutParameterFunc(ctx, params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.Parameters[name]; exists && !aws.ToBool(params.Overwrite) {
		return nil, &ssmtypes.ParameterAlreadyExists{Message: aws.String("The parameter already exists.")}
	}
	f.Parameters[name] = aws.ToString(params.Value)
	f.Types[name] = params.Type
	return &ssm.PutParameterOutput{Version: 1}, nil
}

// DeleteParameter mocks the DeleteParameter operation
func (f *FakeSSMClient) DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error) {
	name := aws.ToString(params.Name)
	if err := f.record("DeleteParameter", name); err != nil {
		return nil, err
	}
	if f.DeleteParameterFunc != nil {
		return f.DeleteParameterFunc(ctx, params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Parameters[name]; !ok {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String(fmt.Sprintf("Parameter %s not found.", name))}
	}
	delete(f.Parameters, name)
	delete(f.Types, name)
	return &ssm.DeleteParameterOutput{}, nil
}

// FakeSecretsManagerClient is an in-memory Secrets Manager
type FakeSecretsManagerClient struct {
	mu sync.Mutex

	// Secrets maps secret names to their current string value
	Secrets map[string]string
	// Errors maps secret names to errors to return from any operation
	Errors map[string]error
	// Calls counts invocations per operation name
	Calls map[string]int

	GetSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
}

// NewFakeSecretsManagerClient creates an empty fake
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets: make(map[string]string),
		Errors:  make(map[string]error),
		Calls:   make(map[string]int),
	}
}

// AddSecretString seeds a string secret
func (f *FakeSecretsManagerClient) AddSecretString(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[name] = value
}

// AddError configures an error for a secret name
func (f *FakeSecretsManagerClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// CallCount returns how many times op was invoked
func (f *FakeSecretsManagerClient) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

func (f *FakeSecretsManagerClient) record(op, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[op]++
	return f.Errors[name]
}

func notFound(name string) error {
	return &smtypes.ResourceNotFoundException{
		Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", name)),
	}
}

// GetSecretValue mocks the GetSecretValue operation
func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	name := aws.ToString(params.SecretId)
	if err := f.record("GetSecretValue", name); err != nil {
		return nil, err
	}
	if f.GetSecretValueFunc != nil {
		return f.GetSecretValueFunc(ctx, params)
	}

	f.mu.Lock()
	value, ok := f.Secrets[name]
	f.mu.Unlock()
	if !ok {
		return nil, notFound(name)
	}

	return &secretsmanager.GetSecretValueOutput{
		ARN:           aws.String(fmt.Sprintf("arn:aws:secretsmanager:us-east-1:123456789012:secret:%s", name)),
		Name:          params.SecretId,
		SecretString:  aws.String(value),
		VersionStages: []string{"AWSCURRENT"},
	}, nil
}

// PutSecretValue mocks the PutSecretValue operation
func (f *FakeSecretsManagerClient) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	name := aws.ToString(params.SecretId)
	if err := f.record("PutSecretValue", name); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Secrets[name]; !ok {
		return nil, notFound(name)
	}
	f.Secrets[name] = aws.ToString(params.SecretString)
	return &secretsmanager.PutSecretValueOutput{Name: params.SecretId}, nil
}

// CreateSecret mocks the CreateSecret operation
func (f *FakeSecretsManagerClient) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	name := aws.ToString(params.Name)
	if err := f.record("CreateSecret", name); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Secrets[name]; ok {
		return nil, &smtypes.ResourceExistsException{Message: aws.String("secret already exists")}
	}
	f.Secrets[name] = aws.ToString(params.SecretString)
	return &secretsmanager.CreateSecretOutput{Name: params.Name}, nil
}

// DeleteSecret mocks the DeleteSecret operation
func (f *FakeSecretsManagerClient) DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	name := aws.ToString(params.SecretId)
	if err := f.record("DeleteSecret", name); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Secrets[name]; !ok {
		return nil, notFound(name)
	}
	delete(f.Secrets, name)
	return &secretsmanager.DeleteSecretOutput{Name: params.SecretId}, nil
}
