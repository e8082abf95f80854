package fakes

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// FakeAzureKeyVaultClient is an in-memory Key Vault
type FakeAzureKeyVaultClient struct {
	mu sync.Mutex

	// Secrets maps secret names to their current value
	Secrets map[string]string
	// Errors maps secret names to errors to return from any operation
	Errors map[string]error
	// Calls counts invocations per operation name
	Calls map[string]int
}

// NewFakeAzureKeyVaultClient creates an empty fake
func NewFakeAzureKeyVaultClient() *FakeAzureKeyVaultClient {
	return &FakeAzureKeyVaultClient{
		Secrets: make(map[string]string),
		Errors:  make(map[string]error),
		Calls:   make(map[string]int),
	}
}

// AddSecretString seeds a secret
func (f *FakeAzureKeyVaultClient) AddSecretString(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[name] = value
}

// AddError configures an error for a secret name
func (f *FakeAzureKeyVaultClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// CallCount returns how many times op was invoked
func (f *FakeAzureKeyVaultClient) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

// AzureNotFound builds the error azsecrets returns for a missing secret
func AzureNotFound(name string) error {
	return &azcore.ResponseError{
		ErrorCode:  "SecretNotFound",
		StatusCode: http.StatusNotFound,
	}
}

func (f *FakeAzureKeyVaultClient) record(op, name string) error {
	f.Calls[op]++
	return f.Errors[name]
}

// GetSecret returns the current value
func (f *FakeAzureKeyVaultClient) GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("GetSecret", name); err != nil {
		return azsecrets.GetSecretResponse{}, err
	}
	value, ok := f.Secrets[name]
	if !ok {
		return azsecrets.GetSecretResponse{}, AzureNotFound(name)
	}

	var resp azsecrets.GetSecretResponse
	resp.Value = to.Ptr(value)
	id := azsecrets.ID(fmt.Sprintf("https://test-vault.vault.azure.net/secrets/%s", name))
	resp.ID = &id
	return resp, nil
}

// SetSecret stores a new value
func (f *FakeAzureKeyVaultClient) SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("SetSecret", name); err != nil {
		return azsecrets.SetSecretResponse{}, err
	}
	if parameters.Value == nil {
		return azsecrets.SetSecretResponse{}, &azcore.ResponseError{ErrorCode: "BadParameter", StatusCode: http.StatusBadRequest}
	}
	f.Secrets[name] = *parameters.Value

	var resp azsecrets.SetSecretResponse
	resp.Value = parameters.Value
	return resp, nil
}

// DeleteSecret removes the secret
func (f *FakeAzureKeyVaultClient) DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("DeleteSecret", name); err != nil {
		return azsecrets.DeleteSecretResponse{}, err
	}
	if _, ok := f.Secrets[name]; !ok {
		return azsecrets.DeleteSecretResponse{}, AzureNotFound(name)
	}
	delete(f.Secrets, name)
	return azsecrets.DeleteSecretResponse{}, nil
}
