package fakes

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FakeGCPSecretManagerClient is an in-memory Secret Manager keeping every
// version of each secret
type FakeGCPSecretManagerClient struct {
	mu sync.Mutex

	// Versions maps full secret names (projects/X/secrets/Y) to payloads, oldest first
	Versions map[string][][]byte
	// Errors maps full secret names to errors to return from any operation
	Errors map[string]error
	// Calls counts invocations per operation name
	Calls map[string]int
}

// NewFakeGCPSecretManagerClient creates an empty fake
func NewFakeGCPSecretManagerClient() *FakeGCPSecretManagerClient {
	return &FakeGCPSecretManagerClient{
		Versions: make(map[string][][]byte),
		Errors:   make(map[string]error),
		Calls:    make(map[string]int),
	}
}

// AddSecretString seeds a secret with one version
func (f *FakeGCPSecretManagerClient) AddSecretString(projectID, secretID, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := fmt.Sprintf("projects/%s/secrets/%s", projectID, secretID)
	f.Versions[name] = append(f.Versions[name], []byte(value))
}

// AddError configures an error for a full secret name
func (f *FakeGCPSecretManagerClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// CallCount returns how many times op was invoked
func (f *FakeGCPSecretManagerClient) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

func (f *FakeGCPSecretManagerClient) record(op, name string) error {
	f.Calls[op]++
	return f.Errors[name]
}

// AccessSecretVersion returns the newest version for ".../versions/latest"
func (f *FakeGCPSecretManagerClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	secret := req.GetName()
	if i := strings.Index(secret, "/versions/"); i >= 0 {
		secret = secret[:i]
	}
	if err := f.record("AccessSecretVersion", secret); err != nil {
		return nil, err
	}

	versions, ok := f.Versions[secret]
	if !ok || len(versions) == 0 {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found or has no versions.", secret)
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    fmt.Sprintf("%s/versions/%d", secret, len(versions)),
		Payload: &secretmanagerpb.SecretPayload{Data: versions[len(versions)-1]},
	}, nil
}

// AddSecretVersion appends a version to an existing secret
func (f *FakeGCPSecretManagerClient) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("AddSecretVersion", req.GetParent()); err != nil {
		return nil, err
	}
	versions, ok := f.Versions[req.GetParent()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found.", req.GetParent())
	}
	f.Versions[req.GetParent()] = append(versions, req.GetPayload().GetData())
	return &secretmanagerpb.SecretVersion{
		Name:  fmt.Sprintf("%s/versions/%d", req.GetParent(), len(versions)+1),
		State: secretmanagerpb.SecretVersion_ENABLED,
	}, nil
}

// CreateSecret creates an empty secret
func (f *FakeGCPSecretManagerClient) CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetParent() + "/secrets/" + req.GetSecretId()
	if err := f.record("CreateSecret", name); err != nil {
		return nil, err
	}
	if _, ok := f.Versions[name]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "Secret [%s] already exists.", name)
	}
	f.Versions[name] = [][]byte{}
	return &secretmanagerpb.Secret{Name: name, Replication: req.GetSecret().GetReplication()}, nil
}

// DeleteSecret removes a secret and its versions
func (f *FakeGCPSecretManagerClient) DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest, opts ...gax.CallOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("DeleteSecret", req.GetName()); err != nil {
		return err
	}
	if _, ok := f.Versions[req.GetName()]; !ok {
		return status.Errorf(codes.NotFound, "Secret [%s] not found.", req.GetName())
	}
	delete(f.Versions, req.GetName())
	return nil
}

// Close is a no-op
func (f *FakeGCPSecretManagerClient) Close() error {
	return nil
}
