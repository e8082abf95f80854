package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/secretproxy/internal/errors"
	"github.com/systmms/secretproxy/pkg/backend"
)

// MockKVClient implements KVClient over a map of paths to fields
type MockKVClient struct {
	mu      sync.Mutex
	secrets map[string]map[string]interface{}
	deleted []string

	GetFunc func(ctx context.Context, path string) (*api.KVSecret, error)
	PutFunc func(ctx context.Context, path string, data map[string]interface{}) (*api.KVSecret, error)
}

func newMockKVClient() *MockKVClient {
	return &MockKVClient{secrets: make(map[string]map[string]interface{})}
}

func (m *MockKVClient) Get(ctx context.Context, path string) (*api.KVSecret, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.secrets[path]
	if !ok {
		return nil, fmt.Errorf("%w: at secret/data/%s", api.ErrSecretNotFound, path)
	}
	copied := make(map[string]interface{}, len(data))
	for k, v := range data {
		copied[k] = v
	}
	return &api.KVSecret{Data: copied}, nil
}

func (m *MockKVClient) Put(ctx context.Context, path string, data map[string]interface{}, opts ...api.KVOption) (*api.KVSecret, error) {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, path, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[path] = data
	return &api.KVSecret{Data: data}, nil
}

func (m *MockKVClient) DeleteMetadata(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, path)
	m.deleted = append(m.deleted, path)
	return nil
}

var testConfig = map[string]interface{}{
	"address": "http://127.0.0.1:8200",
	"token":   "root",
}

func newTestBackend(t *testing.T, kv KVClient) *Backend {
	t.Helper()
	b, err := New(testConfig, WithKVClient(kv))
	require.NoError(t, err)
	return b
}

func clearVaultEnv(t *testing.T) {
	for _, name := range []string{"VAULT_ADDR", "VAULT_TOKEN", "VAULT_NAMESPACE", "VAULT_CACERT", "VAULT_SKIP_VERIFY"} {
		t.Setenv(name, "")
	}
}

func TestVaultContract(t *testing.T) {
	clearVaultEnv(t)
	backend.RunContractTests(t, backend.ContractTest{
		CreateBackend: func(t *testing.T) backend.SecretBackend {
			return newTestBackend(t, newMockKVClient())
		},
		DeletePolicy: backend.DeleteEmulated,
	})
}

func TestParseConfig(t *testing.T) {
	clearVaultEnv(t)

	tests := []struct {
		name      string
		configMap map[string]interface{}
		wantErr   string
		check     func(t *testing.T, c Config)
	}{
		{
			name:      "defaults",
			configMap: testConfig,
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "secret", c.SecretRoot)
				assert.False(t, c.EnableSSL)
				assert.Equal(t, DefaultTimeout, c.Timeout)
			},
		},
		{
			name: "tls and custom root",
			configMap: map[string]interface{}{
				"address":     "https://vault:8200",
				"token":       "t",
				"enable_ssl":  "true",
				"ca_cert":     "/etc/ssl/ca.pem",
				"secret_root": "folio",
				"namespace":   "ns1",
			},
			check: func(t *testing.T, c Config) {
				assert.True(t, c.EnableSSL)
				assert.Equal(t, "folio", c.SecretRoot)
				assert.Equal(t, "/etc/ssl/ca.pem", c.CACert)
				assert.Equal(t, "ns1", c.Namespace)
			},
		},
		{
			name:      "missing address",
			configMap: map[string]interface{}{"token": "t"},
			wantErr:   "secretStore.address",
		},
		{
			name:      "missing token",
			configMap: map[string]interface{}{"address": "http://vault:8200"},
			wantErr:   "secretStore.token",
		},
		{
			name:      "bad enable_ssl",
			configMap: map[string]interface{}{"address": "a", "token": "t", "enable_ssl": "sometimes"},
			wantErr:   "secretStore.enable_ssl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseConfig(tt.configMap)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, dserrors.IsConfigError(err))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestParseConfigEnvOverrides(t *testing.T) {
	clearVaultEnv(t)
	t.Setenv("VAULT_ADDR", "http://env-vault:8200")
	t.Setenv("VAULT_TOKEN", "env-token")
	t.Setenv("VAULT_SKIP_VERIFY", "true")

	c, err := ParseConfig(map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "http://env-vault:8200", c.Address)
	assert.Equal(t, "env-token", c.Token)
	assert.True(t, c.TLSSkip)
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		key     string
		want    address
		wantErr bool
	}{
		{"folio_diku_mod-users", address{"folio", "diku", "mod-users"}, false},
		{"prod_tenant_db_password", address{"prod", "tenant", "db_password"}, false},
		{"only_two", address{}, true},
		{"nounderscore", address{}, true},
		{"_tenant_attr", address{}, true},
		{"env__attr", address{}, true},
		{"env_tenant_", address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := parseKey(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, backend.IsInvalidKey(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.env+"/"+tt.want.tenant, got.path())
		})
	}
}

func TestGetMissingAttribute(t *testing.T) {
	clearVaultEnv(t)
	kv := newMockKVClient()
	kv.secrets["folio/diku"] = map[string]interface{}{"other": "x"}
	b := newTestBackend(t, kv)

	_, err := b.Get(context.Background(), "folio_diku_password")
	require.Error(t, err)
	assert.True(t, backend.IsNotFound(err))
	assert.Equal(t, "Attribute: password not set for folio/diku", err.Error())

	_, err = b.Get(context.Background(), "folio_other-tenant_password")
	assert.True(t, backend.IsNotFound(err))
}

func TestGetStringifiesFields(t *testing.T) {
	clearVaultEnv(t)
	kv := newMockKVClient()
	kv.secrets["e/t"] = map[string]interface{}{
		"s":   "text",
		"n":   json.Number("42"),
		"b":   true,
		"obj": map[string]interface{}{"a": "b"},
	}
	b := newTestBackend(t, kv)

	tests := map[string]string{
		"e_t_s":   "text",
		"e_t_n":   "42",
		"e_t_b":   "true",
		"e_t_obj": `{"a":"b"}`,
	}
	for key, want := range tests {
		got, err := b.Get(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}
}

func TestSetPreservesOtherAttributes(t *testing.T) {
	clearVaultEnv(t)
	kv := newMockKVClient()
	kv.secrets["folio/diku"] = map[string]interface{}{"keep": "me"}
	b := newTestBackend(t, kv)

	require.NoError(t, b.Set(context.Background(), "folio_diku_password", "pw"))
	assert.Equal(t, map[string]interface{}{"keep": "me", "password": "pw"}, kv.secrets["folio/diku"])
}

func TestDeleteRemovesOnlyAttribute(t *testing.T) {
	clearVaultEnv(t)
	kv := newMockKVClient()
	kv.secrets["folio/diku"] = map[string]interface{}{"a": "1", "b": "2"}
	b := newTestBackend(t, kv)
	ctx := context.Background()

	require.NoError(t, b.Delete(ctx, "folio_diku_a"))
	assert.Equal(t, map[string]interface{}{"b": "2"}, kv.secrets["folio/diku"])
	assert.Empty(t, kv.deleted)

	require.NoError(t, b.Delete(ctx, "folio_diku_b"))
	_, exists := kv.secrets["folio/diku"]
	assert.False(t, exists)
	assert.Equal(t, []string{"folio/diku"}, kv.deleted)

	require.NoError(t, b.Delete(ctx, "folio_diku_b"))
	assert.Equal(t, backend.DeleteEmulated, b.DeletePolicy())
}

func TestMalformedKeyIsAnError(t *testing.T) {
	clearVaultEnv(t)
	b := newTestBackend(t, newMockKVClient())
	ctx := context.Background()

	_, err := b.Get(ctx, "bad")
	require.Error(t, err)
	assert.False(t, backend.IsNotFound(err))
	assert.True(t, backend.IsInvalidKey(err))
	assert.True(t, backend.IsInvalidKey(b.Set(ctx, "bad", "v")))
	assert.True(t, backend.IsInvalidKey(b.Delete(ctx, "bad")))
	assert.Empty(t, b.locks)
}

func TestReadFailureIsWrapped(t *testing.T) {
	clearVaultEnv(t)
	kv := newMockKVClient()
	denied := &api.ResponseError{StatusCode: http.StatusForbidden, Errors: []string{"permission denied"}}
	kv.GetFunc = func(ctx context.Context, path string) (*api.KVSecret, error) {
		return nil, denied
	}
	b := newTestBackend(t, kv)

	_, err := b.Get(context.Background(), "a_b_c")
	require.Error(t, err)
	assert.True(t, errors.Is(err, denied))
	var ue dserrors.UserError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Message, "secret/a/b")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("%w: at x", api.ErrSecretNotFound)))
	assert.True(t, isNotFound(&api.ResponseError{StatusCode: http.StatusNotFound}))
	assert.False(t, isNotFound(&api.ResponseError{StatusCode: http.StatusInternalServerError}))
	assert.False(t, isNotFound(errors.New("boom")))
}

// TestAgainstHTTPServer drives the real api client against a minimal KV v2 server.
func TestAgainstHTTPServer(t *testing.T) {
	clearVaultEnv(t)

	var mu sync.Mutex
	store := map[string]map[string]interface{}{}
	var sawToken string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		sawToken = r.Header.Get("X-Vault-Token")

		path := strings.TrimPrefix(r.URL.Path, "/v1/secret/data/")
		metadata := map[string]interface{}{
			"created_time":  "2024-01-01T00:00:00Z",
			"deletion_time": "",
			"destroyed":     false,
			"version":       1,
		}
		switch r.Method {
		case http.MethodGet:
			data, ok := store[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"errors":[]}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{"data": data, "metadata": metadata},
			})
		case http.MethodPut, http.MethodPost:
			var body struct {
				Data map[string]interface{} `json:"data"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			store[path] = body.Data
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": metadata})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	b, err := New(map[string]interface{}{"address": srv.URL, "token": "s.test"})
	require.NoError(t, err)
	ctx := context.Background()

	value, err := b.Get(ctx, "folio_diku_missing")
	assert.True(t, backend.IsNotFound(err))
	assert.Empty(t, value)

	require.NoError(t, b.Set(ctx, "folio_diku_password", "pw"))
	value, err = b.Get(ctx, "folio_diku_password")
	require.NoError(t, err)
	assert.Equal(t, "pw", value)

	mu.Lock()
	assert.Equal(t, "s.test", sawToken)
	mu.Unlock()
}
