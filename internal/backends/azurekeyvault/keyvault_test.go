package azurekeyvault

import (
	"context"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/secretproxy/internal/errors"
	"github.com/systmms/secretproxy/internal/fakes"
	"github.com/systmms/secretproxy/pkg/backend"
)

func newTestBackend(t *testing.T, client *fakes.FakeAzureKeyVaultClient) *Backend {
	t.Helper()
	b, err := New(map[string]interface{}{"vault_url": "https://proxy.vault.azure.net/"}, WithClient(client))
	require.NoError(t, err)
	return b
}

func TestKeyVaultContract(t *testing.T) {
	backend.RunContractTests(t, backend.ContractTest{
		CreateBackend: func(t *testing.T) backend.SecretBackend {
			return newTestBackend(t, fakes.NewFakeAzureKeyVaultClient())
		},
	})
}

func TestSecretNameReplacesUnderscores(t *testing.T) {
	assert.Equal(t, "folio-diku-password", SecretName("folio_diku_password"))
	assert.Equal(t, "already-dashed", SecretName("already-dashed"))
}

func TestRoundTripUsesMappedName(t *testing.T) {
	client := fakes.NewFakeAzureKeyVaultClient()
	b := newTestBackend(t, client)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "folio_diku_pw", "value"))
	assert.Equal(t, "value", client.Secrets["folio-diku-pw"])

	got, err := b.Get(ctx, "folio_diku_pw")
	require.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestForbiddenIsWrapped(t *testing.T) {
	client := fakes.NewFakeAzureKeyVaultClient()
	forbidden := &azcore.ResponseError{ErrorCode: "Forbidden", StatusCode: http.StatusForbidden}
	client.AddError("locked", forbidden)
	b := newTestBackend(t, client)

	_, err := b.Get(context.Background(), "locked")
	require.Error(t, err)
	assert.ErrorIs(t, err, forbidden)
	assert.ErrorIs(t, b.Set(context.Background(), "locked", "v"), forbidden)
	assert.ErrorIs(t, b.Delete(context.Background(), "locked"), forbidden)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name      string
		configMap map[string]interface{}
		wantField string
	}{
		{"missing url", map[string]interface{}{}, "secretStore.vault_url"},
		{"relative url", map[string]interface{}{"vault_url": "proxy-vault"}, "secretStore.vault_url"},
		{"incomplete service principal", map[string]interface{}{
			"vault_url":     "https://proxy.vault.azure.net/",
			"client_secret": "s",
		}, "secretStore.client_secret"},
		{"bad managed identity flag", map[string]interface{}{
			"vault_url":            "https://proxy.vault.azure.net/",
			"use_managed_identity": "often",
		}, "secretStore.use_managed_identity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.configMap, WithClient(fakes.NewFakeAzureKeyVaultClient()))
			require.Error(t, err)
			var ce dserrors.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantField, ce.Field)
		})
	}
}
