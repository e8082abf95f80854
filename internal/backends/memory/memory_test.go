package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/secretproxy/pkg/backend"
)

func TestInMemoryContract(t *testing.T) {
	backend.RunContractTests(t, backend.ContractTest{
		CreateBackend: func(t *testing.T) backend.SecretBackend {
			return NewInMemory()
		},
		CheckCancellation: true,
	})
}

func TestEphemeralContract(t *testing.T) {
	backend.RunContractTests(t, backend.ContractTest{
		CreateBackend: func(t *testing.T) backend.SecretBackend {
			b, err := NewEphemeral(nil)
			require.NoError(t, err)
			return b
		},
		CheckCancellation: true,
	})
}

func TestNewEphemeralSeedsContent(t *testing.T) {
	b, err := NewEphemeral(map[string]interface{}{
		"content": map[string]interface{}{
			"diku_diku_password": "secret",
			"port":               5432,
			"flag":               true,
			"empty":              nil,
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	tests := map[string]string{
		"diku_diku_password": "secret",
		"port":               "5432",
		"flag":               "true",
		"empty":              "",
		"unknown":            "",
	}
	for key, want := range tests {
		got, err := b.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, backend.TypeEphemeral, b.Type())
	assert.Equal(t, backend.DeleteNative, b.DeletePolicy())
}

func TestNewEphemeralRejectsNonMapping(t *testing.T) {
	_, err := NewEphemeral(map[string]interface{}{"content": "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a mapping")
}

func TestInMemoryDeleteRemovesKey(t *testing.T) {
	b := NewInMemory()
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", "v"))
	assert.Equal(t, 1, b.Len())
	require.NoError(t, b.Delete(ctx, "k"))
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, backend.TypeInMemory, b.Type())
}
