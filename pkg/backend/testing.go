package backend

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ContractTest defines the suite every SecretBackend implementation must pass.
type ContractTest struct {
	// CreateBackend returns a fresh, empty backend.
	CreateBackend func(t *testing.T) SecretBackend

	// NewKey returns a key valid for the backend under test. The default
	// produces keys of the form contract_test_<suffix>, which also satisfy
	// the three-part Vault addressing scheme.
	NewKey func(suffix string) string

	// CheckCancellation asserts that operations fail on a cancelled context.
	CheckCancellation bool

	// DeletePolicy is the policy the backend must report.
	DeletePolicy DeletePolicy
}

// RunContractTests runs the standard backend contract test suite
func RunContractTests(t *testing.T, contract ContractTest) {
	if contract.NewKey == nil {
		contract.NewKey = func(suffix string) string {
			return fmt.Sprintf("contract_test_%s", suffix)
		}
	}

	t.Run("Contract", func(t *testing.T) {
		t.Run("Name", func(t *testing.T) {
			b := contract.CreateBackend(t)
			assert.NotEmpty(t, b.Name())
			assert.Equal(t, b.Name(), b.Name())
			assert.NotEmpty(t, b.Type())
		})

		t.Run("DeletePolicy", func(t *testing.T) {
			b := contract.CreateBackend(t)
			assert.Equal(t, contract.DeletePolicy, b.DeletePolicy())
		})

		t.Run("GetMissing", func(t *testing.T) {
			b := contract.CreateBackend(t)
			value, err := b.Get(context.Background(), contract.NewKey("missing"))
			if err != nil {
				assert.True(t, IsNotFound(err), "absent key must yield empty value or NotFoundError, got %v", err)
				return
			}
			assert.Empty(t, value)
		})

		t.Run("SetThenGet", func(t *testing.T) {
			b := contract.CreateBackend(t)
			ctx := context.Background()
			key := contract.NewKey("roundtrip")

			require.NoError(t, b.Set(ctx, key, "value-1"))
			got, err := b.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "value-1", got)
		})

		t.Run("Overwrite", func(t *testing.T) {
			b := contract.CreateBackend(t)
			ctx := context.Background()
			key := contract.NewKey("overwrite")

			require.NoError(t, b.Set(ctx, key, "first"))
			require.NoError(t, b.Set(ctx, key, "second"))
			got, err := b.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "second", got)
		})

		t.Run("DeleteThenGet", func(t *testing.T) {
			b := contract.CreateBackend(t)
			ctx := context.Background()
			key := contract.NewKey("deleted")

			require.NoError(t, b.Set(ctx, key, "gone-soon"))
			require.NoError(t, b.Delete(ctx, key))

			value, err := b.Get(ctx, key)
			if err != nil {
				assert.True(t, IsNotFound(err), "deleted key must read as absent, got %v", err)
				return
			}
			assert.Empty(t, value)
		})

		t.Run("DeleteMissingIsIdempotent", func(t *testing.T) {
			b := contract.CreateBackend(t)
			ctx := context.Background()
			key := contract.NewKey("nothere")

			assert.NoError(t, b.Delete(ctx, key))
			assert.NoError(t, b.Delete(ctx, key))
		})

		if contract.CheckCancellation {
			t.Run("ContextCancellation", func(t *testing.T) {
				b := contract.CreateBackend(t)
				ctx, cancel := context.WithCancel(context.Background())
				cancel()

				_, err := b.Get(ctx, contract.NewKey("cancelled"))
				assert.ErrorIs(t, err, context.Canceled)
				assert.ErrorIs(t, b.Set(ctx, contract.NewKey("cancelled"), "v"), context.Canceled)
				assert.ErrorIs(t, b.Delete(ctx, contract.NewKey("cancelled")), context.Canceled)
			})
		}
	})
}
