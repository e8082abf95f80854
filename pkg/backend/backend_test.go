package backend

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		input   string
		want    Type
		wantErr bool
	}{
		{"AWS_SSM", TypeAWSSSM, false},
		{"aws-ssm", TypeAWSSSM, false},
		{" vault ", TypeVault, false},
		{"Ephemeral", TypeEphemeral, false},
		{"in_memory", TypeInMemory, false},
		{"aws_secrets_manager", TypeAWSSecretsManager, false},
		{"GCP-SECRET-MANAGER", TypeGCPSecretManager, false},
		{"azure_key_vault", TypeAzureKeyVault, false},
		{"", "", true},
		{"consul", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{Backend: "vault", Key: "a_b_c"}
	assert.Equal(t, `vault: key "a_b_c" not found`, err.Error())
	assert.True(t, IsNotFound(fmt.Errorf("get: %w", err)))
	assert.False(t, IsNotFound(fmt.Errorf("other")))

	custom := &NotFoundError{Message: "Attribute: c not set for a/b"}
	assert.Equal(t, "Attribute: c not set for a/b", custom.Error())
}

func TestDeletePolicyString(t *testing.T) {
	assert.Equal(t, "native", DeleteNative.String())
	assert.Equal(t, "emulated", DeleteEmulated.String())
	assert.Equal(t, "DeletePolicy(7)", DeletePolicy(7).String())
}
