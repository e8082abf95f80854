package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/secretproxy/internal/backends"
)

func NewBackendsCommand(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List supported secret store types",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := backends.NewRegistry()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "TYPE\tDELETE\tDESCRIPTION\n")
			_, _ = fmt.Fprintf(w, "----\t------\t-----------\n")
			for _, t := range registry.SupportedTypes() {
				info := backendInfo(t)
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", t, info.delete, info.description)
			}
			return w.Flush()
		},
	}
}

type typeInfo struct {
	delete      string
	description string
}

func backendInfo(t string) typeInfo {
	switch t {
	case "AWS_SSM":
		return typeInfo{"native", "AWS Systems Manager Parameter Store (SecureString)"}
	case "AWS_SECRETS_MANAGER":
		return typeInfo{"native", "AWS Secrets Manager"}
	case "VAULT":
		return typeInfo{"emulated", "HashiCorp Vault KV v2 (env_tenant_attribute keys)"}
	case "GCP_SECRET_MANAGER":
		return typeInfo{"native", "Google Cloud Secret Manager"}
	case "AZURE_KEY_VAULT":
		return typeInfo{"native", "Azure Key Vault secrets"}
	case "EPHEMERAL":
		return typeInfo{"native", "In-process map seeded from secretStore.content"}
	case "IN_MEMORY":
		return typeInfo{"native", "Empty in-process map"}
	default:
		return typeInfo{"unknown", ""}
	}
}
