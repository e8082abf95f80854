package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/secretproxy/internal/backends"
	dserrors "github.com/systmms/secretproxy/internal/errors"
	"github.com/systmms/secretproxy/pkg/backend"
)

// probeKey is read by check. It follows the env_tenant_attribute shape so
// every backend accepts it; its absence counts as success.
const probeKey = "secretproxy_check_probe"

func NewCheckCommand(g *Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and probe the secret store",
		Long: `Load the configuration, build the configured secret store and read a
probe key from it. A missing probe key is expected; any other failure
exits non-zero with a suggestion.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "✓ Configuration valid (%s)\n", displayPath(cfg.Path))

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.SecretStore.Timeout())
			defer cancel()

			b, err := backends.NewRegistry().Create(ctx, cfg.SecretStore, g.Logger)
			if err != nil {
				return err
			}
			if closer, ok := b.(backend.Closer); ok {
				defer func() { _ = closer.Close() }()
			}
			_, _ = fmt.Fprintf(out, "✓ Backend %s initialised (delete policy: %s)\n", b.Type(), b.DeletePolicy())

			start := time.Now()
			if _, err := b.Get(ctx, probeKey); err != nil && !backend.IsNotFound(err) {
				return dserrors.BackendError(string(b.Type()), "probe read", err)
			}
			_, _ = fmt.Fprintf(out, "✓ Backend reachable (%s)\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	return cmd
}

func displayPath(p string) string {
	if p == "" {
		return "built-in defaults"
	}
	return p
}
