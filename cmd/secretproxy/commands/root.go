package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/secretproxy/internal/config"
	"github.com/systmms/secretproxy/internal/logging"
)

// BuildInfo is stamped at link time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", b.Version, b.Commit, b.Date)
}

// Globals carries the persistent flags to subcommands.
type Globals struct {
	ConfigPath string
	Debug      bool
	NoColor    bool

	Logger *logging.Logger
}

// LoadConfig loads the configuration file and rebuilds the logger so
// logging settings from the file apply. Flags win over the file.
func (g *Globals) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	g.Logger = logging.New(g.Debug || cfg.Logging.Debug, g.NoColor || cfg.Logging.NoColor)
	return cfg, nil
}

// NewRootCommand builds the secretproxy command tree.
func NewRootCommand(info BuildInfo) *cobra.Command {
	g := &Globals{}

	rootCmd := &cobra.Command{
		Use:   "secretproxy",
		Short: "Secret-access gateway with a read-through cache",
		Long: `secretproxy serves key/value secret entries over HTTP from a single
configured secret store (AWS SSM, AWS Secrets Manager, Vault KV v2,
GCP Secret Manager, Azure Key Vault or in-memory), caching reads locally.`,
		Version:       info.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			g.Logger = logging.New(g.Debug, g.NoColor)
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.ConfigPath, "config", "secretproxy.yaml", "Config file path (empty for built-in IN_MEMORY defaults)")
	rootCmd.PersistentFlags().BoolVar(&g.NoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&g.Debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		NewServeCommand(g),
		NewCheckCommand(g),
		NewBackendsCommand(g),
		NewVersionCommand(info),
	)

	return rootCmd
}
