package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/systmms/secretproxy/internal/backends"
	"github.com/systmms/secretproxy/internal/cache"
	"github.com/systmms/secretproxy/internal/config"
	"github.com/systmms/secretproxy/internal/entry"
	"github.com/systmms/secretproxy/internal/logging"
	"github.com/systmms/secretproxy/internal/metrics"
	"github.com/systmms/secretproxy/internal/secure"
	"github.com/systmms/secretproxy/internal/server"
	"github.com/systmms/secretproxy/internal/workpool"
	"github.com/systmms/secretproxy/pkg/backend"
)

func NewServeCommand(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Long: `Start the secret entry API.

The configured secret store is built once at startup; any configuration
problem aborts before the listener opens. SIGINT or SIGTERM triggers a
graceful shutdown that waits up to server.shutdown_timeout for in-flight
requests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, g.Logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	if cfg.Cache.ProtectMemory {
		defer secure.Purge()
	}

	var m *metrics.Metrics
	if cfg.Metrics.IsEnabled() {
		m = metrics.Default()
	}

	b, err := backends.NewRegistry().Create(ctx, cfg.SecretStore, logger)
	if err != nil {
		return err
	}
	if closer, ok := b.(backend.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Warn("Failed to close %s backend: %v", b.Type(), err)
			}
		}()
	}

	srv, err := buildServer(cfg, b, m, logger)
	if err != nil {
		return err
	}

	logger.Info("Starting secretproxy with %s backend (cache ttl %s, protect_memory %t, workers %d)",
		b.Type(), cfg.Cache.TTL, cfg.Cache.ProtectMemory, cfg.Workers.Size)
	return srv.ListenAndServe(ctx)
}

// buildServer wires cache, pool and services around b.
func buildServer(cfg *config.Config, b backend.SecretBackend, m *metrics.Metrics, logger *logging.Logger) (*server.Server, error) {
	pool, err := workpool.New(cfg.Workers.Size, m)
	if err != nil {
		return nil, err
	}

	c := cache.New(cache.Options{
		TTL:           cfg.Cache.TTL,
		ProtectMemory: cfg.Cache.ProtectMemory,
		Metrics:       m,
		Logger:        logger,
	})

	svc := entry.NewService(b, c, pool,
		entry.WithTimeout(cfg.SecretStore.Timeout()),
		entry.WithMetrics(m),
		entry.WithLogger(logger),
	)
	admin := entry.NewAdminService(c, logger)

	opts := server.Options{
		Address:         cfg.Server.Address,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		BackendType:     b.Type(),
		Metrics:         m,
		Logger:          logger,
	}
	if cfg.Auth.IsEnabled() {
		opts.Auth = server.NewAuthenticator(cfg.Auth.Tokens)
	} else {
		logger.Warn("Authentication is disabled; every caller has full access")
	}
	if m != nil {
		opts.MetricsHandler = promhttp.Handler()
		opts.MetricsPath = cfg.Metrics.Path
	}

	return server.New(svc, admin, opts), nil
}
