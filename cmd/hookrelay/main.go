package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shohag/hookrelay/internal/api"
	"github.com/shohag/hookrelay/internal/attemptlog"
	"github.com/shohag/hookrelay/internal/config"
	"github.com/shohag/hookrelay/internal/delivery"
	"github.com/shohag/hookrelay/internal/models"
	"github.com/shohag/hookrelay/internal/storage"
	"github.com/shohag/hookrelay/internal/webhook"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "hookrelay",
		Short:        "HookRelay: multi-tenant webhook subscriptions and delivery",
		SilenceUsage: true,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(tenantCmd(&configPath))
	rootCmd.AddCommand(webhookCmd(&configPath))
	rootCmd.AddCommand(statsCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HookRelay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log, closeLog := setupLogger(cfg.Logging)
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := setupStorage(ctx, cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("database migrations completed")

			logs, readyChecks, closeLogs, err := setupAttemptLog(ctx, cfg.Logs, log)
			if err != nil {
				return fmt.Errorf("failed to setup attempt log: %w", err)
			}
			defer closeLogs()

			svc := newService(cfg, store, logs, log)
			pool := delivery.NewPool(svc, cfg.Delivery.Workers, cfg.Delivery.QueueSize, log)
			// Jobs outlive the signal context; StopWithin below drains them.
			pool.Start(ctx)

			server := api.NewServer(cfg, api.Deps{
				Store:       store,
				Service:     svc,
				Queue:       pool,
				ReadyChecks: readyChecks,
			}, log)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info().Msg("shutting down...")
				if err := server.Shutdown(10 * time.Second); err != nil {
					log.Error().Err(err).Msg("server shutdown error")
				}
				pool.StopWithin(cfg.Delivery.DrainTimeout)
				return nil
			})

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Int("workers", cfg.Delivery.Workers).
				Str("storage", cfg.Storage.Driver).
				Str("logs", cfg.Logs.Driver).
				Msg("HookRelay is running")

			err = g.Wait()
			log.Info().Msg("HookRelay stopped")
			return err
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cleanup, err := storeFromConfig(cmd.Context(), *configPath)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			defer cleanup()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations completed successfully")
			return nil
		},
	}
}

func tenantCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant and print its API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			store, cleanup, err := storeFromConfig(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			tenant := models.NewTenant(name, cfg.Webhooks.Defaults)
			if err := store.CreateTenant(cmd.Context(), tenant); err != nil {
				return fmt.Errorf("failed to create tenant: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), tenant)
		},
	}
	createCmd.Flags().String("name", "", "tenant name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := storeFromConfig(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			tenants, err := store.ListTenants(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list tenants: %w", err)
			}
			if len(tenants) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tenants found.")
				return nil
			}
			for _, t := range tenants {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s  (created %s)\n", t.ID, t.Name, t.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

func webhookCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Inspect and exercise webhook endpoints",
	}

	testCmd := &cobra.Command{
		Use:   "test <tenant_id> <webhook_id>",
		Short: "Send a test delivery to an endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log, closeLog := setupLogger(cfg.Logging)
			defer closeLog()

			store, err := setupStorage(cmd.Context(), cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			logs, _, closeLogs, err := setupAttemptLog(cmd.Context(), cfg.Logs, log)
			if err != nil {
				return fmt.Errorf("failed to setup attempt log: %w", err)
			}
			defer closeLogs()

			var testData any
			if raw, _ := cmd.Flags().GetString("data"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &testData); err != nil {
					return fmt.Errorf("--data must be JSON: %w", err)
				}
			}

			result, err := newService(cfg, store, logs, log).Test(cmd.Context(), args[0], args[1], testData)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	testCmd.Flags().String("data", "", "JSON test payload")

	cmd.AddCommand(testCmd)
	return cmd
}

func statsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <tenant_id>",
		Short: "Show delivery stats for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := storeFromConfig(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := store.GetStats(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "HookRelay v%s\n", version)
		},
	}
}

func newService(cfg *config.Config, store storage.Storage, logs webhook.AttemptLog, log zerolog.Logger) *webhook.Service {
	dispatcher := delivery.NewDispatcher(delivery.Options{
		UserAgent:        cfg.Delivery.UserAgent,
		Brand:            cfg.Delivery.Brand,
		MaxResponseBytes: cfg.Delivery.MaxResponseBytes,
	})
	return webhook.NewService(store, dispatcher, logs, webhook.Options{
		Registry:  webhook.RegistryOptions{RejectDuplicates: cfg.Webhooks.RejectDuplicates},
		Retention: cfg.Logs.Retention,
		Backoff:   delivery.Backoff{Base: cfg.Delivery.BackoffBase, Max: cfg.Delivery.BackoffMax},
	}, log)
}

func setupLogger(cfg config.LoggingConfig) (zerolog.Logger, func()) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	closeFn := func() {}
	if cfg.File.Path != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closeFn = func() { file.Close() }
	}

	return zerolog.New(out).With().Timestamp().Str("service", "hookrelay").Logger(), closeFn
}

func setupStorage(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	case "postgres":
		log.Info().Msg("using PostgreSQL storage")
		return storage.NewPostgres(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// setupAttemptLog returns a nil log for the database driver so the service
// writes attempts through the storage layer.
func setupAttemptLog(ctx context.Context, cfg config.LogsConfig, log zerolog.Logger) (webhook.AttemptLog, map[string]func(context.Context) error, func(), error) {
	switch cfg.Driver {
	case "database":
		return nil, nil, func() {}, nil
	case "redis":
		rl, err := attemptlog.NewRedis(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info().Str("prefix", cfg.Redis.KeyPrefix).Msg("using Redis attempt log")
		checks := map[string]func(context.Context) error{"redis": rl.Ping}
		return rl, checks, func() { rl.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported logs driver: %s", cfg.Driver)
	}
}

func storeFromConfig(ctx context.Context, configPath string) (storage.Storage, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, closeLog := setupLogger(cfg.Logging)
	store, err := setupStorage(ctx, cfg.Storage, log)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		closeLog()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, func() { store.Close(); closeLog() }, nil
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
