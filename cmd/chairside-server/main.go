package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"chairside/backend/internal/config"
	"chairside/backend/internal/store/postgres"
	"chairside/backend/migrations"
)

const serviceName = "chairside-server"

func main() {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Dental clinic booking and availability engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gRPC and HTTP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyMigrations, _ := cmd.Flags().GetBool("migrate")
			return runServer(cmd.Context(), applyMigrations)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving (postgres store only)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return migrate(ctx, log, cfg)
		},
	}
}

func migrate(ctx context.Context, log *slog.Logger, cfg config.Config) error {
	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxOpenConns: 1}, log)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	applied, err := postgres.Migrate(ctx, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Info("migrations applied", slog.Int("count", len(applied)), slog.Any("files", applied))
	return nil
}

func newLogger(level string) *slog.Logger {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)
	return log
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
