// Package main is the operator CLI: schema migrations, super admin bootstrap
// and tenant setup without going through the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fleettrack/backend/config"
	"github.com/fleettrack/backend/pkg/database"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fleetadmin",
		Short:         "Administer the fleet management backend",
		SilenceUsage:  true,
	}
	root.AddCommand(newMigrateCmd(), newBootstrapCmd(), newOrgCmd(), newInviteCmd())
	return root
}

// runtime is the shared state of a command invocation.
type runtime struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func connect(ctx context.Context, migrate bool) (*runtime, func(), error) {
	logger := newLogger()
	cfg, err := config.Parse()
	if err != nil {
		return nil, nil, err
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolConfig{MaxConns: 2}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	if migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	closer := func() {
		pool.Close()
		_ = logger.Sync()
	}
	return &runtime{cfg: cfg, pool: pool, logger: logger}, closer, nil
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, _ := config.Build()
	return logger
}
