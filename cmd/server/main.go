// Package main runs the fleet management API server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fleettrack/backend/config"
	"github.com/fleettrack/backend/internal/auth"
	"github.com/fleettrack/backend/internal/i18n"
	"github.com/fleettrack/backend/internal/identity"
	"github.com/fleettrack/backend/internal/invites"
	"github.com/fleettrack/backend/internal/middleware"
	"github.com/fleettrack/backend/internal/organizations"
	"github.com/fleettrack/backend/internal/server"
	"github.com/fleettrack/backend/internal/vehicles"
	"github.com/fleettrack/backend/pkg/database"
	"github.com/fleettrack/backend/pkg/queue"
	"github.com/fleettrack/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	bundle, err := i18n.Embedded(cfg.I18n.DefaultLocale)
	if err != nil {
		logger.Fatal("i18n", zap.Error(err))
	}
	i18n.SetDefault(bundle)

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Identity provider
	supabase, err := identity.NewSupabaseClient(identity.SupabaseConfig{
		URL:     cfg.Identity.URL,
		AnonKey: cfg.Identity.AnonKey,
		Timeout: cfg.Identity.Timeout,
	}, logger)
	if err != nil {
		logger.Fatal("identity provider", zap.Error(err))
	}
	var verifier identity.Verifier = supabase
	if cfg.Identity.VerifyMode == config.VerifyLocal {
		verifier = identity.NewJWTVerifier(cfg.Identity.JWTSecret)
	} else if cfg.Identity.CacheTTL > 0 {
		verifier = identity.NewCachingVerifier(supabase, identity.NewRedisCache(rdb.Client), identity.CacheConfig{
			TTL:     cfg.Identity.CacheTTL,
			Timeout: cfg.Identity.Timeout,
			Salt:    cfg.Identity.CacheKeySalt,
		}, logger)
	}
	logger.Info("identity verifier configured", zap.String("mode", cfg.Identity.VerifyMode), zap.Duration("cache_ttl", cfg.Identity.CacheTTL))

	timeout := cfg.Store.QueryTimeout

	// Profiles and accounts
	profileRepo := auth.NewRepository(pool, timeout)
	orgRepo := organizations.NewRepository(pool, timeout)
	provisioner := auth.NewProvisioner(profileRepo, logger)
	authSvc := auth.NewService(supabase, profileRepo, provisioner, orgRepo, logger)

	// Invites
	var notifier invites.Notifier
	if cfg.Invite.Deliver {
		notifier = queue.NewQueue(rdb.Client, logger)
	}
	ledger := invites.NewLedger(invites.NewRepository(pool, timeout), orgRepo, cfg.Invite.TTL, logger)
	inviteSvc := invites.NewService(ledger, authSvc, notifier, cfg.Invite.AcceptURLBase, logger)

	handlers := server.Handlers{
		Auth:          auth.NewHandler(authSvc),
		Organizations: organizations.NewHandler(organizations.NewService(orgRepo, logger)),
		Invites:       invites.NewHandler(inviteSvc),
		Vehicles:      vehicles.NewHandler(vehicles.NewService(vehicles.NewRepository(pool, timeout), logger)),
	}
	gate := middleware.NewGate(verifier, provisioner, middleware.GateConfig{
		VerifyTimeout: cfg.Identity.Timeout,
		StoreTimeout:  timeout,
	}, logger)
	router := server.New(gate, server.Routes(handlers), server.Config{CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
