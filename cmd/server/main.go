package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	appbaseline "github.com/finz/backend/internal/application/baseline"
	appforecast "github.com/finz/backend/internal/application/forecast"
	"github.com/finz/backend/internal/domain/shared"
	"github.com/finz/backend/internal/infrastructure/cache"
	"github.com/finz/backend/internal/infrastructure/config"
	"github.com/finz/backend/internal/infrastructure/logger"
	"github.com/finz/backend/internal/infrastructure/persistence"
	"github.com/finz/backend/internal/infrastructure/storage"
	"github.com/finz/backend/internal/interfaces/http/handler"
	"github.com/finz/backend/internal/interfaces/http/middleware"
	"github.com/finz/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file (TOML)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewForEnvironment(cfg.App.Environment, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := newIdempotencyStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	guard := shared.NewIdempotencyGuard(store, shared.IdempotencyConfig{TTL: cfg.Idempotency.TTL})

	var archiver appbaseline.SnapshotArchiver
	if cfg.Storage.Bucket != "" {
		s3Archive, err := storage.NewS3SnapshotArchive(context.Background(), cfg.Storage, log)
		if err != nil {
			return err
		}
		archiver = s3Archive
		log.Info("baseline snapshot archive enabled", zap.String("bucket", cfg.Storage.Bucket))
	}

	baselineRepo := persistence.NewGormBaselineRepository(db.DB)
	auditRepo := persistence.NewGormAuditLogRepository(db.DB)
	cellRepo := persistence.NewGormForecastCellRepository(db.DB)

	lifecycle := appbaseline.NewLifecycleService(baselineRepo, auditRepo, guard, archiver, log)
	forecasts := appforecast.NewService(cellRepo, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.BodyLimit(cfg.HTTP.MaxBodyBytes),
		middleware.ActorFromToken(cfg.JWT.Secret),
	)
	if len(cfg.HTTP.CORSOrigins) > 0 {
		corsCfg := middleware.DefaultCORSConfig()
		corsCfg.AllowOrigins = cfg.HTTP.CORSOrigins
		engine.Use(middleware.CORSWithConfig(corsCfg))
	}

	health := handler.NewHealthHandler(db)
	engine.GET("/healthz", health.Healthz)
	engine.GET("/ready", health.Ready)

	router.NewRouter(engine).
		Register(handler.NewBaselineHandler(lifecycle)).
		Register(handler.NewForecastHandler(forecasts)).
		Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("Shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func newIdempotencyStore(cfg *config.Config) (shared.IdempotencyStore, error) {
	switch cfg.Idempotency.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return cache.NewRedisIdempotencyStore(client), nil
	default:
		return cache.NewInMemoryIdempotencyStore(), nil
	}
}
