package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lumenlake/catalog-engine/pkg/cache"
	"github.com/lumenlake/catalog-engine/pkg/config"
	"github.com/lumenlake/catalog-engine/pkg/database"
	"github.com/lumenlake/catalog-engine/pkg/handlers"
	"github.com/lumenlake/catalog-engine/pkg/logging"
	"github.com/lumenlake/catalog-engine/pkg/middleware"
	"github.com/lumenlake/catalog-engine/pkg/repositories"
	"github.com/lumenlake/catalog-engine/pkg/retry"
	"github.com/lumenlake/catalog-engine/pkg/services"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("ingest_workers", cfg.Ingest.MaxWorkers))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	cacheBackend, err := buildCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to cache backend", zap.Error(err))
	}
	cacheLoader := cache.NewLoader(cacheBackend)

	tableRepo := repositories.NewTableRepository(db)
	columnRepo := repositories.NewColumnRepository(db)
	relRepo := repositories.NewRelationshipRepository(db)
	jobRepo := repositories.NewJobRepository(db)
	searchRepo := repositories.NewSearchRepository(db)

	profiler := services.NewProfiler(cfg.Ingest, logger)
	builder := services.NewLineageBuilder(tableRepo, relRepo, logger)
	lineageQuery := services.NewLineageQuery(tableRepo, relRepo, logger)
	catalog := services.NewCatalogService(cfg.Cache, tableRepo, columnRepo,
		searchRepo, jobRepo, lineageQuery, cacheLoader, logger)

	jobManager := services.NewJobManager(cfg.Ingest, jobRepo, tableRepo,
		profiler, builder, cacheLoader, logger)
	jobManager.Start(ctx)
	defer jobManager.Stop()

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewDatasetHandler(cfg.Ingest, jobManager, logger).RegisterRoutes(mux)
	handlers.NewTableHandler(catalog, builder, logger).RegisterRoutes(mux)
	handlers.NewLineageHandler(catalog, logger).RegisterRoutes(mux)
	handlers.NewSearchHandler(catalog, logger).RegisterRoutes(mux)
	handlers.NewAnalyticsHandler(catalog, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         cfg.BindAddr + ":" + cfg.Port,
		Handler:      middleware.RequestLogger(logger)(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting catalog-engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}

// connectDatabase opens the pgx pool with retry so a container start does
// not race its database.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	return retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL(),
			MaxConnections: cfg.Database.MaxConnections,
		})
		if err != nil {
			logger.Warn("database connection failed, retrying",
				zap.String("url", logging.SanitizeConnectionString(cfg.Database.URL())))
			return nil, err
		}
		return db, nil
	})
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
}

// buildCache picks the cache backend: Redis when configured, otherwise the
// in-process map.
func buildCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	client, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		logger.Info("using in-memory cache")
		return cache.NewMemory(), nil
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	logger.Info("using redis cache", zap.String("host", cfg.Redis.Host))
	return cache.NewRedis(client), nil
}
