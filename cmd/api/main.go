package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devhappys/kutt-sub000/internal/config"
	"github.com/devhappys/kutt-sub000/internal/handler"
	"github.com/devhappys/kutt-sub000/internal/logger"
	"github.com/devhappys/kutt-sub000/internal/middleware"
	"github.com/devhappys/kutt-sub000/internal/quota"
	"github.com/devhappys/kutt-sub000/internal/redirect"
	"github.com/devhappys/kutt-sub000/internal/repository/memory"
	"github.com/devhappys/kutt-sub000/internal/repository/postgres"
	redisRepo "github.com/devhappys/kutt-sub000/internal/repository/redis"
	"github.com/devhappys/kutt-sub000/internal/stats"
	"github.com/devhappys/kutt-sub000/internal/visit"
	"github.com/devhappys/kutt-sub000/pkg/geo"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	memstore "github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	loggerConfig := logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}

	if err := logger.Initialize(loggerConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	log := logger.Get()
	log.Info("Starting link redirect service",
		"port", cfg.Server.Port,
		"log_level", cfg.Log.Level,
		"queue_mode", cfg.Queue.Mode,
		"rate_limit_store", cfg.RateLimit.Store,
	)

	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Error("Failed to setup database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	redisClient, err := setupRedis(cfg)
	if err != nil {
		log.Error("Failed to setup redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	locator, closeLocator := setupGeo(cfg, log)
	defer closeLocator()

	linkRepo := postgres.NewLinkRepository(dbPool)
	ruleRepo := postgres.NewRuleRepository(dbPool)
	bucketRepo := postgres.NewBucketRepository(dbPool)
	visitRepo := postgres.NewVisitRepository(dbPool)

	linkStore := redisRepo.NewCachedLinkStore(linkRepo, redisRepo.NewLinkCache(redisClient), cfg.LinkCache.TTL)
	statsCache := redisRepo.NewStatsCache(redisClient)

	processor := visit.NewProcessor(linkRepo, bucketRepo, visitRepo, locator)
	queue, queueReporter := setupQueue(cfg, redisClient, processor)

	queueCtx, stopQueue := context.WithCancel(context.Background())
	defer stopQueue()
	queue.Start(queueCtx)

	resolver := redirect.NewResolver(
		linkStore,
		ruleRepo,
		setupRateLimitStore(cfg, redisClient),
		quota.NewTracker(linkRepo),
		queue,
		locator,
		redirect.Options{
			BannedURL:       cfg.Redirect.BannedURL,
			NotFoundURL:     cfg.Redirect.NotFoundURL,
			DecisionTimeout: cfg.Redirect.DecisionTimeout,
		},
	)
	statsService := stats.NewService(linkRepo, bucketRepo, visitRepo, statsCache, cfg.Stats.CacheTTL)

	apiLimiter, err := setupAPILimiter(cfg, redisClient)
	if err != nil {
		log.Error("Failed to setup API rate limiter", "error", err)
		os.Exit(1)
	}

	redirectHandler := handler.NewRedirectHandler(resolver, cfg.Server.DefaultDomain)
	analyticsHandler := handler.NewAnalyticsHandler(statsService)
	healthHandler := handler.NewHealthHandler(dbPool, redisClient, queueReporter, version)

	router, err := setupRouter(cfg, redirectHandler, analyticsHandler, healthHandler, apiLimiter)
	if err != nil {
		log.Error("Failed to setup router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	gracefulShutdown(srv, cfg.Server.ShutdownTimeout, queue, stopQueue, log)
}

func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	dbConfig := cfg.Database
	poolConfig, err := pgxpool.ParseConfig(dbConfig.URL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(dbConfig.MaxConns)
	poolConfig.MinConns = int32(dbConfig.MinConns)
	poolConfig.MaxConnLifetime = dbConfig.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = dbConfig.MaxConnIdleTime

	dbPool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, err
	}

	return dbPool, nil
}

func setupRedis(cfg *config.Config) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
	})

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return redisClient, nil
}

// setupGeo falls back to header hints only when no database is configured or
// it cannot be opened.
func setupGeo(cfg *config.Config, log *slog.Logger) (geo.Locator, func()) {
	if cfg.Geo.DatabasePath == "" {
		log.Warn("No GeoIP database configured, geo lookups disabled")
		return geo.NopLocator{}, func() {}
	}

	locator, err := geo.OpenMaxMind(cfg.Geo.DatabasePath)
	if err != nil {
		log.Error("Failed to open GeoIP database, geo lookups disabled", "error", err)
		return geo.NopLocator{}, func() {}
	}

	return locator, func() {
		if err := locator.Close(); err != nil {
			log.Error("Error closing GeoIP database", "error", err)
		}
	}
}

// setupQueue returns the visit queue and, for the durable mode, its depth
// reporter for readiness checks.
func setupQueue(cfg *config.Config, redisClient *redis.Client, processor *visit.Processor) (visit.Queue, handler.QueueReporter) {
	if cfg.Queue.Mode == config.QueueModeInProcess {
		return visit.NewInProcessQueue(processor, cfg.Queue.InFlightLimit, cfg.Queue.JobTimeout), nil
	}

	durable := visit.NewDurableQueue(redisClient, processor, visit.DurableConfig{
		Name:          cfg.Queue.Name,
		Concurrency:   cfg.Queue.Concurrency,
		MaxRetries:    cfg.Queue.MaxRetries,
		StallTimeout:  cfg.Queue.StallTimeout,
		SweepInterval: cfg.Queue.SweepInterval,
		JobTimeout:    cfg.Queue.JobTimeout,
		FailedLimit:   cfg.Queue.FailedLimit,
	})
	return durable, durable
}

func setupRateLimitStore(cfg *config.Config, redisClient *redis.Client) redirect.RateLimitStore {
	if cfg.RateLimit.Store == config.RateLimitStoreMemory {
		return memory.NewRateLimitStore()
	}
	return redisRepo.NewRateLimitStore(redisClient)
}

func setupAPILimiter(cfg *config.Config, redisClient *redis.Client) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.RateLimit.API)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_API: %w", err)
	}

	opts := limiter.StoreOptions{
		Prefix:          "api_limit",
		CleanUpInterval: time.Minute,
	}
	if cfg.RateLimit.Store == config.RateLimitStoreMemory {
		return middleware.RateLimit(memstore.NewStoreWithOptions(opts), rate), nil
	}

	store, err := sredis.NewStoreWithOptions(redisClient, opts)
	if err != nil {
		return nil, err
	}

	return middleware.RateLimit(store, rate), nil
}

func setupRouter(
	cfg *config.Config,
	redirectHandler *handler.RedirectHandler,
	analyticsHandler *handler.AnalyticsHandler,
	healthHandler *handler.HealthHandler,
	apiLimiter gin.HandlerFunc,
) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, err
	}

	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	// health check
	router.GET("/healthz", healthHandler.Healthz)
	router.GET("/readyz", healthHandler.Readyz)

	api := router.Group("/api", apiLimiter)
	{
		links := api.Group("/links/:id")
		links.GET("/stats", analyticsHandler.GetStats)
		links.GET("/visits", analyticsHandler.GetVisits)
		links.GET("/visits/export", analyticsHandler.ExportVisits)
		links.GET("/heatmap", analyticsHandler.GetHeatmap)
		links.GET("/utm", analyticsHandler.GetUTM)
		links.GET("/devices", analyticsHandler.GetDevices)
		links.GET("/active", analyticsHandler.GetActiveVisitors)

		api.GET("/funnel", analyticsHandler.GetFunnel)
		api.GET("/compare", analyticsHandler.GetComparison)
	}

	router.GET("/:address", redirectHandler.Redirect)
	router.POST("/:address/password", redirectHandler.VerifyPassword)

	return router, nil
}

func gracefulShutdown(srv *http.Server, timeout time.Duration, queue io.Closer, stopQueue context.CancelFunc, log *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown", "error", err)
	}

	// Stop accepting new jobs before draining the ones already running.
	stopQueue()
	if err := queue.Close(); err != nil {
		log.Error("Error closing visit queue", "error", err)
	}
	log.Info("Visit queue drained")

	log.Info("Graceful shutdown completed")
}
