// cmd/optimizer-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"compat-optimizer/internal/admin"
	"compat-optimizer/internal/approx"
	"compat-optimizer/internal/assets"
	"compat-optimizer/internal/batch"
	"compat-optimizer/internal/calculator"
	"compat-optimizer/internal/common/config"
	"compat-optimizer/internal/common/database"
	"compat-optimizer/internal/common/logger"
	"compat-optimizer/internal/common/observability"
	"compat-optimizer/internal/jobqueue"
	"compat-optimizer/internal/loader"
	"compat-optimizer/internal/optimizer"
	"compat-optimizer/internal/scorecache"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting optimizer service...",
		zap.String("profile", cfg.Optimizer.Profile),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New("optimizer-service")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Wire the optimization layer ---
	assetMgr := assets.NewManager(cfg.CDN.Endpoint, config.GetDuration(cfg.CDN.Timeout), log)

	scoreCache := scorecache.New(
		redisClient.Client,
		config.GetSeconds(cfg.Optimizer.ApproxCacheTTL),
		config.GetSeconds(cfg.Optimizer.ExactCacheTTL),
		log,
	)

	calc := calculator.New(pg.DB, redisClient.Client, assetMgr, config.GetSeconds(cfg.Optimizer.ProfileTTL), log)
	engine := approx.New(assetMgr, log)

	scoreLoader := loader.New(scoreCache, calc, engine, loader.Config{
		QuickTTL:          config.GetSeconds(cfg.Optimizer.QuickCacheTTL),
		ChunkSize:         cfg.Optimizer.BatchChunkSize,
		PrefetchLookahead: cfg.Optimizer.PrefetchLookahead,
	}, log)

	batchProcessor := batch.New(scoreLoader, cfg.Optimizer.BatchChunkSize, log)

	queue := jobqueue.New(batchProcessor, jobqueue.Config{
		Workers:  cfg.Optimizer.Queue.Workers,
		Capacity: cfg.Optimizer.Queue.Capacity,
		Timeout:  config.GetDuration(cfg.Optimizer.Queue.Timeout),
	}, log)
	queue.Start()

	coordinator, err := optimizer.NewCoordinator(
		scoreCache, scoreLoader, engine, batchProcessor, queue, obs,
		cfg.Optimizer.Profile, log,
	)
	if err != nil {
		zapLog.Fatal("coordinator init failed", zap.Error(err))
	}

	adminHandler := admin.NewHandler(coordinator, queue, scoreLoader, log)

	// --- HTTP server ---
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Mount("/", adminHandler.Routes())
	router.Mount("/assets", assetMgr.Routes())

	server := &http.Server{
		Addr:    cfg.Server.ListenAddress,
		Handler: router,
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.ListenAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Metrics and pprof on the side port.
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		zapLog.Info("Metrics server listening", zap.String("address", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			zapLog.Error("metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("http server shutdown failed", zap.Error(err))
	}

	queue.Stop()
	coordinator.Wait()
	scoreLoader.Wait()

	zapLog.Info("Optimizer service stopped")
}
