package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhub/dashboard-api/internal/cache"
	"github.com/studyhub/dashboard-api/internal/config"
	"github.com/studyhub/dashboard-api/internal/database"
	"github.com/studyhub/dashboard-api/internal/feed"
	"github.com/studyhub/dashboard-api/internal/logger"
	"github.com/studyhub/dashboard-api/internal/stats"
	"github.com/studyhub/dashboard-api/internal/workers"
)

func main() {
	// Parse command-line flags
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	// Initialize logger
	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if syncErr := zapLogger.Sync(); syncErr != nil {
			// Ignore sync errors in production
			_ = syncErr
		}
	}()

	zapLogger.Info("Starting worker",
		zap.Bool("debug_mode", debugMode),
		zap.Duration("refresh_debounce", cfg.RefreshDebounce),
	)

	// Initialize database connection
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("Failed to close database connection", zap.Error(err))
		}
	}()

	zapLogger.Info("Connected to database")

	// Initialize repositories
	activityRepo := database.NewActivityRepository(db)
	aggregateRepo := database.NewAggregateRepository(db)

	// Redis mirror so patched snapshots are visible to the API servers
	redisStore, err := cache.NewRedisStore(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisStore.Close(); err != nil {
			zapLogger.Warn("Failed to close Redis connection", zap.Error(err))
		}
	}()

	zapLogger.Info("Connected to Redis")

	snapCache := cache.New(redisStore, cfg.CacheTTL, zapLogger)
	aggregator := stats.NewAggregator(activityRepo, aggregateRepo, snapCache, stats.Options{
		StepTimeout:      cfg.StepTimeout,
		StepDelay:        cfg.StepDelay,
		CountRetryDelay:  cfg.CountRetryDelay,
		FallbackRowLimit: cfg.FallbackRowLimit,
	}, zapLogger)
	defer aggregator.Close()

	// Debounced refresh falls back to a full forced recompute. The refresh
	// runs on a background context: it must outlive the event that asked
	// for it.
	refresh := func(userID uuid.UUID) {
		if _, err := aggregator.Fetch(context.Background(), userID, true); err != nil {
			zapLogger.Error("Failed to refresh stats",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
	}

	patcher := stats.NewPatcher(snapCache, refresh, cfg.RefreshDebounce, zapLogger)
	defer patcher.Close()

	// Connect to the RabbitMQ change feed
	changeFeed, err := feed.NewRabbitMQFeed(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer func() {
		if err := changeFeed.Close(); err != nil {
			zapLogger.Warn("Failed to close RabbitMQ connection", zap.Error(err))
		}
	}()

	zapLogger.Info("Connected to RabbitMQ",
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
	)

	patchWorker := workers.NewPatchWorker(patcher, zapLogger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start consuming change events
	msgChan, errChan, err := changeFeed.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("Failed to start consuming messages", zap.Error(err))
	}

	zapLogger.Info("Worker started, consuming change events")

	// Process messages
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgChan:
				if !ok {
					zapLogger.Info("Message channel closed")
					return
				}

				if err := patchWorker.ProcessMessage(ctx, msg); err != nil {
					ev := msg.GetEvent()
					zapLogger.Error("Failed to process change event",
						zap.Error(err),
						zap.String("event_id", ev.EventID),
						zap.String("table", string(ev.Table)),
					)
				}
			}
		}
	}()

	// Handle feed errors
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if !ok {
					return
				}
				zapLogger.Error("Change feed error", zap.Error(err))
			}
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	zapLogger.Info("Shutdown signal received, stopping worker...")

	// Cancel context to stop processing
	cancel()

	zapLogger.Info("Worker stopped")
}
