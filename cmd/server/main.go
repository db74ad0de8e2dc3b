package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/studyhub/dashboard-api/internal/cache"
	"github.com/studyhub/dashboard-api/internal/config"
	"github.com/studyhub/dashboard-api/internal/database"
	"github.com/studyhub/dashboard-api/internal/feed"
	"github.com/studyhub/dashboard-api/internal/handlers"
	"github.com/studyhub/dashboard-api/internal/logger"
	"github.com/studyhub/dashboard-api/internal/middleware"
	"github.com/studyhub/dashboard-api/internal/services/ai"
	"github.com/studyhub/dashboard-api/internal/stats"
	"github.com/studyhub/dashboard-api/internal/telemetry"
)

func main() {
	// Parse command-line flags
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

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

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("ai_model", cfg.AIModel),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// Initialize OpenTelemetry if enabled
	var tracerProvider interface{ Shutdown(context.Context) error }
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(context.Background(), "dashboard-api", cfg.OTELEndpoint)
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				tracerProvider = tp
				zapLogger.Info("otel_tracer_initialized",
					zap.String("endpoint", cfg.OTELEndpoint),
				)
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	// Connect to database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	// Connect to Redis for rate limiting
	redisLimiter, err := middleware.NewRedisRateLimiter(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := redisLimiter.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	// Redis mirror for cached snapshots (separate connection from the limiter)
	redisStore, err := cache.NewRedisStore(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis_store", zap.Error(err))
	}
	defer func() {
		if err := redisStore.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_store", zap.Error(err))
		}
	}()

	// Connect to RabbitMQ for the change feed (required).
	// Retry with exponential backoff to handle RabbitMQ startup delays.
	changeFeed, err := connectFeed(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
	}
	defer func() {
		if err := changeFeed.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	// Initialize repositories
	activityRepo := database.NewActivityRepository(db)
	aggregateRepo := database.NewAggregateRepository(db)

	// Snapshot cache and aggregator
	snapCache := cache.New(redisStore, cfg.CacheTTL, zapLogger)
	aggregator := stats.NewAggregator(activityRepo, aggregateRepo, snapCache, stats.Options{
		StepTimeout:      cfg.StepTimeout,
		StepDelay:        cfg.StepDelay,
		CountRetryDelay:  cfg.CountRetryDelay,
		FallbackRowLimit: cfg.FallbackRowLimit,
	}, zapLogger)
	defer aggregator.Close()

	// Initialize AI provider
	insightsProvider, err := createInsightsProvider(cfg, zapLogger, debugMode)
	if err != nil {
		zapLogger.Warn("failed_to_create_ai_provider_insights_disabled", zap.Error(err))
		insightsProvider = nil
	}

	// JWT authentication against the identity provider's JWKS
	authenticator, err := middleware.NewAuthenticator(context.Background(), cfg.JWKSURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_initialize_authenticator", zap.Error(err))
	}

	rateLimitMW, err := middleware.RateLimit(redisLimiter.Client(), cfg.RateLimit)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	// Initialize handlers
	statsHandler := handlers.NewStatsHandler(aggregator, snapCache, zapLogger)
	insightsHandler := handlers.NewInsightsHandler(insightsProvider, snapCache, zapLogger)
	healthChecker := handlers.NewHealthChecker(db, redisLimiter, changeFeed)

	// Setup router
	r := mux.NewRouter()

	// Note: In gorilla/mux, middleware registered first wraps outermost
	zapLogger.Info("setting_up_middleware")

	if cfg.OTELEnabled && tracerProvider != nil {
		r.Use(otelmux.Middleware("dashboard-api"))
		zapLogger.Info("otel_middleware_enabled")
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	// Public routes (no auth, no rate limiting for health checks)
	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")

	// Dashboard routes (protected)
	dashboardRouter := r.PathPrefix("/api/v1/dashboard").Subrouter()
	dashboardRouter.Use(authenticator.Middleware)
	dashboardRouter.Use(rateLimitMW)
	dashboardRouter.HandleFunc("/stats", statsHandler.GetStats).Methods("GET")
	dashboardRouter.HandleFunc("/stats/state", statsHandler.GetFetchState).Methods("GET")
	dashboardRouter.HandleFunc("/cache", statsHandler.ClearCache).Methods("DELETE")
	dashboardRouter.HandleFunc("/insights", insightsHandler.GetInsights).Methods("GET")

	// Catch-all OPTIONS handler for preflight requests; the CORS middleware
	// sets the headers before this is called
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	// DLQ garbage collector: run every hour, retain dead letters for 24 hours
	gcCtx, gcCancel := context.WithCancel(context.Background())
	defer gcCancel()
	dlqGC := feed.NewGarbageCollector(changeFeed, 1*time.Hour, 24*time.Hour, zapLogger)
	go func() {
		if err := dlqGC.Start(gcCtx); err != nil && err != context.Canceled {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()
	zapLogger.Info("started_dlq_garbage_collector",
		zap.Duration("interval", 1*time.Hour),
		zap.Duration("retention", 24*time.Hour),
	)

	// Start server in a goroutine
	go func() {
		zapLogger.Info("server_starting",
			zap.String("port", cfg.ServerPort),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	gcCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// connectFeed dials RabbitMQ with exponential backoff
func connectFeed(amqpURL string, zapLogger *zap.Logger) (*feed.RabbitMQFeed, error) {
	const maxRetries = 10
	const initialDelay = 2 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		changeFeed, err := feed.NewRabbitMQFeed(amqpURL)
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq")
			return changeFeed, nil
		}

		lastErr = err
		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, lastErr)
}

// createInsightsProvider creates an AI provider based on configuration
func createInsightsProvider(cfg *config.Config, zapLogger *zap.Logger, debugMode bool) (ai.InsightsProvider, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}

	return ai.NewOpenAIProviderWithLogger(
		cfg.OpenAIKey,
		cfg.AIBaseURL,
		cfg.AIModel,
		zapLogger,
		debugMode,
	), nil
}
