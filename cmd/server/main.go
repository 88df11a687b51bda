package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zombar/knowledgegraph/internal/api"
	"github.com/zombar/knowledgegraph/internal/database"
	"github.com/zombar/knowledgegraph/internal/pipeline"
	"github.com/zombar/knowledgegraph/internal/queue"
	"github.com/zombar/knowledgegraph/pkg/logging"
	"github.com/zombar/knowledgegraph/pkg/metrics"
	"github.com/zombar/knowledgegraph/pkg/tracing"
)

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("knowledgegraph service initializing", "version", "1.0.0")

	// Initialize tracing
	tp, err := tracing.InitTracer("knowledgegraph-server")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	// Get default values from environment variables, with fallbacks
	portDefault := getEnv("PORT", "8080")
	dbPathDefault := getEnv("DB_PATH", "knowledgegraph.db")
	redisAddrDefault := getEnv("REDIS_ADDR", "localhost:6379")
	useQueueDefault := getEnvBool("USE_QUEUE", false)

	var (
		port      = flag.String("port", portDefault, "Server port (env: PORT)")
		dbPath    = flag.String("db", dbPathDefault, "SQLite database path (env: DB_PATH)")
		redisAddr = flag.String("redis", redisAddrDefault, "Redis address for the task queue (env: REDIS_ADDR)")
		useQueue  = flag.Bool("queue", useQueueDefault, "Enable async analysis via the task queue (env: USE_QUEUE)")
	)
	flag.Parse()

	// Initialize database
	db, err := database.New(*dbPath)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", *dbPath)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", *dbPath)

	// Initialize database metrics
	dbMetrics := metrics.NewDatabaseMetrics("knowledgegraph")
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			dbMetrics.UpdateDBStats(db.Conn())
		}
	}()

	// Initialize the analysis pipeline on the shared NLP model
	p := pipeline.Default()

	// Optional queue client for async analysis
	var queueClient api.QueueClient
	if *useQueue {
		qc := queue.NewClient(queue.ClientConfig{RedisAddr: *redisAddr})
		defer qc.Close()
		queueClient = qc
		logger.Info("task queue enabled", "redis", *redisAddr)
	}

	apiHandler := api.NewHandler(db, p, queueClient)

	// Wrap handler with middleware chain: HTTP logging -> tracing -> handlers
	handler := logging.HTTPLoggingMiddleware(logger)(
		tracing.HTTPMiddleware("knowledgegraph")(apiHandler),
	)

	srv := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("knowledgegraph service starting",
			"port", *port,
			"database", *dbPath,
			"queue_enabled", *useQueue,
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
