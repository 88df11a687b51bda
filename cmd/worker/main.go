package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/zombar/knowledgegraph/internal/database"
	"github.com/zombar/knowledgegraph/internal/nlp"
	"github.com/zombar/knowledgegraph/internal/ollama"
	"github.com/zombar/knowledgegraph/internal/pipeline"
	"github.com/zombar/knowledgegraph/internal/queue"
	"github.com/zombar/knowledgegraph/pkg/tracing"
)

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("knowledgegraph worker initializing", "version", "1.0.0")

	// Initialize tracing
	tp, err := tracing.InitTracer("knowledgegraph-worker")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
	}

	// Get default values from environment variables, with fallbacks
	dbPathDefault := getEnv("DB_PATH", "knowledgegraph.db")
	redisAddrDefault := getEnv("REDIS_ADDR", "localhost:6379")
	concurrencyDefault := getEnvInt("WORKER_CONCURRENCY", 4)
	ollamaURLDefault := getEnv("OLLAMA_URL", "http://localhost:11434")
	ollamaModelDefault := getEnv("OLLAMA_MODEL", "gpt-oss:20b")
	useOllamaDefault := getEnvBool("USE_OLLAMA", false)
	ollamaTaggerDefault := getEnvBool("OLLAMA_TAGGER", false)

	var (
		dbPath       = flag.String("db", dbPathDefault, "SQLite database path (env: DB_PATH)")
		redisAddr    = flag.String("redis", redisAddrDefault, "Redis address (env: REDIS_ADDR)")
		concurrency  = flag.Int("concurrency", concurrencyDefault, "Worker concurrency (env: WORKER_CONCURRENCY)")
		ollamaURL    = flag.String("ollama-url", ollamaURLDefault, "Ollama server URL (env: OLLAMA_URL)")
		ollamaModel  = flag.String("ollama-model", ollamaModelDefault, "Ollama model (env: OLLAMA_MODEL)")
		useOllama    = flag.Bool("use-ollama", useOllamaDefault, "Enable LLM graph enrichment (env: USE_OLLAMA)")
		ollamaTagger = flag.Bool("ollama-tagger", ollamaTaggerDefault, "Use LLM-assisted entity tagging (env: OLLAMA_TAGGER)")
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

	// Optional Ollama client for graph enrichment
	var ollamaClient *ollama.Client
	if *useOllama {
		ollamaClient, err = ollama.New(*ollamaURL, *ollamaModel)
		if err != nil {
			logger.Warn("failed to initialize Ollama client, enrichment disabled",
				"error", err,
				"ollama_url", *ollamaURL,
			)
			ollamaClient = nil
		} else {
			logger.Info("Ollama enrichment enabled", "url", *ollamaURL, "model", *ollamaModel)
		}
	}

	queueClient := queue.NewClient(queue.ClientConfig{RedisAddr: *redisAddr})
	defer queueClient.Close()

	// LLM-assisted tagging with rule-based fallback, opt-in. The prose
	// tagger remains the default and the fallback either way.
	p := pipeline.Default()
	if *ollamaTagger && ollamaClient != nil {
		p = pipeline.New(ollama.NewTagger(ollamaClient, nlp.Default()), nlp.Default(), pipeline.DefaultConfig())
		logger.Info("LLM-assisted entity tagging enabled")
	}

	worker := queue.NewWorker(
		queue.WorkerConfig{
			RedisAddr:   *redisAddr,
			Concurrency: *concurrency,
		},
		db,
		p,
		ollamaClient,
		queueClient,
	)

	// Run the worker until interrupted
	go func() {
		if err := worker.Start(); err != nil {
			logger.Error("worker failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	worker.Shutdown()
	logger.Info("worker stopped")
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

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
