package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/zombar/knowledgegraph/internal/database"
	"github.com/zombar/knowledgegraph/internal/ollama"
	"github.com/zombar/knowledgegraph/internal/pipeline"
	"github.com/zombar/knowledgegraph/pkg/metrics"
)

// Worker wraps the Asynq server for processing tasks
type Worker struct {
	server          *asynq.Server
	mux             *asynq.ServeMux
	db              *database.DB
	pipeline        *pipeline.Pipeline
	ollamaClient    *ollama.Client
	queueClient     *Client
	concurrency     int
	logger          *slog.Logger
	pipelineMetrics *metrics.PipelineMetrics
}

// WorkerConfig contains configuration for the queue worker
type WorkerConfig struct {
	RedisAddr   string
	Concurrency int
}

// NewWorker creates a new queue worker. ollamaClient may be nil, in which
// case enrichment tasks are skipped.
func NewWorker(
	cfg WorkerConfig,
	db *database.DB,
	p *pipeline.Pipeline,
	ollamaClient *ollama.Client,
	queueClient *Client,
) *Worker {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	serverCfg := asynq.Config{
		// Concurrency determines how many documents are analyzed in parallel
		Concurrency: cfg.Concurrency,

		// Queue priority: higher value = higher priority. Rule-based
		// analysis outranks LLM enrichment so fresh documents are never
		// starved by slow Ollama calls.
		Queues: map[string]int{
			"analysis":   6,
			"enrichment": 3,
		},

		// false means queues are processed proportionally
		StrictPriority: false,

		RetryDelayFunc: retryDelay,

		ShutdownTimeout: 30 * time.Second,

		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)

			slog.Error("task processing error",
				"task_type", task.Type(),
				"error", err,
				"retry_count", retried,
				"max_retries", maxRetry,
			)
		}),
	}

	server := asynq.NewServer(redisOpt, serverCfg)
	mux := asynq.NewServeMux()

	w := &Worker{
		server:          server,
		mux:             mux,
		db:              db,
		pipeline:        p,
		ollamaClient:    ollamaClient,
		queueClient:     queueClient,
		concurrency:     cfg.Concurrency,
		logger:          slog.Default(),
		pipelineMetrics: metrics.NewPipelineMetrics("knowledgegraph"),
	}

	w.registerHandlers()

	return w
}

// retryDelay backs off aggressively for Ollama enrichment and modestly for
// rule-based analysis.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	if task.Type() == TypeEnrichGraph {
		// 30s, 1m, 2m, 5m, 10m, 20m, 30m, 1h, 2h, 4h
		delays := []time.Duration{
			30 * time.Second,
			1 * time.Minute,
			2 * time.Minute,
			5 * time.Minute,
			10 * time.Minute,
			20 * time.Minute,
			30 * time.Minute,
			1 * time.Hour,
			2 * time.Hour,
			4 * time.Hour,
		}
		if n < len(delays) {
			return delays[n]
		}
		return delays[len(delays)-1]
	}

	delays := []time.Duration{
		1 * time.Minute,
		5 * time.Minute,
		15 * time.Minute,
	}
	if n < len(delays) {
		return delays[n]
	}
	return delays[len(delays)-1]
}

// registerHandlers registers all task handlers with the worker
func (w *Worker) registerHandlers() {
	w.mux.HandleFunc(TypeProcessDocument, w.handleProcessDocument)
	w.mux.HandleFunc(TypeEnrichGraph, w.handleEnrichGraph)
}

// Start starts the worker to begin processing tasks
func (w *Worker) Start() error {
	w.logger.Info("starting asynq worker",
		"concurrency", w.concurrency,
		"queues", map[string]int{"analysis": 6, "enrichment": 3},
	)

	// Run is blocking - starts processing tasks
	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the worker
func (w *Worker) Shutdown() {
	w.logger.Info("shutting down asynq worker")
	w.server.Shutdown()
}

// Server returns the underlying Asynq server (for testing)
func (w *Worker) Server() *asynq.Server {
	return w.server
}
