package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/knowledgegraph/internal/graph"
	"github.com/zombar/knowledgegraph/internal/models"
	"github.com/zombar/knowledgegraph/internal/ollama"
	"github.com/zombar/knowledgegraph/internal/pipeline"
	"github.com/zombar/knowledgegraph/internal/relations"
	"github.com/zombar/knowledgegraph/pkg/tracing"
)

// handleProcessDocument runs the full analysis pipeline over one queued
// document and stores the result.
func (w *Worker) handleProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload ProcessDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %w", err)
	}

	var queueWaitTime time.Duration
	if payload.EnqueuedAt > 0 {
		enqueuedTime := time.Unix(0, payload.EnqueuedAt)
		queueWaitTime = time.Since(enqueuedTime)
	}

	w.logger.Info("processing document",
		"analysis_id", payload.AnalysisID,
		"text_length", len(payload.Text),
		"source", payload.Source,
		"queue_wait_seconds", queueWaitTime.Seconds(),
	)

	// Recreate trace context from payload if available
	var span trace.Span
	if payload.TraceID != "" && payload.SpanID != "" {
		ctx = tracing.ContextWithRemoteSpan(ctx, payload.TraceID, payload.SpanID)
		ctx, span = otel.Tracer("knowledgegraph").Start(ctx, "asynq.task.process",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("task.type", TypeProcessDocument),
				attribute.String("analysis.id", payload.AnalysisID),
				attribute.Int("text.length", len(payload.Text)),
				attribute.Float64("queue.wait_time_seconds", queueWaitTime.Seconds()),
			),
		)
		defer span.End()
	}

	start := time.Now()
	result, err := w.pipeline.Analyze(ctx, payload.Text)
	w.pipelineMetrics.AnalysisSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		w.pipelineMetrics.AnalysesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("analysis failed: %w", err)
	}

	// The queue task id is the analysis id; keep the stored result under it
	// so status lookups line up.
	result.ID = payload.AnalysisID

	status := "ok"
	if result.Partial {
		status = "partial"
	}
	w.pipelineMetrics.AnalysesTotal.WithLabelValues(status).Inc()
	w.pipelineMetrics.EntitiesPerRun.Observe(float64(len(result.Entities)))
	w.pipelineMetrics.TriplesPerRun.Observe(float64(len(result.Triples)))
	w.pipelineMetrics.GraphNodes.Observe(float64(result.Graph.NodeCount))
	w.pipelineMetrics.GraphEdges.Observe(float64(result.Graph.EdgeCount))

	if err := w.db.SaveResult(result, payload.Source); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	w.logger.Info("analysis saved",
		"analysis_id", result.ID,
		"entities", len(result.Entities),
		"triples", len(result.Triples),
		"nodes", result.Graph.NodeCount,
		"edges", result.Graph.EdgeCount,
		"partial", result.Partial,
	)

	// Queue LLM enrichment when an Ollama client is configured and the
	// rule-based pass produced entities to relate.
	if w.ollamaClient != nil && len(result.Entities) >= 2 {
		if _, err := w.queueClient.EnqueueEnrichGraph(ctx, result.ID); err != nil {
			w.logger.Error("failed to enqueue graph enrichment", "error", err)
			// Don't fail the task if enrichment enqueue fails
		}
	}

	return nil
}

// handleEnrichGraph augments a stored result with LLM-extracted relations
// and rebuilds the graph.
func (w *Worker) handleEnrichGraph(ctx context.Context, t *asynq.Task) error {
	if w.ollamaClient == nil {
		w.logger.Warn("enrichment task received but Ollama is not configured")
		return nil
	}

	var payload EnrichGraphPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %w", err)
	}

	if payload.TraceID != "" && payload.SpanID != "" {
		ctx = tracing.ContextWithRemoteSpan(ctx, payload.TraceID, payload.SpanID)
		var span trace.Span
		ctx, span = otel.Tracer("knowledgegraph").Start(ctx, "asynq.task.enrich",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("task.type", TypeEnrichGraph),
				attribute.String("analysis.id", payload.AnalysisID),
			),
		)
		defer span.End()
	}

	result, err := w.db.GetResult(payload.AnalysisID)
	if err != nil {
		return fmt.Errorf("failed to load result: %w", err)
	}
	if result == nil {
		w.logger.Warn("enrichment target no longer exists", "analysis_id", payload.AnalysisID)
		return nil
	}

	labels := make([]string, 0, len(result.Entities))
	byLabel := make(map[string]string, len(result.Entities))
	for _, e := range result.Entities {
		labels = append(labels, e.Label)
		byLabel[strings.ToLower(e.Label)] = e.ID
	}
	sort.Strings(labels)

	raw, err := w.ollamaClient.ExtractRelations(ctx, result.Text.Text, labels)
	if err != nil {
		return fmt.Errorf("LLM relation extraction failed: %w", err)
	}

	added := mergeRelations(result, raw, byLabel)

	if result.Summary == "" {
		summary, err := w.ollamaClient.Summarize(ctx, result.Text.Text)
		if err != nil {
			// A missing summary is not worth a retry cycle.
			w.logger.Warn("summary generation failed", "analysis_id", result.ID, "error", err)
		} else {
			result.Summary = summary
		}
	}

	if added == 0 && result.Summary == "" {
		w.logger.Info("nothing new from enrichment", "analysis_id", result.ID)
		return nil
	}

	if added > 0 {
		result.Graph = graph.NewBuilder(w.pipeline.GraphConfig()).Build(result.Entities, result.Triples)
		if err := pipeline.Validate(result); err != nil {
			return fmt.Errorf("enriched result failed validation: %w", err)
		}
	}
	result.UpdatedAt = time.Now().UTC()

	if err := w.db.SaveResult(result, ""); err != nil {
		return fmt.Errorf("failed to save enriched result: %w", err)
	}

	w.logger.Info("graph enrichment saved",
		"analysis_id", result.ID,
		"added_triples", added,
		"edges", result.Graph.EdgeCount,
	)
	return nil
}

// mergeRelations resolves raw LLM statements against the canonical entity
// set and appends the ones not already present. Unresolvable participants
// and self-loops are dropped.
func mergeRelations(result *models.AnalysisResult, raw []ollama.RawRelation, byLabel map[string]string) int {
	seen := make(map[string]bool, len(result.Triples))
	for _, t := range result.Triples {
		seen[t.SubjectID+"|"+t.Predicate+"|"+t.ObjectID] = true
	}

	added := 0
	for _, r := range raw {
		subj, ok := byLabel[strings.ToLower(r.Subject)]
		if !ok {
			continue
		}
		obj, ok := byLabel[strings.ToLower(r.Object)]
		if !ok || subj == obj {
			continue
		}
		key := subj + "|" + r.Predicate + "|" + obj
		if seen[key] {
			continue
		}
		seen[key] = true
		result.Triples = append(result.Triples, models.RelationTriple{
			SubjectID:  subj,
			Predicate:  r.Predicate,
			ObjectID:   obj,
			Confidence: relations.ConfidenceLow,
		})
		added++
	}
	return added
}
