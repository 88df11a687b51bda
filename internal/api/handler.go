package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/knowledgegraph/internal/database"
	"github.com/zombar/knowledgegraph/internal/export"
	"github.com/zombar/knowledgegraph/internal/pipeline"
	"github.com/zombar/knowledgegraph/internal/textnorm"
	"github.com/zombar/knowledgegraph/pkg/tracing"
)

// QueueClient is the enqueue surface the handler needs for async analysis.
type QueueClient interface {
	EnqueueProcessDocument(ctx context.Context, analysisID, text, source string) (string, error)
}

// Handler handles HTTP requests
type Handler struct {
	db          *database.DB
	pipeline    *pipeline.Pipeline
	queueClient QueueClient
	mux         *http.ServeMux
}

// NewHandler creates a new API handler with CORS support and metrics.
// queueClient may be nil, which disables async analysis.
func NewHandler(db *database.DB, p *pipeline.Pipeline, queueClient QueueClient) http.Handler {
	h := &Handler{
		db:          db,
		pipeline:    p,
		queueClient: queueClient,
		mux:         http.NewServeMux(),
	}

	h.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(h.mux)
}

// setupRoutes configures all API routes
func (h *Handler) setupRoutes() {
	h.mux.Handle("/metrics", promhttp.Handler()) // Prometheus metrics endpoint
	h.mux.HandleFunc("/api/analyze", h.handleAnalyze)
	h.mux.HandleFunc("/api/analyses", h.handleListAnalyses)
	h.mux.HandleFunc("/api/analyses/", h.handleAnalysisOperations)
	h.mux.HandleFunc("/api/search", h.handleSearchByEntity)
	h.mux.HandleFunc("/health", h.handleHealth)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleAnalyze runs the pipeline on submitted text. With "async": true the
// document is queued instead and a job id is returned immediately.
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Text   string `json:"text"`
		Source string `json:"source,omitempty"`
		Async  bool   `json:"async,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		respondError(w, "Text field is required", http.StatusBadRequest)
		return
	}

	tracing.SetSpanAttributes(r.Context(),
		attribute.Int("text.length", len(req.Text)),
		attribute.Bool("async", req.Async))

	ctx := r.Context()

	if req.Async {
		if h.queueClient == nil {
			respondError(w, "Async analysis is not enabled", http.StatusServiceUnavailable)
			return
		}

		analysisID := uuid.New().String()
		taskID, err := h.queueClient.EnqueueProcessDocument(ctx, analysisID, req.Text, req.Source)
		if err != nil {
			respondError(w, fmt.Sprintf("Failed to enqueue analysis: %v", err), http.StatusInternalServerError)
			return
		}

		respondJSON(w, map[string]interface{}{
			"job_id":  analysisID,
			"task_id": taskID,
			"status":  "queued",
		}, http.StatusAccepted)
		return
	}

	result, err := h.pipeline.Analyze(ctx, req.Text)
	if err != nil {
		var emptyErr *textnorm.EmptyInputError
		var consistencyErr *pipeline.ConsistencyError
		switch {
		case errors.As(err, &emptyErr):
			respondError(w, "Text contains no analyzable content", http.StatusBadRequest)
		case errors.As(err, &consistencyErr):
			respondError(w, "Internal analysis error", http.StatusInternalServerError)
		default:
			respondError(w, fmt.Sprintf("Analysis failed: %v", err), http.StatusUnprocessableEntity)
		}
		return
	}

	if h.db != nil {
		if err := h.db.SaveResult(result, req.Source); err != nil {
			respondError(w, fmt.Sprintf("Failed to store result: %v", err), http.StatusInternalServerError)
			return
		}
	}

	respondJSON(w, result, http.StatusOK)
}

// handleListAnalyses lists stored results, newest first.
func (h *Handler) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	summaries, err := h.db.ListResults(limit, offset)
	if err != nil {
		respondError(w, fmt.Sprintf("Failed to list analyses: %v", err), http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"analyses": summaries,
		"limit":    limit,
		"offset":   offset,
	}, http.StatusOK)
}

// handleAnalysisOperations dispatches /api/analyses/{id} and
// /api/analyses/{id}/export/{kind}.
func (h *Handler) handleAnalysisOperations(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/analyses/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		respondError(w, "Analysis ID is required", http.StatusBadRequest)
		return
	}
	id := parts[0]

	if len(parts) == 3 && parts[1] == "export" {
		h.handleExport(w, r, id, parts[2])
		return
	}
	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		result, err := h.db.GetResult(id)
		if err != nil {
			respondError(w, fmt.Sprintf("Failed to load analysis: %v", err), http.StatusInternalServerError)
			return
		}
		if result == nil {
			respondError(w, "Analysis not found", http.StatusNotFound)
			return
		}
		respondJSON(w, result, http.StatusOK)

	case http.MethodDelete:
		if err := h.db.DeleteResult(id); err != nil {
			respondError(w, fmt.Sprintf("Failed to delete analysis: %v", err), http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]string{"status": "deleted", "id": id}, http.StatusOK)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleExport streams a stored result in one of the download formats:
// entities.csv, relationships.csv, graph.json or result.json.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, id, kind string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.db.GetResult(id)
	if err != nil {
		respondError(w, fmt.Sprintf("Failed to load analysis: %v", err), http.StatusInternalServerError)
		return
	}
	if result == nil {
		respondError(w, "Analysis not found", http.StatusNotFound)
		return
	}

	switch kind {
	case "entities.csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename="+export.Filename(id, "entities"))
		err = export.EntitiesCSV(w, result.Entities)
	case "relationships.csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename="+export.Filename(id, "relationships"))
		err = export.RelationshipsCSV(w, result)
	case "graph.json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename="+export.Filename(id, "graph"))
		err = export.GraphJSON(w, result.Graph)
	case "result.json":
		w.Header().Set("Content-Type", "application/json")
		err = export.ResultJSON(w, result)
	default:
		respondError(w, "Unknown export format: "+kind, http.StatusBadRequest)
		return
	}

	if err != nil {
		// Headers are already out; log-level reporting happens upstream.
		return
	}
}

// handleSearchByEntity returns stored analyses mentioning an entity label.
func (h *Handler) handleSearchByEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	label := r.URL.Query().Get("entity")
	if label == "" {
		respondError(w, "entity query parameter is required", http.StatusBadRequest)
		return
	}

	summaries, err := h.db.FindResultsByEntity(label)
	if err != nil {
		respondError(w, fmt.Sprintf("Search failed: %v", err), http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"entity":   label,
		"analyses": summaries,
	}, http.StatusOK)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
