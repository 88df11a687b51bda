package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/knowledgegraph/internal/database"
	"github.com/zombar/knowledgegraph/internal/models"
	"github.com/zombar/knowledgegraph/internal/nlp"
	"github.com/zombar/knowledgegraph/internal/pipeline"
)

// stubTagger locates configured surfaces in the text.
type stubTagger struct {
	surfaces map[string]models.EntityType
}

func (s *stubTagger) Tag(text string) ([]models.EntityMention, error) {
	var mentions []models.EntityMention
	for surface, typ := range s.surfaces {
		from := 0
		for {
			idx := strings.Index(text[from:], surface)
			if idx < 0 {
				break
			}
			start := from + idx
			mentions = append(mentions, models.EntityMention{
				Surface: surface,
				Span:    models.Span{Start: start, End: start + len(surface)},
				Type:    typ,
			})
			from = start + len(surface)
		}
	}
	return mentions, nil
}

type stubParser struct {
	candidates map[int][]nlp.SVOCandidate
}

func (s *stubParser) Parse(sentence string, offset int) ([]nlp.SVOCandidate, error) {
	return s.candidates[offset], nil
}

type stubQueue struct {
	taskID string
	err    error
	calls  int
}

func (q *stubQueue) EnqueueProcessDocument(ctx context.Context, analysisID, text, source string) (string, error) {
	q.calls++
	return q.taskID, q.err
}

// setupHandler wires a handler over an in-memory database and a pipeline
// whose stubs recognize "Alice works at Acme."
func setupHandler(t *testing.T, queueClient QueueClient) (http.Handler, *database.DB) {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	tagger := &stubTagger{surfaces: map[string]models.EntityType{
		"Alice": models.EntityPerson,
		"Acme":  models.EntityOrganization,
	}}
	parser := &stubParser{candidates: map[int][]nlp.SVOCandidate{
		0: {{
			Subject:     models.Span{Start: 0, End: 5},
			Verb:        "works",
			Object:      models.Span{Start: 15, End: 19},
			Preposition: "at",
		}},
	}}
	p := pipeline.New(tagger, parser, pipeline.DefaultConfig())

	return NewHandler(db, p, queueClient), db
}

func postAnalyze(t *testing.T, handler http.Handler, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeSync(t *testing.T) {
	handler, db := setupHandler(t, nil)

	rec := postAnalyze(t, handler, map[string]interface{}{
		"text":   "Alice works at Acme.",
		"source": "note.txt",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var result models.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.ID)
	assert.Len(t, result.Entities, 2)
	assert.Len(t, result.Triples, 1)
	assert.Equal(t, "works_at", result.Triples[0].Predicate)

	// Sync results are stored too.
	stored, err := db.GetResult(result.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, result.ID, stored.ID)
}

func TestAnalyzeEmptyText(t *testing.T) {
	handler, _ := setupHandler(t, nil)

	rec := postAnalyze(t, handler, map[string]interface{}{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeInvalidBody(t *testing.T) {
	handler, _ := setupHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeMethodNotAllowed(t *testing.T) {
	handler, _ := setupHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/analyze", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAnalyzeAsync(t *testing.T) {
	queue := &stubQueue{taskID: "task-1"}
	handler, _ := setupHandler(t, queue)

	rec := postAnalyze(t, handler, map[string]interface{}{
		"text":  "Alice works at Acme.",
		"async": true,
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, queue.calls)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])
	assert.Equal(t, "task-1", resp["task_id"])
	assert.NotEmpty(t, resp["job_id"])
}

func TestAnalyzeAsyncWithoutQueue(t *testing.T) {
	handler, _ := setupHandler(t, nil)

	rec := postAnalyze(t, handler, map[string]interface{}{
		"text":  "Alice works at Acme.",
		"async": true,
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetAnalysisNotFound(t *testing.T) {
	handler, _ := setupHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/analyses/does-not-exist", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAndDeleteAnalysis(t *testing.T) {
	handler, _ := setupHandler(t, nil)

	rec := postAnalyze(t, handler, map[string]interface{}{"text": "Alice works at Acme."})
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	req := httptest.NewRequest(http.MethodGet, "/api/analyses/"+result.ID, nil)
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, req)
	assert.Equal(t, http.StatusOK, getRec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/analyses/"+result.ID, nil)
	delRec := httptest.NewRecorder()
	handler.ServeHTTP(delRec, req)
	assert.Equal(t, http.StatusOK, delRec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/analyses/"+result.ID, nil)
	goneRec := httptest.NewRecorder()
	handler.ServeHTTP(goneRec, req)
	assert.Equal(t, http.StatusNotFound, goneRec.Code)
}

func TestListAnalyses(t *testing.T) {
	handler, _ := setupHandler(t, nil)

	rec := postAnalyze(t, handler, map[string]interface{}{"text": "Alice works at Acme."})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/analyses?limit=10", nil)
	listRec := httptest.NewRecorder()
	handler.ServeHTTP(listRec, req)
	require.Equal(t, http.StatusOK, listRec.Code)

	var resp struct {
		Analyses []database.ResultSummary `json:"analyses"`
		Limit    int                      `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.Limit)
	require.Len(t, resp.Analyses, 1)
	assert.Equal(t, 2, resp.Analyses[0].EntityCount)
}

func TestExportFormats(t *testing.T) {
	handler, _ := setupHandler(t, nil)

	rec := postAnalyze(t, handler, map[string]interface{}{"text": "Alice works at Acme."})
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	tests := []struct {
		kind        string
		contentType string
		contains    string
	}{
		{"entities.csv", "text/csv", "label,type,mentions"},
		{"relationships.csv", "text/csv", "works_at"},
		{"graph.json", "application/json", "\"links\""},
		{"result.json", "application/json", "\"entities\""},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/analyses/"+result.ID+"/export/"+tt.kind, nil)
			exportRec := httptest.NewRecorder()
			handler.ServeHTTP(exportRec, req)

			require.Equal(t, http.StatusOK, exportRec.Code)
			assert.Equal(t, tt.contentType, exportRec.Header().Get("Content-Type"))
			assert.Contains(t, exportRec.Body.String(), tt.contains)
		})
	}
}

func TestExportUnknownFormat(t *testing.T) {
	handler, _ := setupHandler(t, nil)

	rec := postAnalyze(t, handler, map[string]interface{}{"text": "Alice works at Acme."})
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	req := httptest.NewRequest(http.MethodGet, "/api/analyses/"+result.ID+"/export/graph.xml", nil)
	exportRec := httptest.NewRecorder()
	handler.ServeHTTP(exportRec, req)
	assert.Equal(t, http.StatusBadRequest, exportRec.Code)
}

func TestSearchByEntity(t *testing.T) {
	handler, _ := setupHandler(t, nil)

	rec := postAnalyze(t, handler, map[string]interface{}{"text": "Alice works at Acme."})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/search?entity=alice", nil)
	searchRec := httptest.NewRecorder()
	handler.ServeHTTP(searchRec, req)
	require.Equal(t, http.StatusOK, searchRec.Code)

	var resp struct {
		Entity   string                   `json:"entity"`
		Analyses []database.ResultSummary `json:"analyses"`
	}
	require.NoError(t, json.Unmarshal(searchRec.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Entity)
	assert.Len(t, resp.Analyses, 1)
}

func TestSearchRequiresEntityParam(t *testing.T) {
	handler, _ := setupHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := setupHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}
