package queue

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/knowledgegraph/internal/models"
	"github.com/zombar/knowledgegraph/internal/ollama"
	"github.com/zombar/knowledgegraph/internal/relations"
)

func TestProcessDocumentPayloadRoundTrip(t *testing.T) {
	payload := ProcessDocumentPayload{
		AnalysisID: "abc-123",
		Text:       "Alice works at Acme.",
		Source:     "report.pdf",
		TraceID:    "0123456789abcdef0123456789abcdef",
		SpanID:     "0123456789abcdef",
		EnqueuedAt: time.Now().UnixNano(),
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded ProcessDocumentPayload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestEnrichGraphPayloadOmitsEmptyTracing(t *testing.T) {
	payload := EnrichGraphPayload{AnalysisID: "abc-123", EnqueuedAt: 42}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "trace_id")
	assert.NotContains(t, string(data), "span_id")
}

func TestTaskTypeConstants(t *testing.T) {
	assert.Equal(t, "knowledgegraph:process_document", TypeProcessDocument)
	assert.Equal(t, "knowledgegraph:enrich_graph", TypeEnrichGraph)
}

func TestRetryDelayAnalysisLadder(t *testing.T) {
	task := asynq.NewTask(TypeProcessDocument, nil)
	err := errors.New("boom")

	assert.Equal(t, 1*time.Minute, retryDelay(0, err, task))
	assert.Equal(t, 5*time.Minute, retryDelay(1, err, task))
	assert.Equal(t, 15*time.Minute, retryDelay(2, err, task))
	// Past the ladder the delay holds at the last rung.
	assert.Equal(t, 15*time.Minute, retryDelay(9, err, task))
}

func TestRetryDelayEnrichmentLadder(t *testing.T) {
	task := asynq.NewTask(TypeEnrichGraph, nil)
	err := errors.New("ollama unavailable")

	assert.Equal(t, 30*time.Second, retryDelay(0, err, task))
	assert.Equal(t, 1*time.Minute, retryDelay(1, err, task))
	assert.Equal(t, 4*time.Hour, retryDelay(9, err, task))
	assert.Equal(t, 4*time.Hour, retryDelay(20, err, task))
}

func enrichmentFixture() (*models.AnalysisResult, map[string]string) {
	result := &models.AnalysisResult{
		ID: "result-1",
		Entities: []models.CanonicalEntity{
			{ID: "alice-person", Label: "Alice", Type: models.EntityPerson},
			{ID: "acme-organization", Label: "Acme", Type: models.EntityOrganization},
			{ID: "bob-person", Label: "Bob", Type: models.EntityPerson},
		},
		Triples: []models.RelationTriple{
			{SubjectID: "alice-person", Predicate: "works_at", ObjectID: "acme-organization", Confidence: relations.ConfidenceHigh},
		},
	}
	byLabel := map[string]string{
		"alice": "alice-person",
		"acme":  "acme-organization",
		"bob":   "bob-person",
	}
	return result, byLabel
}

func TestMergeRelationsAddsNewTriples(t *testing.T) {
	result, byLabel := enrichmentFixture()

	added := mergeRelations(result, []ollama.RawRelation{
		{Subject: "Bob", Predicate: "reports_to", Object: "Alice"},
	}, byLabel)

	assert.Equal(t, 1, added)
	require.Len(t, result.Triples, 2)
	assert.Equal(t, "bob-person", result.Triples[1].SubjectID)
	assert.Equal(t, "reports_to", result.Triples[1].Predicate)
	assert.Equal(t, "alice-person", result.Triples[1].ObjectID)
	assert.Equal(t, relations.ConfidenceLow, result.Triples[1].Confidence)
}

func TestMergeRelationsResolvesCaseInsensitively(t *testing.T) {
	result, byLabel := enrichmentFixture()

	added := mergeRelations(result, []ollama.RawRelation{
		{Subject: "BOB", Predicate: "knows", Object: "alice"},
	}, byLabel)

	assert.Equal(t, 1, added)
}

func TestMergeRelationsSkipsDuplicates(t *testing.T) {
	result, byLabel := enrichmentFixture()

	added := mergeRelations(result, []ollama.RawRelation{
		{Subject: "Alice", Predicate: "works_at", Object: "Acme"},
		{Subject: "Bob", Predicate: "knows", Object: "Alice"},
		{Subject: "Bob", Predicate: "knows", Object: "Alice"},
	}, byLabel)

	assert.Equal(t, 1, added)
	assert.Len(t, result.Triples, 2)
}

func TestMergeRelationsDropsUnresolvableAndSelfLoops(t *testing.T) {
	result, byLabel := enrichmentFixture()

	added := mergeRelations(result, []ollama.RawRelation{
		{Subject: "Carol", Predicate: "manages", Object: "Alice"},
		{Subject: "Alice", Predicate: "manages", Object: "Carol"},
		{Subject: "Alice", Predicate: "mentions", Object: "Alice"},
	}, byLabel)

	assert.Equal(t, 0, added)
	assert.Len(t, result.Triples, 1)
}
