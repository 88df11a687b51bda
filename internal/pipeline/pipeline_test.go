package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zombar/knowledgegraph/internal/models"
	"github.com/zombar/knowledgegraph/internal/nlp"
	"github.com/zombar/knowledgegraph/internal/textnorm"
)

// stubTagger locates configured surfaces in the text.
type stubTagger struct {
	surfaces map[string]models.EntityType
	err      error
}

func (s *stubTagger) Tag(text string) ([]models.EntityMention, error) {
	if s.err != nil {
		return nil, s.err
	}
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

// stubParser returns canned candidates keyed by sentence offset.
type stubParser struct {
	candidates map[int][]nlp.SVOCandidate
	err        error
}

func (s *stubParser) Parse(sentence string, offset int) ([]nlp.SVOCandidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates[offset], nil
}

// scenario builds the pipeline for the document
// "Alice Smith works at Acme. Alice Smith met Bob Jones."
func scenario(t *testing.T) (*Pipeline, string) {
	t.Helper()
	text := "Alice Smith works at Acme. Alice Smith met Bob Jones."

	tagger := &stubTagger{surfaces: map[string]models.EntityType{
		"Alice Smith": models.EntityPerson,
		"Acme":        models.EntityOrganization,
		"Bob Jones":   models.EntityPerson,
	}}
	parser := &stubParser{candidates: map[int][]nlp.SVOCandidate{
		0: {{
			Subject:     models.Span{Start: 0, End: 11},
			Verb:        "works",
			Object:      models.Span{Start: 21, End: 25},
			Preposition: "at",
		}},
		27: {{
			Subject: models.Span{Start: 27, End: 38},
			Verb:    "met",
			Object:  models.Span{Start: 43, End: 52},
		}},
	}}

	return New(tagger, parser, DefaultConfig()), text
}

func TestAnalyzeFullRun(t *testing.T) {
	p, text := scenario(t)

	result, err := p.Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}

	if result.Partial {
		t.Errorf("unexpected partial result: %v", result.StageErrors)
	}
	if len(result.Entities) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(result.Entities))
	}

	alice, ok := result.EntityByID("alice-smith-person")
	if !ok {
		t.Fatal("missing alice-smith-person")
	}
	if alice.MentionCount != 2 {
		t.Errorf("expected 2 mentions of Alice Smith, got %d", alice.MentionCount)
	}
	if _, ok := result.EntityByID("acme-organization"); !ok {
		t.Error("missing acme-organization")
	}
	if _, ok := result.EntityByID("bob-jones-person"); !ok {
		t.Error("missing bob-jones-person")
	}

	if len(result.Triples) != 2 {
		t.Fatalf("expected 2 triples, got %d", len(result.Triples))
	}
	preds := map[string]models.RelationTriple{}
	for _, tr := range result.Triples {
		preds[tr.Predicate] = tr
	}
	if tr, ok := preds["works_at"]; !ok {
		t.Error("missing works_at triple")
	} else {
		if tr.SubjectID != "alice-smith-person" || tr.ObjectID != "acme-organization" {
			t.Errorf("works_at connects %s -> %s", tr.SubjectID, tr.ObjectID)
		}
		if tr.Confidence != "low" {
			t.Errorf("prepositional triple should be low confidence, got %q", tr.Confidence)
		}
	}
	if tr, ok := preds["met"]; !ok {
		t.Error("missing met triple")
	} else if tr.Confidence != "high" {
		t.Errorf("direct object triple should be high confidence, got %q", tr.Confidence)
	}

	if result.Graph.NodeCount != 3 || result.Graph.EdgeCount != 2 {
		t.Errorf("expected 3 nodes / 2 edges, got %d/%d", result.Graph.NodeCount, result.Graph.EdgeCount)
	}

	for _, kw := range result.Keywords {
		switch kw.Term {
		case "alice", "smith", "acme", "bob", "jones":
			t.Errorf("entity term %q leaked into keywords", kw.Term)
		}
	}

	if result.Metrics.SentenceCount != 2 {
		t.Errorf("expected 2 sentences in metrics, got %d", result.Metrics.SentenceCount)
	}
	if result.ID == "" {
		t.Error("result id should be set")
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	p, text := scenario(t)

	first, err := p.Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}

	if len(first.Entities) != len(second.Entities) {
		t.Fatalf("entity counts differ: %d vs %d", len(first.Entities), len(second.Entities))
	}
	for i := range first.Entities {
		if first.Entities[i].ID != second.Entities[i].ID {
			t.Errorf("entity %d id differs: %q vs %q", i, first.Entities[i].ID, second.Entities[i].ID)
		}
	}
	if len(first.Triples) != len(second.Triples) {
		t.Fatalf("triple counts differ")
	}
	for i := range first.Triples {
		if first.Triples[i] != second.Triples[i] {
			t.Errorf("triple %d differs: %+v vs %+v", i, first.Triples[i], second.Triples[i])
		}
	}
	if len(first.Keywords) != len(second.Keywords) {
		t.Fatal("keyword counts differ")
	}
	for i := range first.Keywords {
		if first.Keywords[i] != second.Keywords[i] {
			t.Errorf("keyword %d differs", i)
		}
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	p, _ := scenario(t)

	_, err := p.Analyze(context.Background(), "   \n\t  ")
	if err == nil {
		t.Fatal("expected error for empty input")
	}
	var emptyErr *textnorm.EmptyInputError
	if !errors.As(err, &emptyErr) {
		t.Errorf("expected EmptyInputError, got %T", err)
	}
}

func TestAnalyzeDegradesOnTaggerFailure(t *testing.T) {
	tagger := &stubTagger{err: errors.New("ner model unavailable")}
	parser := &stubParser{}
	p := New(tagger, parser, DefaultConfig())

	result, err := p.Analyze(context.Background(), "Some perfectly ordinary sentence here.")
	if err != nil {
		t.Fatalf("tagger failure should degrade, not abort: %v", err)
	}
	if !result.Partial {
		t.Error("result should be marked partial")
	}
	if len(result.StageErrors) == 0 || !strings.HasPrefix(result.StageErrors[0], "entities:") {
		t.Errorf("expected entities stage error, got %v", result.StageErrors)
	}
	if len(result.Entities) != 0 || len(result.Triples) != 0 {
		t.Error("degraded stages should produce empty output")
	}
	// Metrics and keywords still run.
	if result.Metrics.WordCount == 0 {
		t.Error("metrics should still be computed")
	}
}

func TestAnalyzeDegradesOnParserFailure(t *testing.T) {
	tagger := &stubTagger{surfaces: map[string]models.EntityType{
		"Alice": models.EntityPerson,
	}}
	parser := &stubParser{err: errors.New("pos tagging failed")}
	p := New(tagger, parser, DefaultConfig())

	result, err := p.Analyze(context.Background(), "Alice spoke. Alice listened.")
	if err != nil {
		t.Fatalf("parser failure should degrade, not abort: %v", err)
	}
	if !result.Partial {
		t.Error("result should be marked partial")
	}
	if len(result.Triples) != 0 {
		t.Error("triples should be empty after parser failure")
	}
	// Entities survive; Alice has two mentions so she still becomes a node.
	if len(result.Entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(result.Entities))
	}
	if result.Graph.NodeCount != 1 || result.Graph.EdgeCount != 0 {
		t.Errorf("expected degenerate 1-node graph, got %d/%d", result.Graph.NodeCount, result.Graph.EdgeCount)
	}
}

func TestAnalyzeNoRelationCandidates(t *testing.T) {
	tagger := &stubTagger{surfaces: map[string]models.EntityType{
		"Alice": models.EntityPerson,
		"Bob":   models.EntityPerson,
		"Acme":  models.EntityOrganization,
	}}
	// The parser succeeds on every sentence but proposes nothing.
	parser := &stubParser{}
	p := New(tagger, parser, DefaultConfig())

	result, err := p.Analyze(context.Background(), "Alice. Bob. Acme.")
	if err != nil {
		t.Fatal(err)
	}

	if result.Partial {
		t.Errorf("no candidates is not a stage failure: %v", result.StageErrors)
	}
	if len(result.Entities) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(result.Entities))
	}
	if len(result.Triples) != 0 {
		t.Errorf("expected no triples, got %d", len(result.Triples))
	}
	// Single-mention entities outside any relation stay off the graph.
	if result.Graph.NodeCount != 0 || result.Graph.EdgeCount != 0 {
		t.Errorf("expected empty graph, got %d/%d", result.Graph.NodeCount, result.Graph.EdgeCount)
	}
	if result.Graph.Density != 0 {
		t.Errorf("expected zero density, got %f", result.Graph.Density)
	}
	if err := Validate(result); err != nil {
		t.Errorf("degenerate result should validate: %v", err)
	}
}

func TestGraphConfigExposesBuildSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Graph.MinMentions = 5
	p := New(&stubTagger{}, &stubParser{}, cfg)

	if got := p.GraphConfig().MinMentions; got != 5 {
		t.Errorf("expected min mentions 5, got %d", got)
	}
}

func TestAnalyzeMaxTextBytes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTextBytes = 10
	p := New(&stubTagger{}, &stubParser{}, cfg)

	_, err := p.Analyze(context.Background(), strings.Repeat("a", 11))
	if err == nil {
		t.Fatal("expected size limit error")
	}
}

func TestAnalyzeCancelledContext(t *testing.T) {
	p, text := scenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Analyze(ctx, text)
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestValidateCatchesInconsistencies(t *testing.T) {
	base := func() *models.AnalysisResult {
		return &models.AnalysisResult{
			Entities: []models.CanonicalEntity{
				{ID: "a-person"},
				{ID: "b-person"},
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		r := base()
		r.Triples = []models.RelationTriple{{SubjectID: "a-person", Predicate: "met", ObjectID: "b-person"}}
		r.Graph = models.Graph{
			Nodes:     []models.GraphNode{{EntityID: "a-person"}, {EntityID: "b-person"}},
			Edges:     []models.GraphEdge{{Source: "a-person", Target: "b-person", Weight: 1}},
			NodeCount: 2,
			EdgeCount: 1,
		}
		if err := Validate(r); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unknown triple subject", func(t *testing.T) {
		r := base()
		r.Triples = []models.RelationTriple{{SubjectID: "ghost", Predicate: "met", ObjectID: "b-person"}}
		assertConsistencyError(t, Validate(r))
	})

	t.Run("self-loop triple", func(t *testing.T) {
		r := base()
		r.Triples = []models.RelationTriple{{SubjectID: "a-person", Predicate: "met", ObjectID: "a-person"}}
		assertConsistencyError(t, Validate(r))
	})

	t.Run("edge to missing node", func(t *testing.T) {
		r := base()
		r.Graph = models.Graph{
			Nodes:     []models.GraphNode{{EntityID: "a-person"}},
			Edges:     []models.GraphEdge{{Source: "a-person", Target: "b-person"}},
			NodeCount: 1,
			EdgeCount: 1,
		}
		assertConsistencyError(t, Validate(r))
	})

	t.Run("count mismatch", func(t *testing.T) {
		r := base()
		r.Graph = models.Graph{
			Nodes:     []models.GraphNode{{EntityID: "a-person"}},
			NodeCount: 5,
		}
		assertConsistencyError(t, Validate(r))
	})

	t.Run("duplicate entity id", func(t *testing.T) {
		r := base()
		r.Entities = append(r.Entities, models.CanonicalEntity{ID: "a-person"})
		assertConsistencyError(t, Validate(r))
	})
}

func assertConsistencyError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected consistency error")
	}
	var cerr *ConsistencyError
	if !errors.As(err, &cerr) {
		t.Errorf("expected ConsistencyError, got %T: %v", err, err)
	}
}
