package relations

import (
	"errors"
	"testing"

	"github.com/zombar/knowledgegraph/internal/models"
	"github.com/zombar/knowledgegraph/internal/nlp"
)

// stubParser returns canned candidates per sentence offset.
type stubParser struct {
	candidates map[int][]nlp.SVOCandidate
	errAt      map[int]error
}

func (s *stubParser) Parse(sentence string, offset int) ([]nlp.SVOCandidate, error) {
	if err, ok := s.errAt[offset]; ok {
		return nil, err
	}
	return s.candidates[offset], nil
}

func entity(id string, spans ...models.Span) models.CanonicalEntity {
	return models.CanonicalEntity{ID: id, Label: id, Type: models.EntityPerson, Mentions: spans, MentionCount: len(spans)}
}

func TestExtractResolvesParticipants(t *testing.T) {
	// "Alice employs Bob." with mentions at [0,5) and [14,17).
	doc := models.NormalizedText{
		Text:      "Alice employs Bob.",
		Sentences: []models.Span{{Start: 0, End: 18}},
	}
	ents := []models.CanonicalEntity{
		entity("alice-person", models.Span{Start: 0, End: 5}),
		entity("bob-person", models.Span{Start: 14, End: 17}),
	}
	parser := &stubParser{candidates: map[int][]nlp.SVOCandidate{
		0: {{
			Subject: models.Span{Start: 0, End: 5},
			Verb:    "employs",
			Object:  models.Span{Start: 14, End: 17},
		}},
	}}

	triples, err := NewExtractor(parser).Extract(doc, ents)
	if err != nil {
		t.Fatal(err)
	}
	if len(triples) != 1 {
		t.Fatalf("expected 1 triple, got %d", len(triples))
	}
	tr := triples[0]
	if tr.SubjectID != "alice-person" || tr.ObjectID != "bob-person" {
		t.Errorf("unexpected participants: %s -> %s", tr.SubjectID, tr.ObjectID)
	}
	if tr.Predicate != "employs" {
		t.Errorf("unexpected predicate %q", tr.Predicate)
	}
	if tr.Confidence != ConfidenceHigh {
		t.Errorf("expected high confidence, got %q", tr.Confidence)
	}
}

func TestExtractPrepositionalObjectLowersConfidence(t *testing.T) {
	doc := models.NormalizedText{
		Text:      "Alice works at Acme.",
		Sentences: []models.Span{{Start: 0, End: 20}},
	}
	ents := []models.CanonicalEntity{
		entity("alice-person", models.Span{Start: 0, End: 5}),
		entity("acme-organization", models.Span{Start: 15, End: 19}),
	}
	parser := &stubParser{candidates: map[int][]nlp.SVOCandidate{
		0: {{
			Subject:     models.Span{Start: 0, End: 5},
			Verb:        "works",
			Object:      models.Span{Start: 15, End: 19},
			Preposition: "at",
		}},
	}}

	triples, err := NewExtractor(parser).Extract(doc, ents)
	if err != nil {
		t.Fatal(err)
	}
	if len(triples) != 1 {
		t.Fatalf("expected 1 triple, got %d", len(triples))
	}
	if triples[0].Predicate != "works_at" {
		t.Errorf("expected fused predicate works_at, got %q", triples[0].Predicate)
	}
	if triples[0].Confidence != ConfidenceLow {
		t.Errorf("expected low confidence, got %q", triples[0].Confidence)
	}
}

func TestExtractDropsUnresolvedAndSelfLoops(t *testing.T) {
	doc := models.NormalizedText{
		Text:      "Alice saw something. Alice praised Alice.",
		Sentences: []models.Span{{Start: 0, End: 20}, {Start: 21, End: 41}},
	}
	ents := []models.CanonicalEntity{
		entity("alice-person",
			models.Span{Start: 0, End: 5},
			models.Span{Start: 21, End: 26},
			models.Span{Start: 35, End: 40},
		),
	}
	parser := &stubParser{candidates: map[int][]nlp.SVOCandidate{
		// Object span matches no mention.
		0: {{
			Subject: models.Span{Start: 0, End: 5},
			Verb:    "saw",
			Object:  models.Span{Start: 10, End: 19},
		}},
		// Subject and object resolve to the same entity.
		21: {{
			Subject: models.Span{Start: 21, End: 26},
			Verb:    "praised",
			Object:  models.Span{Start: 35, End: 40},
		}},
	}}

	triples, err := NewExtractor(parser).Extract(doc, ents)
	if err != nil {
		t.Fatal(err)
	}
	if len(triples) != 0 {
		t.Fatalf("expected no triples, got %+v", triples)
	}
}

func TestExtractSkipsFailedSentences(t *testing.T) {
	doc := models.NormalizedText{
		Text:      "Bad sentence here. Alice employs Bob.",
		Sentences: []models.Span{{Start: 0, End: 18}, {Start: 19, End: 37}},
	}
	ents := []models.CanonicalEntity{
		entity("alice-person", models.Span{Start: 19, End: 24}),
		entity("bob-person", models.Span{Start: 33, End: 36}),
	}
	parser := &stubParser{
		errAt: map[int]error{0: errors.New("parse failure")},
		candidates: map[int][]nlp.SVOCandidate{
			19: {{
				Subject: models.Span{Start: 19, End: 24},
				Verb:    "employs",
				Object:  models.Span{Start: 33, End: 36},
			}},
		},
	}

	triples, err := NewExtractor(parser).Extract(doc, ents)
	if err != nil {
		t.Fatal(err)
	}
	if len(triples) != 1 {
		t.Fatalf("expected the surviving sentence's triple, got %d", len(triples))
	}
}

func TestExtractFailsWhenAllSentencesFail(t *testing.T) {
	doc := models.NormalizedText{
		Text:      "One. Two.",
		Sentences: []models.Span{{Start: 0, End: 4}, {Start: 5, End: 9}},
	}
	parser := &stubParser{errAt: map[int]error{
		0: errors.New("boom"),
		5: errors.New("boom"),
	}}

	_, err := NewExtractor(parser).Extract(doc, nil)
	if err == nil {
		t.Fatal("expected error when every sentence fails to parse")
	}
}

func TestNormalizePredicate(t *testing.T) {
	tests := []struct {
		verb string
		prep string
		want string
	}{
		{"employs", "", "employs"},
		{"Works", "at", "works_at"},
		{"was born", "in", "was_born_in"},
		{"MET", "", "met"},
	}
	for _, tt := range tests {
		if got := NormalizePredicate(tt.verb, tt.prep); got != tt.want {
			t.Errorf("NormalizePredicate(%q, %q) = %q, want %q", tt.verb, tt.prep, got, tt.want)
		}
	}
}
