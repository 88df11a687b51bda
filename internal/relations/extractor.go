// Package relations extracts subject-predicate-object triples between
// canonical entities, one sentence at a time.
package relations

import (
	"log"
	"sort"
	"strings"

	"github.com/zombar/knowledgegraph/internal/models"
	"github.com/zombar/knowledgegraph/internal/nlp"
)

// Confidence levels attached to extracted triples. They are display metadata
// only; nothing filters on them by default.
const (
	ConfidenceHigh = "high"
	ConfidenceLow  = "low"
)

// Extractor resolves parser SVO candidates against the canonical entity set.
type Extractor struct {
	parser nlp.Parser
}

// NewExtractor creates a relation extractor.
func NewExtractor(parser nlp.Parser) *Extractor {
	return &Extractor{parser: parser}
}

// Extract parses every sentence and returns the triples whose subject and
// object both resolve to known entities. Participants that overlap no known
// mention drop the candidate; so do self-loops left behind by coreferring
// spans. Per-sentence parser failures are skipped; the stage only fails when
// no sentence parsed at all.
func (e *Extractor) Extract(doc models.NormalizedText, ents []models.CanonicalEntity) ([]models.RelationTriple, error) {
	idx := newMentionIndex(ents)

	var triples []models.RelationTriple
	var firstErr error
	failed := 0

	for _, sent := range doc.Sentences {
		cands, err := e.parser.Parse(doc.Text[sent.Start:sent.End], sent.Start)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed++
			log.Printf("relation parse failed for sentence at %d: %v", sent.Start, err)
			continue
		}

		for _, cand := range cands {
			subjID, ok := idx.resolve(cand.Subject)
			if !ok {
				continue
			}
			objID, ok := idx.resolve(cand.Object)
			if !ok {
				continue
			}
			if subjID == objID {
				// Coreferring spans in one clause make a meaningless self-loop.
				continue
			}

			confidence := ConfidenceHigh
			if cand.Preposition != "" {
				confidence = ConfidenceLow
			}

			triples = append(triples, models.RelationTriple{
				SubjectID:  subjID,
				Predicate:  NormalizePredicate(cand.Verb, cand.Preposition),
				ObjectID:   objID,
				Sentence:   sent,
				Confidence: confidence,
			})
		}
	}

	if len(doc.Sentences) > 0 && failed == len(doc.Sentences) {
		return nil, firstErr
	}
	return triples, nil
}

// NormalizePredicate lower-cases the verb and fuses a prepositional
// attachment with an underscore ("works" + "at" -> "works_at").
func NormalizePredicate(verb, prep string) string {
	pred := strings.ToLower(strings.TrimSpace(verb))
	pred = strings.Join(strings.Fields(pred), "_")
	if prep != "" {
		pred += "_" + strings.ToLower(strings.TrimSpace(prep))
	}
	return pred
}

// mentionIndex maps character spans back to entity ids by overlap. Built as a
// flat sorted slice; documents rarely carry enough mentions to warrant more.
type mentionIndex struct {
	spans []indexedSpan
}

type indexedSpan struct {
	span     models.Span
	entityID string
}

func newMentionIndex(ents []models.CanonicalEntity) *mentionIndex {
	var spans []indexedSpan
	for _, e := range ents {
		for _, sp := range e.Mentions {
			spans = append(spans, indexedSpan{span: sp, entityID: e.ID})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].span.Start < spans[j].span.Start })
	return &mentionIndex{spans: spans}
}

// resolve returns the entity whose mention overlaps the span most; earliest
// mention wins ties so resolution is deterministic.
func (idx *mentionIndex) resolve(sp models.Span) (string, bool) {
	best := ""
	bestOverlap := 0
	for _, is := range idx.spans {
		if !is.span.Overlaps(sp) {
			continue
		}
		overlap := min(is.span.End, sp.End) - max(is.span.Start, sp.Start)
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = is.entityID
		}
	}
	return best, best != ""
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
