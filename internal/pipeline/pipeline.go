package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/zombar/knowledgegraph/internal/analyzer"
	"github.com/zombar/knowledgegraph/internal/entities"
	"github.com/zombar/knowledgegraph/internal/graph"
	"github.com/zombar/knowledgegraph/internal/keywords"
	"github.com/zombar/knowledgegraph/internal/models"
	"github.com/zombar/knowledgegraph/internal/nlp"
	"github.com/zombar/knowledgegraph/internal/relations"
	"github.com/zombar/knowledgegraph/internal/textnorm"
)

// ConsistencyError reports an internal invariant violation in an assembled
// result, such as a triple or edge referencing an unknown entity. It
// indicates a bug rather than bad input.
type ConsistencyError struct {
	Detail string
}

func (e *ConsistencyError) Error() string {
	return "inconsistent analysis result: " + e.Detail
}

// Config carries the tunables for every stage of a run.
type Config struct {
	Entities entities.Config
	Keywords keywords.Config
	Graph    graph.Config

	// MaxTextBytes rejects documents larger than this before any work is
	// done. Zero means no limit.
	MaxTextBytes int
}

// DefaultConfig returns the stage defaults.
func DefaultConfig() Config {
	return Config{
		Entities: entities.DefaultConfig(),
		Keywords: keywords.DefaultConfig(),
		Graph:    graph.DefaultConfig(),
	}
}

// Pipeline runs the full analysis chain over one document: normalization,
// entity extraction, keyword scoring, relation extraction, graph assembly
// and scalar metrics.
type Pipeline struct {
	cfg       Config
	extractor *entities.Extractor
	scorer    *keywords.Scorer
	relations *relations.Extractor
	builder   *graph.Builder
}

// New creates a pipeline around the given tagger and parser.
func New(tagger nlp.Tagger, parser nlp.Parser, cfg Config) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		extractor: entities.NewExtractor(tagger, cfg.Entities),
		scorer:    keywords.NewScorer(cfg.Keywords),
		relations: relations.NewExtractor(parser),
		builder:   graph.NewBuilder(cfg.Graph),
	}
}

// Default builds a pipeline on the shared prose model with default tunables.
func Default() *Pipeline {
	p := nlp.Default()
	return New(p, p, DefaultConfig())
}

// GraphConfig exposes the graph build settings so rebuilds outside the
// pipeline use the same thresholds.
func (p *Pipeline) GraphConfig() graph.Config {
	return p.cfg.Graph
}

// Analyze runs one synchronous pass over raw text. Empty or whitespace-only
// input returns *textnorm.EmptyInputError. Extraction failures degrade the
// affected stage to empty output and mark the result partial; only
// normalization failures and internal inconsistencies abort the run.
func (p *Pipeline) Analyze(ctx context.Context, raw string) (*models.AnalysisResult, error) {
	if p.cfg.MaxTextBytes > 0 && len(raw) > p.cfg.MaxTextBytes {
		return nil, fmt.Errorf("document of %d bytes exceeds limit of %d", len(raw), p.cfg.MaxTextBytes)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := textnorm.Normalize(raw)
	if err != nil {
		return nil, err
	}

	result := &models.AnalysisResult{
		ID:   uuid.New().String(),
		Text: doc,
	}

	ents, mentions, err := p.extractor.Extract(doc)
	if err != nil {
		log.Printf("entity extraction failed, continuing without entities: %v", err)
		result.Partial = true
		result.StageErrors = append(result.StageErrors, "entities: "+err.Error())
		ents, mentions = nil, nil
	}
	result.Entities = ents
	result.Mentions = mentions

	result.Keywords = p.scorer.Score(doc, ents)

	triples, err := p.relations.Extract(doc, ents)
	if err != nil {
		log.Printf("relation extraction failed, continuing without relations: %v", err)
		result.Partial = true
		result.StageErrors = append(result.StageErrors, "relations: "+err.Error())
		triples = nil
	}
	result.Triples = triples

	result.Graph = p.builder.Build(ents, triples)
	result.Metrics = analyzer.Compute(doc)

	now := time.Now().UTC()
	result.CreatedAt = now
	result.UpdatedAt = now

	if err := Validate(result); err != nil {
		return nil, err
	}
	return result, nil
}

// Validate checks the cross-stage invariants of an assembled result. Every
// triple endpoint must name a known entity, every edge must connect admitted
// nodes, and the recorded counts must match the slices they describe.
func Validate(r *models.AnalysisResult) error {
	known := make(map[string]bool, len(r.Entities))
	for _, e := range r.Entities {
		if known[e.ID] {
			return &ConsistencyError{Detail: "duplicate entity id " + e.ID}
		}
		known[e.ID] = true
	}

	for _, t := range r.Triples {
		if !known[t.SubjectID] {
			return &ConsistencyError{Detail: "triple subject " + t.SubjectID + " not in entity set"}
		}
		if !known[t.ObjectID] {
			return &ConsistencyError{Detail: "triple object " + t.ObjectID + " not in entity set"}
		}
		if t.SubjectID == t.ObjectID {
			return &ConsistencyError{Detail: "self-loop triple on " + t.SubjectID}
		}
	}

	nodes := make(map[string]bool, len(r.Graph.Nodes))
	for _, n := range r.Graph.Nodes {
		if !known[n.EntityID] {
			return &ConsistencyError{Detail: "graph node " + n.EntityID + " not in entity set"}
		}
		nodes[n.EntityID] = true
	}
	for _, e := range r.Graph.Edges {
		if !nodes[e.Source] || !nodes[e.Target] {
			return &ConsistencyError{Detail: "edge " + e.Source + " -> " + e.Target + " references missing node"}
		}
	}

	if r.Graph.NodeCount != len(r.Graph.Nodes) || r.Graph.EdgeCount != len(r.Graph.Edges) {
		return &ConsistencyError{Detail: "graph counts disagree with node and edge slices"}
	}
	return nil
}
