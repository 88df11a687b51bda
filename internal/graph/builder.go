// Package graph assembles the weighted entity-relationship graph and its
// derived statistics from canonical entities and relation triples.
package graph

import (
	"sort"

	"github.com/zombar/knowledgegraph/internal/models"
)

// Config controls node admission.
type Config struct {
	// MinMentions admits entities with at least this many mentions even when
	// no relation triple references them. Entities that participate in a
	// triple are always admitted.
	MinMentions int
}

// DefaultConfig returns the assembly defaults.
func DefaultConfig() Config {
	return Config{MinMentions: 2}
}

// Builder assembles graphs. Stateless; safe for concurrent use.
type Builder struct {
	cfg Config
}

// NewBuilder creates a graph builder.
func NewBuilder(cfg Config) *Builder {
	if cfg.MinMentions <= 0 {
		cfg.MinMentions = DefaultConfig().MinMentions
	}
	return &Builder{cfg: cfg}
}

// Build assembles the graph in a single pass and computes its statistics.
// The returned graph is never mutated afterwards. Zero edges with some nodes
// is a valid degenerate result.
func (b *Builder) Build(ents []models.CanonicalEntity, triples []models.RelationTriple) models.Graph {
	inTriple := make(map[string]bool)
	for _, t := range triples {
		inTriple[t.SubjectID] = true
		inTriple[t.ObjectID] = true
	}

	admitted := make(map[string]bool)
	var nodes []models.GraphNode
	for _, e := range ents {
		if !inTriple[e.ID] && e.MentionCount < b.cfg.MinMentions {
			continue
		}
		admitted[e.ID] = true
		nodes = append(nodes, models.GraphNode{
			EntityID: e.ID,
			Label:    e.Label,
			Type:     e.Type,
		})
	}

	type edgeAgg struct {
		weight     int
		predicates map[string]bool
	}
	edges := make(map[[2]string]*edgeAgg)
	for _, t := range triples {
		if !admitted[t.SubjectID] || !admitted[t.ObjectID] {
			continue
		}
		key := pairKey(t.SubjectID, t.ObjectID)
		agg, ok := edges[key]
		if !ok {
			agg = &edgeAgg{predicates: make(map[string]bool)}
			edges[key] = agg
		}
		agg.weight++
		agg.predicates[t.Predicate] = true
	}

	out := make([]models.GraphEdge, 0, len(edges))
	degree := make(map[string]int)
	for key, agg := range edges {
		preds := make([]string, 0, len(agg.predicates))
		for p := range agg.predicates {
			preds = append(preds, p)
		}
		sort.Strings(preds)

		out = append(out, models.GraphEdge{
			Source:     key[0],
			Target:     key[1],
			Weight:     agg.weight,
			Predicates: preds,
		})
		degree[key[0]]++
		degree[key[1]]++
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})

	for i := range nodes {
		nodes[i].Degree = degree[nodes[i].EntityID]
	}

	return models.Graph{
		Nodes:     nodes,
		Edges:     out,
		NodeCount: len(nodes),
		EdgeCount: len(out),
		Density:   density(len(nodes), len(out)),
	}
}

// pairKey orders an unordered id pair so both directions aggregate into the
// same edge.
func pairKey(a, b string) [2]string {
	if a <= b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// density is edges over the maximum possible edges for the node count.
func density(nodes, edges int) float64 {
	if nodes < 2 {
		return 0
	}
	maxEdges := float64(nodes*(nodes-1)) / 2
	return float64(edges) / maxEdges
}
