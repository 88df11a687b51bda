// Package export renders analysis results into the downloadable formats:
// CSV tables for entities and relationships, a node-link JSON document for
// the graph, and the full result as JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/zombar/knowledgegraph/internal/models"
)

// EntitiesCSV writes one row per canonical entity with header
// label,type,mentions.
func EntitiesCSV(w io.Writer, ents []models.CanonicalEntity) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"label", "type", "mentions"}); err != nil {
		return fmt.Errorf("writing entities header: %w", err)
	}
	for _, e := range ents {
		row := []string{e.Label, string(e.Type), strconv.Itoa(e.MentionCount)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing entity row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// RelationshipsCSV writes one row per triple with header
// subject,predicate,object,confidence,sentence.
func RelationshipsCSV(w io.Writer, r *models.AnalysisResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"subject", "predicate", "object", "confidence", "sentence"}); err != nil {
		return fmt.Errorf("writing relationships header: %w", err)
	}
	for _, t := range r.Triples {
		row := []string{
			labelFor(r, t.SubjectID),
			t.Predicate,
			labelFor(r, t.ObjectID),
			t.Confidence,
			sentenceText(r.Text, t.Sentence),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing relationship row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func sentenceText(doc models.NormalizedText, sp models.Span) string {
	if sp.Start < 0 || sp.End > len(doc.Text) || sp.Start >= sp.End {
		return ""
	}
	return doc.Text[sp.Start:sp.End]
}

func labelFor(r *models.AnalysisResult, id string) string {
	if e, ok := r.EntityByID(id); ok {
		return e.Label
	}
	return id
}

// nodeLink mirrors the common node-link graph interchange shape consumed by
// visualization front ends.
type nodeLink struct {
	Directed   bool           `json:"directed"`
	Multigraph bool           `json:"multigraph"`
	Nodes      []nodeLinkNode `json:"nodes"`
	Links      []nodeLinkEdge `json:"links"`
}

type nodeLinkNode struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Type   string `json:"type"`
	Degree int    `json:"degree"`
}

type nodeLinkEdge struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Weight     int      `json:"weight"`
	Predicates []string `json:"predicates"`
}

// GraphJSON writes the entity graph in node-link form.
func GraphJSON(w io.Writer, g models.Graph) error {
	doc := nodeLink{
		Nodes: make([]nodeLinkNode, 0, len(g.Nodes)),
		Links: make([]nodeLinkEdge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		doc.Nodes = append(doc.Nodes, nodeLinkNode{
			ID:     n.EntityID,
			Label:  n.Label,
			Type:   string(n.Type),
			Degree: n.Degree,
		})
	}
	for _, e := range g.Edges {
		doc.Links = append(doc.Links, nodeLinkEdge{
			Source:     e.Source,
			Target:     e.Target,
			Weight:     e.Weight,
			Predicates: e.Predicates,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ResultJSON writes the complete analysis result as indented JSON.
func ResultJSON(w io.Writer, r *models.AnalysisResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Filename composes a stable export file name from a result id and kind,
// such as "<id>_entities.csv".
func Filename(id, kind string) string {
	ext := ".csv"
	if strings.HasSuffix(kind, "json") || kind == "graph" || kind == "result" {
		ext = ".json"
	}
	return id + "_" + kind + ext
}
