package models

import "time"

// EntityType is the coarse classification assigned to a mention or entity.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityDate         EntityType = "date"
	EntityEvent        EntityType = "event"
	EntityProduct      EntityType = "product"
	EntityWorkOfArt    EntityType = "work_of_art"
	EntityMisc         EntityType = "misc"
	EntityUnknown      EntityType = "unknown"
)

// Span is a half-open character range [Start, End) into the normalized text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether two spans share at least one character.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// Len returns the number of characters covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// NormalizedText is the cleaned document text plus its sentence segmentation.
// Sentence spans are ordered, non-overlapping offsets into Text.
type NormalizedText struct {
	Text      string `json:"text"`
	Sentences []Span `json:"sentences"`
}

// SentenceCount returns the number of segmented sentences.
func (n NormalizedText) SentenceCount() int {
	return len(n.Sentences)
}

// Sentence returns the text of sentence i.
func (n NormalizedText) Sentence(i int) string {
	s := n.Sentences[i]
	return n.Text[s.Start:s.End]
}

// EntityMention is a single NER hit: one textual occurrence of a named entity.
// Mentions are never mutated after creation.
type EntityMention struct {
	Surface string     `json:"surface"`
	Span    Span       `json:"span"`
	Type    EntityType `json:"type"`
}

// CanonicalEntity is the deduplicated identity for one or more mentions.
// The id is deterministic (derived from label and type) so repeated runs over
// identical text produce identical entity sets.
type CanonicalEntity struct {
	ID           string     `json:"id"`
	Label        string     `json:"label"`
	Type         EntityType `json:"type"`
	Mentions     []Span     `json:"mentions"`
	MentionCount int        `json:"mention_count"`
}

// Keyword is a scored term with its raw document frequency.
type Keyword struct {
	Term      string  `json:"term"`
	Score     float64 `json:"score"`
	Frequency int     `json:"frequency"`
}

// RelationTriple is one subject-predicate-object fact extracted from a sentence.
// Subject and Object reference CanonicalEntity ids and are always distinct.
type RelationTriple struct {
	SubjectID  string `json:"subject_id"`
	Predicate  string `json:"predicate"`
	ObjectID   string `json:"object_id"`
	Sentence   Span   `json:"sentence"`
	Confidence string `json:"confidence"` // high, low
}

// GraphNode wraps one CanonicalEntity admitted to the graph, with its degree.
type GraphNode struct {
	EntityID string     `json:"entity_id"`
	Label    string     `json:"label"`
	Type     EntityType `json:"type"`
	Degree   int        `json:"degree"`
}

// GraphEdge is an undirected edge between two entity ids. Weight is the number
// of relation triples that mapped to this pair; Predicates holds the distinct
// predicates observed, sorted.
type GraphEdge struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Weight     int      `json:"weight"`
	Predicates []string `json:"predicates"`
}

// Graph is the assembled entity-relationship graph with derived statistics.
// It is not mutated after assembly; a nodes-only graph with zero density is a
// valid degenerate output, not an error.
type Graph struct {
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
	NodeCount int         `json:"node_count"`
	EdgeCount int         `json:"edge_count"`
	Density   float64     `json:"density"`
}

// Metrics holds the document-level scalar scores computed alongside the graph.
type Metrics struct {
	CharacterCount    int     `json:"character_count"`
	WordCount         int     `json:"word_count"`
	SentenceCount     int     `json:"sentence_count"`
	ParagraphCount    int     `json:"paragraph_count"`
	AverageWordLength float64 `json:"average_word_length"`

	Sentiment      string  `json:"sentiment"` // positive, negative, neutral
	SentimentScore float64 `json:"sentiment_score"`
	Subjectivity   float64 `json:"subjectivity"`

	ReadabilityScore float64 `json:"readability_score"`
	ReadabilityLevel string  `json:"readability_level"`
}

// AnalysisResult is the aggregate root produced by one pipeline run. It owns
// everything reachable from it and is replaced wholesale on the next run.
type AnalysisResult struct {
	ID   string         `json:"id"`
	Text NormalizedText `json:"text"`

	Entities []CanonicalEntity `json:"entities"`
	Mentions []EntityMention   `json:"mentions"`
	Keywords []Keyword         `json:"keywords"`
	Triples  []RelationTriple  `json:"triples"`
	Graph    Graph             `json:"graph"`
	Metrics  Metrics           `json:"metrics"`

	// Summary is filled in by LLM enrichment when enabled.
	Summary string `json:"summary,omitempty"`

	// Partial is set when a stage degraded to empty output instead of
	// aborting the run; StageErrors records what failed.
	Partial     bool     `json:"partial"`
	StageErrors []string `json:"stage_errors,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityByID returns the canonical entity with the given id, if present.
func (r *AnalysisResult) EntityByID(id string) (CanonicalEntity, bool) {
	for _, e := range r.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return CanonicalEntity{}, false
}
