// Package nlp defines the collaborator interfaces consumed by the extraction
// pipeline and provides the prose-backed default implementation.
package nlp

import (
	"sync"

	"github.com/zombar/knowledgegraph/internal/models"
)

// Tagger produces mention-level NER output for a whole document.
type Tagger interface {
	Tag(text string) ([]models.EntityMention, error)
}

// SVOCandidate is one subject-verb-object proposal for a single sentence.
// Spans are in document coordinates. Preposition is set when the object
// attaches to the verb through a preposition rather than directly.
type SVOCandidate struct {
	Subject     models.Span
	Verb        string
	Object      models.Span
	Preposition string
}

// Parser proposes grammatical SVO candidates for one sentence. offset is the
// sentence's start position in the document, used to shift spans into
// document coordinates.
type Parser interface {
	Parse(sentence string, offset int) ([]SVOCandidate, error)
}

var (
	defaultOnce sync.Once
	defaultNLP  *Prose
)

// Default returns the process-wide prose pipeline. It is initialized on first
// use and read-only afterwards, so concurrent document workers can share it.
func Default() *Prose {
	defaultOnce.Do(func() {
		defaultNLP = NewProse()
	})
	return defaultNLP
}
