package ollama

import (
	"context"
	"log"

	"github.com/zombar/knowledgegraph/internal/models"
	"github.com/zombar/knowledgegraph/internal/nlp"
)

// Tagger adapts the client into an NER collaborator. When the model call
// fails or reports nothing usable, tagging falls back to the rule-based
// tagger so a flaky Ollama never blocks analysis.
type Tagger struct {
	client   *Client
	fallback nlp.Tagger
}

// NewTagger wraps the client with a rule-based fallback tagger.
func NewTagger(client *Client, fallback nlp.Tagger) *Tagger {
	return &Tagger{client: client, fallback: fallback}
}

// Tag asks the model for entity mentions, falling back to the rule-based
// tagger on failure.
func (t *Tagger) Tag(text string) ([]models.EntityMention, error) {
	mentions, err := t.client.ExtractEntities(context.Background(), text)
	if err == nil && len(mentions) > 0 {
		return mentions, nil
	}
	if err != nil {
		log.Printf("Ollama: entity tagging failed, using rule-based tagger: %v", err)
	}
	return t.fallback.Tag(text)
}
