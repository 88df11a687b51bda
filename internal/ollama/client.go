package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/zombar/knowledgegraph/internal/models"
)

const (
	DefaultModel   = "gpt-oss:20b"
	DefaultTimeout = 360 * time.Second
)

// Client wraps the Ollama API client. It provides the optional LLM-assisted
// extraction paths; the rule-based extractors remain the default.
type Client struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

// New creates a new Ollama client
func New(ollamaURL, model string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	if model == "" {
		model = DefaultModel
	}

	baseURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	client := api.NewClient(baseURL, http.DefaultClient)

	return &Client{
		client:  client,
		model:   model,
		timeout: DefaultTimeout,
	}, nil
}

// GenerateResponse generates a response from the LLM
func (c *Client) GenerateResponse(ctx context.Context, prompt string) (string, error) {
	log.Printf("Ollama: Sending request to model %s (timeout: %v)", c.model, c.timeout)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: new(bool), // false
	}

	var response strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		response.WriteString(resp.Response)
		return nil
	})

	if err != nil {
		log.Printf("Ollama: Generation failed: %v", err)
		return "", fmt.Errorf("generation failed: %w", err)
	}

	result := strings.TrimSpace(response.String())
	log.Printf("Ollama: Response received (%d chars)", len(result))
	return result, nil
}

// taggedEntity is the wire shape the entity extraction prompt asks for.
type taggedEntity struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// ExtractEntities asks the model for named entities in the text and maps
// them onto mention spans. Entities whose surface cannot be located in the
// text are dropped.
func (c *Client) ExtractEntities(ctx context.Context, text string) ([]models.EntityMention, error) {
	prompt := fmt.Sprintf(`Extract the named entities from the following text.

Entity types to extract: person, organization, location, date, event, product, work_of_art.

Rules:
- Report each entity surface EXACTLY as it appears in the text
- Use the type names given above, lowercase
- Do NOT invent entities that are not in the text
- Return ONLY a JSON array of objects with fields: text, type

Text:
%s

Entities (JSON array):`, text)

	response, err := c.GenerateResponse(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var tagged []taggedEntity
	if err := parseJSONArray(response, &tagged); err != nil {
		return nil, fmt.Errorf("failed to parse entities JSON: %w", err)
	}

	return locateMentions(text, tagged), nil
}

// locateMentions maps reported entity surfaces onto spans in the text.
// Surfaces are located left to right so repeated surfaces map to successive
// occurrences; surfaces not present in the text are dropped.
func locateMentions(text string, tagged []taggedEntity) []models.EntityMention {
	mentions := make([]models.EntityMention, 0, len(tagged))
	searchFrom := 0
	for _, t := range tagged {
		surface := strings.TrimSpace(t.Text)
		if surface == "" {
			continue
		}
		idx := strings.Index(text[searchFrom:], surface)
		off := searchFrom
		if idx < 0 {
			idx = strings.Index(text, surface)
			off = 0
		}
		if idx < 0 {
			continue
		}
		start := off + idx
		mentions = append(mentions, models.EntityMention{
			Surface: surface,
			Span:    models.Span{Start: start, End: start + len(surface)},
			Type:    entityType(t.Type),
		})
		searchFrom = start + len(surface)
		if searchFrom > len(text) {
			searchFrom = len(text)
		}
	}
	return mentions
}

// parseJSONArray pulls the first JSON array out of a model response, which
// may carry prose before or after it.
func parseJSONArray(response string, v interface{}) error {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON array found in response")
	}
	return json.Unmarshal([]byte(response[start:end+1]), v)
}

// rawTriple is the wire shape the relation extraction prompt asks for.
type rawTriple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// RawRelation is one subject-predicate-object statement reported by the
// model, before it has been resolved against canonical entities.
type RawRelation struct {
	Subject   string
	Predicate string
	Object    string
}

// ExtractRelations asks the model for subject-predicate-object statements
// connecting the named entities.
func (c *Client) ExtractRelations(ctx context.Context, text string, entityLabels []string) ([]RawRelation, error) {
	prompt := fmt.Sprintf(`Extract relationships between the known entities from the following text.

Known entities: %s

Rules:
- Subject and object MUST both be entities from the list above
- The predicate is a short lowercase verb phrase with underscores, e.g. "works_at", "founded", "met"
- Only report relationships stated in the text
- Return ONLY a JSON array of objects with fields: subject, predicate, object

Text:
%s

Relationships (JSON array):`, strings.Join(entityLabels, ", "), text)

	response, err := c.GenerateResponse(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var raw []rawTriple
	if err := parseJSONArray(response, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse relationships JSON: %w", err)
	}

	relations := make([]RawRelation, 0, len(raw))
	for _, t := range raw {
		if t.Subject == "" || t.Predicate == "" || t.Object == "" {
			continue
		}
		relations = append(relations, RawRelation{
			Subject:   strings.TrimSpace(t.Subject),
			Predicate: normalizePredicate(t.Predicate),
			Object:    strings.TrimSpace(t.Object),
		})
	}

	return relations, nil
}

// Summarize creates a 2-3 sentence synopsis of the text.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(`Analyze the following text and provide a concise synopsis that captures the main points and key ideas.

Requirements:
- Write EXACTLY 2 or 3 short sentences summarizing the content
- Keep each sentence under 15 words
- Use simple, clear language
- Do NOT use numbering or bullet points
- Do NOT provide meta-commentary (e.g., "the text has...", "this article discusses...")

Text:
%s

Synopsis:`, text)

	return c.GenerateResponse(ctx, prompt)
}

// normalizePredicate lowercases a predicate and joins its words with
// underscores, collapsing repeats.
func normalizePredicate(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	p = strings.ReplaceAll(p, " ", "_")
	p = strings.ReplaceAll(p, "-", "_")
	for strings.Contains(p, "__") {
		p = strings.ReplaceAll(p, "__", "_")
	}
	return strings.Trim(p, "_")
}

func entityType(s string) models.EntityType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "person":
		return models.EntityPerson
	case "organization", "org":
		return models.EntityOrganization
	case "location", "place", "gpe":
		return models.EntityLocation
	case "date", "time":
		return models.EntityDate
	case "event":
		return models.EntityEvent
	case "product":
		return models.EntityProduct
	case "work_of_art", "work of art":
		return models.EntityWorkOfArt
	default:
		return models.EntityMisc
	}
}
