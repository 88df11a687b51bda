// Package keywords ranks document terms by salience using term-frequency /
// inverse-sentence-frequency weighting, with the document's own sentences
// standing in for a corpus.
package keywords

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/zombar/knowledgegraph/internal/models"
)

// Config controls candidate filtering and output size.
type Config struct {
	// TopN caps the returned keyword list.
	TopN int

	// MinWordLen drops very short tokens from candidacy.
	MinWordLen int

	// IncludeEntityTerms keeps tokens that also appear in canonical entity
	// surface forms. Off by default to avoid duplicating the entity signal.
	IncludeEntityTerms bool
}

// DefaultConfig returns the scoring defaults.
func DefaultConfig() Config {
	return Config{
		TopN:       25,
		MinWordLen: 4,
	}
}

// Scorer computes salience scores for document terms.
type Scorer struct {
	cfg Config
}

// NewScorer creates a keyword scorer.
func NewScorer(cfg Config) *Scorer {
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultConfig().TopN
	}
	if cfg.MinWordLen <= 0 {
		cfg.MinWordLen = DefaultConfig().MinWordLen
	}
	return &Scorer{cfg: cfg}
}

// Score ranks terms of the normalized text. Stop words and (unless configured
// otherwise) entity surface terms are excluded. Output ordering is
// deterministic: score descending, raw frequency descending, term ascending.
func (s *Scorer) Score(doc models.NormalizedText, ents []models.CanonicalEntity) []models.Keyword {
	exclude := map[string]bool{}
	if !s.cfg.IncludeEntityTerms {
		exclude = entityTerms(ents)
	}

	freq := make(map[string]int)
	sentFreq := make(map[string]int)

	numSentences := len(doc.Sentences)
	if numSentences == 0 {
		return nil
	}

	for i := 0; i < numSentences; i++ {
		seen := make(map[string]bool)
		for _, tok := range Tokenize(doc.Sentence(i)) {
			if len(tok) < s.cfg.MinWordLen || IsStopWord(tok) || exclude[tok] {
				continue
			}
			freq[tok]++
			if !seen[tok] {
				sentFreq[tok]++
				seen[tok] = true
			}
		}
	}

	out := make([]models.Keyword, 0, len(freq))
	for term, tf := range freq {
		isf := math.Log(1 + float64(numSentences)/float64(sentFreq[term]))
		out = append(out, models.Keyword{
			Term:      term,
			Score:     float64(tf) * isf,
			Frequency: tf,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Term < out[j].Term
	})

	if len(out) > s.cfg.TopN {
		out = out[:s.cfg.TopN]
	}
	return out
}

// Tokenize lower-cases text and splits it into alphanumeric word tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// entityTerms returns the case-folded words of every entity surface form, so
// keyword output does not re-report what entity extraction already found.
func entityTerms(ents []models.CanonicalEntity) map[string]bool {
	terms := make(map[string]bool)
	for _, e := range ents {
		for _, w := range Tokenize(e.Label) {
			terms[w] = true
		}
	}
	return terms
}
