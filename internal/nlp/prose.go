package nlp

import (
	"fmt"
	"strings"

	"github.com/tsawler/prose/v3"

	"github.com/zombar/knowledgegraph/internal/models"
)

// Prose implements Tagger and Parser on top of the prose NLP library.
// It holds no per-document state; every call builds its own document.
type Prose struct{}

// NewProse returns a prose-backed NLP pipeline.
func NewProse() *Prose {
	return &Prose{}
}

// labelToType maps prose's spaCy-style entity labels onto the coarse types the
// pipeline understands. Known-but-uninteresting labels collapse to misc;
// anything unrecognized maps to unknown rather than being dropped.
var labelToType = map[string]models.EntityType{
	"PERSON":      models.EntityPerson,
	"ORG":         models.EntityOrganization,
	"GPE":         models.EntityLocation,
	"LOC":         models.EntityLocation,
	"FAC":         models.EntityLocation,
	"DATE":        models.EntityDate,
	"TIME":        models.EntityDate,
	"EVENT":       models.EntityEvent,
	"PRODUCT":     models.EntityProduct,
	"WORK_OF_ART": models.EntityWorkOfArt,
	"NORP":        models.EntityMisc,
	"LAW":         models.EntityMisc,
	"LANGUAGE":    models.EntityMisc,
	"MONEY":       models.EntityMisc,
	"PERCENT":     models.EntityMisc,
	"CARDINAL":    models.EntityMisc,
	"ORDINAL":     models.EntityMisc,
}

// CoarseType maps a raw NER label to a coarse entity type.
func CoarseType(label string) models.EntityType {
	if t, ok := labelToType[strings.ToUpper(label)]; ok {
		return t
	}
	return models.EntityUnknown
}

// Tag runs NER over the full text and returns one mention per hit.
func (p *Prose) Tag(text string) ([]models.EntityMention, error) {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, fmt.Errorf("prose document: %w", err)
	}

	var mentions []models.EntityMention
	for _, ent := range doc.Entities() {
		surface := strings.TrimSpace(ent.Text)
		if surface == "" {
			continue
		}
		mentions = append(mentions, models.EntityMention{
			Surface: surface,
			Span:    models.Span{Start: ent.Start, End: ent.End},
			Type:    CoarseType(ent.Label),
		})
	}
	return mentions, nil
}

// auxiliaries never serve as a relation predicate on their own.
var auxiliaries = map[string]bool{
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "am": true, "do": true, "does": true,
	"did": true, "have": true, "has": true, "had": true, "will": true,
	"would": true, "shall": true, "should": true, "can": true,
	"could": true, "may": true, "might": true, "must": true,
}

// Parse proposes SVO candidates for one sentence from its part-of-speech
// sequence: a nominal run before a governing verb, then either a direct
// object (first nominal run after the verb) or a prepositional object (first
// nominal run after an intervening preposition).
func (p *Prose) Parse(sentence string, offset int) ([]SVOCandidate, error) {
	doc, err := prose.NewDocument(sentence, prose.WithExtraction(false))
	if err != nil {
		return nil, fmt.Errorf("prose document: %w", err)
	}
	toks := doc.Tokens()

	var cands []SVOCandidate
	for i := 0; i < len(toks); i++ {
		verbIdx, verb := governingVerb(toks, i)
		if verbIdx < 0 {
			break
		}
		i = verbIdx

		subj, ok := nominalBefore(toks, verbIdx)
		if !ok {
			continue
		}

		obj, prep, ok := objectAfter(toks, verbIdx)
		if !ok {
			continue
		}

		cands = append(cands, SVOCandidate{
			Subject:     shift(subj, offset),
			Verb:        verb,
			Object:      shift(obj, offset),
			Preposition: prep,
		})
		// Resume the scan past the object so each clause yields one triple.
		i = lastCovered(toks, obj)
	}
	return cands, nil
}

// governingVerb finds the main verb at or after position i. Auxiliary verbs
// are skipped; an auxiliary immediately governing a participle yields the
// participle ("was hired" -> "hired").
func governingVerb(toks []prose.Token, i int) (int, string) {
	for ; i < len(toks); i++ {
		if !strings.HasPrefix(toks[i].Tag, "VB") {
			continue
		}
		word := strings.ToLower(toks[i].Text)
		if !auxiliaries[word] {
			return i, word
		}
		// Look through adverbs for a participle governed by the auxiliary.
		for j := i + 1; j < len(toks); j++ {
			switch {
			case strings.HasPrefix(toks[j].Tag, "RB"):
				continue
			case toks[j].Tag == "VBN" || toks[j].Tag == "VBG" || toks[j].Tag == "VB":
				return j, strings.ToLower(toks[j].Text)
			}
			break
		}
	}
	return -1, ""
}

func isNominal(tag string) bool {
	switch tag {
	case "NN", "NNS", "NNP", "NNPS", "PRP":
		return true
	}
	return false
}

// nominalBefore returns the span of the contiguous nominal run closest before
// index v, so multiword names ("World Health Organization") stay intact.
func nominalBefore(toks []prose.Token, v int) (models.Span, bool) {
	end := -1
	for j := v - 1; j >= 0; j-- {
		if isNominal(toks[j].Tag) {
			end = j
			break
		}
		// Adverbs and negation may sit between subject and verb.
		if !strings.HasPrefix(toks[j].Tag, "RB") {
			return models.Span{}, false
		}
	}
	if end < 0 {
		return models.Span{}, false
	}
	start := end
	for start > 0 && isNominal(toks[start-1].Tag) {
		start--
	}
	return models.Span{Start: toks[start].Start, End: toks[end].End}, true
}

// objectAfter returns the first nominal run after the verb, either attached
// directly or through the first intervening preposition.
func objectAfter(toks []prose.Token, v int) (models.Span, string, bool) {
	prep := ""
	for j := v + 1; j < len(toks); j++ {
		tag := toks[j].Tag
		switch {
		case isNominal(tag):
			end := j
			for end+1 < len(toks) && isNominal(toks[end+1].Tag) {
				end++
			}
			return models.Span{Start: toks[j].Start, End: toks[end].End}, prep, true
		case tag == "IN" || tag == "TO":
			if prep == "" {
				prep = strings.ToLower(toks[j].Text)
			}
		case tag == "DT" || tag == "JJ" || tag == "JJR" || tag == "JJS" ||
			tag == "PRP$" || tag == "CD" || strings.HasPrefix(tag, "RB") ||
			tag == "RP":
			// Modifiers between verb and object are fine.
		default:
			return models.Span{}, "", false
		}
	}
	return models.Span{}, "", false
}

func lastCovered(toks []prose.Token, sp models.Span) int {
	for i := len(toks) - 1; i >= 0; i-- {
		if toks[i].End <= sp.End {
			return i
		}
	}
	return len(toks) - 1
}

func shift(sp models.Span, offset int) models.Span {
	return models.Span{Start: sp.Start + offset, End: sp.End + offset}
}
