// Package entities turns raw NER mentions into deduplicated canonical
// entities with stable, deterministic ids.
package entities

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/zombar/knowledgegraph/internal/models"
	"github.com/zombar/knowledgegraph/internal/nlp"
)

// Config controls mention merging and noise filtering.
type Config struct {
	// AcronymMerge enables initials-only acronym matching between mentions
	// of the same coarse type ("WHO" vs "World Health Organization").
	// Off by default: without alias data it risks false merges.
	AcronymMerge bool

	// MinSurfaceLen discards single-mention "misc" entities whose surface
	// is shorter than this many characters.
	MinSurfaceLen int
}

// DefaultConfig returns the extraction defaults.
func DefaultConfig() Config {
	return Config{
		AcronymMerge:  false,
		MinSurfaceLen: 2,
	}
}

// Extractor runs NER via the tagger collaborator and merges the resulting
// mentions into canonical entities.
type Extractor struct {
	tagger nlp.Tagger
	cfg    Config
}

// NewExtractor creates an entity extractor.
func NewExtractor(tagger nlp.Tagger, cfg Config) *Extractor {
	if cfg.MinSurfaceLen <= 0 {
		cfg.MinSurfaceLen = DefaultConfig().MinSurfaceLen
	}
	return &Extractor{tagger: tagger, cfg: cfg}
}

// Extract tags the normalized text and returns the canonical entity set plus
// the full mention list for traceability.
func (e *Extractor) Extract(doc models.NormalizedText) ([]models.CanonicalEntity, []models.EntityMention, error) {
	mentions, err := e.tagger.Tag(doc.Text)
	if err != nil {
		return nil, nil, fmt.Errorf("ner tagging: %w", err)
	}
	mentions = clampMentions(mentions, len(doc.Text))

	ents := Merge(mentions, e.cfg)
	return ents, mentions, nil
}

// clampMentions drops mentions whose spans fall outside the text, so a
// misbehaving collaborator cannot corrupt downstream indexing.
func clampMentions(mentions []models.EntityMention, textLen int) []models.EntityMention {
	out := mentions[:0]
	for _, m := range mentions {
		if m.Span.Start < 0 || m.Span.End > textLen || m.Span.Start >= m.Span.End {
			continue
		}
		if m.Type == "" {
			m.Type = models.EntityUnknown
		}
		out = append(out, m)
	}
	return out
}

// Merge deduplicates mentions into canonical entities. Mentions merge when
// their case-folded, punctuation-stripped surfaces match exactly, or (opt-in)
// when one surface is the initials of the other and both share a coarse type.
// Implemented as a union-find over mention groups, so alias chains cannot
// form cycles.
func Merge(mentions []models.EntityMention, cfg Config) []models.CanonicalEntity {
	if len(mentions) == 0 {
		return nil
	}

	uf := newUnionFind(len(mentions))

	// Rule (a): exact normalized-surface matches.
	byNorm := make(map[string]int)
	for i, m := range mentions {
		norm := NormalizeSurface(m.Surface)
		if first, ok := byNorm[norm]; ok {
			uf.union(first, i)
		} else {
			byNorm[norm] = i
		}
	}

	// Rule (b): initials-only acronym matches within the same coarse type.
	if cfg.AcronymMerge {
		for i := range mentions {
			for j := i + 1; j < len(mentions); j++ {
				if uf.find(i) == uf.find(j) {
					continue
				}
				if mentions[i].Type != mentions[j].Type {
					continue
				}
				if isAcronymOf(mentions[i].Surface, mentions[j].Surface) ||
					isAcronymOf(mentions[j].Surface, mentions[i].Surface) {
					uf.union(i, j)
				}
			}
		}
	}

	// Collect groups in first-occurrence order.
	groups := make(map[int][]int)
	var order []int
	for i := range mentions {
		root := uf.find(i)
		if _, seen := groups[root]; !seen {
			order = append(order, root)
		}
		groups[root] = append(groups[root], i)
	}

	usedIDs := make(map[string]int)
	var out []models.CanonicalEntity
	for _, root := range order {
		ent := buildEntity(mentions, groups[root])
		if discardable(ent, cfg) {
			continue
		}
		ent.ID = uniqueID(ent, usedIDs)
		out = append(out, ent)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Mentions[0].Start < out[j].Mentions[0].Start
	})
	return out
}

// buildEntity selects the canonical label and type for one merged group.
// Label: most frequent surface, tie broken by longer string, then first
// occurrence. Type: most frequent type, tie broken by first occurrence.
func buildEntity(mentions []models.EntityMention, idxs []int) models.CanonicalEntity {
	surfaceCount := make(map[string]int)
	surfaceFirst := make(map[string]int)
	typeCount := make(map[models.EntityType]int)
	typeFirst := make(map[models.EntityType]int)

	spans := make([]models.Span, 0, len(idxs))
	for _, i := range idxs {
		m := mentions[i]
		surfaceCount[m.Surface]++
		if _, ok := surfaceFirst[m.Surface]; !ok {
			surfaceFirst[m.Surface] = i
		}
		typeCount[m.Type]++
		if _, ok := typeFirst[m.Type]; !ok {
			typeFirst[m.Type] = i
		}
		spans = append(spans, m.Span)
	}

	label := ""
	for surface := range surfaceCount {
		if label == "" || betterLabel(surface, label, surfaceCount, surfaceFirst) {
			label = surface
		}
	}

	var typ models.EntityType
	for t := range typeCount {
		if typ == "" ||
			typeCount[t] > typeCount[typ] ||
			(typeCount[t] == typeCount[typ] && typeFirst[t] < typeFirst[typ]) {
			typ = t
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	return models.CanonicalEntity{
		Label:        label,
		Type:         typ,
		Mentions:     spans,
		MentionCount: len(spans),
	}
}

func betterLabel(candidate, current string, count, first map[string]int) bool {
	if count[candidate] != count[current] {
		return count[candidate] > count[current]
	}
	if len(candidate) != len(current) {
		return len(candidate) > len(current)
	}
	return first[candidate] < first[current]
}

// discardable reports whether a single-mention misc entity is too short to be
// anything but NER noise.
func discardable(ent models.CanonicalEntity, cfg Config) bool {
	return ent.MentionCount == 1 &&
		ent.Type == models.EntityMisc &&
		len(ent.Label) < cfg.MinSurfaceLen
}

// NormalizeSurface case-folds a surface form and strips punctuation, keeping
// word boundaries intact.
func NormalizeSurface(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// isAcronymOf reports whether short is exactly the initials of long. The
// comparison is initials-only to avoid merging on loose substring matches.
func isAcronymOf(short, long string) bool {
	s := NormalizeSurface(short)
	words := strings.Fields(NormalizeSurface(long))
	if len(words) < 2 || len(s) != len(words) {
		return false
	}
	for i, w := range words {
		if rune(s[i]) != rune(w[0]) {
			return false
		}
	}
	return true
}

// uniqueID derives a deterministic id from the canonical label and type,
// suffixing a counter on the rare slug collision.
func uniqueID(ent models.CanonicalEntity, used map[string]int) string {
	base := slug(ent.Label) + "-" + string(ent.Type)
	used[base]++
	if used[base] == 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, used[base])
}

// slug lowercases and hyphenates a label the same way tags are normalized
// elsewhere in the service.
func slug(s string) string {
	s = NormalizeSurface(s)
	s = strings.ReplaceAll(s, " ", "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.Trim(s, "-")
}

// unionFind is a plain weighted union-find over mention indices.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	// Attach the smaller tree, preferring the earlier root on ties so group
	// ordering stays stable.
	if uf.size[ra] < uf.size[rb] || (uf.size[ra] == uf.size[rb] && rb < ra) {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}
