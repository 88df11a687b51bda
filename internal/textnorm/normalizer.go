// Package textnorm cleans raw extracted text and segments it into sentences.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zombar/knowledgegraph/internal/models"
)

// EmptyInputError indicates the cleaned text contains no usable characters.
// It is terminal for the whole run; downstream stages are never invoked.
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string {
	return "empty input: no usable text after normalization"
}

// abbreviations that must not terminate a sentence when followed by a period.
// Checked against the case-folded token preceding the period.
var abbreviations = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"al": true, "fig": true, "eq": true, "no": true, "inc": true,
	"ltd": true, "co": true, "corp": true, "dept": true, "est": true,
	"approx": true, "jan": true, "feb": true, "mar": true, "apr": true,
	"jun": true, "jul": true, "aug": true, "sep": true, "sept": true,
	"oct": true, "nov": true, "dec": true,
}

// Normalize cleans raw text and segments it into sentences.
//
// Runs of whitespace and control characters collapse to single spaces;
// paragraph boundaries survive as a single newline. Returns EmptyInputError
// when nothing usable remains.
func Normalize(raw string) (models.NormalizedText, error) {
	clean := cleanText(raw)
	if strings.TrimSpace(clean) == "" {
		return models.NormalizedText{}, &EmptyInputError{}
	}

	return models.NormalizedText{
		Text:      clean,
		Sentences: segmentSentences(clean),
	}, nil
}

// cleanText collapses whitespace runs, drops control characters, and reduces
// paragraph breaks (blank lines) to a single newline.
func cleanText(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var paragraphs []string
	for _, para := range splitParagraphs(raw) {
		fields := strings.FieldsFunc(para, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsControl(r)
		})
		if len(fields) == 0 {
			continue
		}
		paragraphs = append(paragraphs, strings.Join(fields, " "))
	}
	return strings.Join(paragraphs, "\n")
}

// splitParagraphs splits on runs of blank lines.
func splitParagraphs(s string) []string {
	var paras []string
	var cur strings.Builder
	lines := strings.Split(s, "\n")
	blank := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if !blank {
				paras = append(paras, cur.String())
				cur.Reset()
				blank = true
			}
			continue
		}
		if !blank {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
		blank = false
	}
	if !blank {
		paras = append(paras, cur.String())
	}
	return paras
}

// segmentSentences produces ordered, non-overlapping sentence spans over the
// cleaned text. A period does not end a sentence when it follows a known
// abbreviation or a single initial, or when the next letter is lowercase.
func segmentSentences(text string) []models.Span {
	var spans []models.Span
	start := 0

	for i := 0; i < len(text); i++ {
		c := text[i]

		// Paragraph boundary always terminates the current sentence.
		if c == '\n' {
			if sp, ok := trimSpan(text, start, i); ok {
				spans = append(spans, sp)
			}
			start = i + 1
			continue
		}

		if c != '.' && c != '!' && c != '?' {
			continue
		}

		// Consume any run of terminal punctuation plus closing quotes.
		end := i + 1
		for end < len(text) && isTrailer(text[end]) {
			end++
		}

		if c == '.' && !periodEndsSentence(text, i, end) {
			i = end - 1
			continue
		}

		if sp, ok := trimSpan(text, start, end); ok {
			spans = append(spans, sp)
		}
		start = end
		i = end - 1
	}

	if sp, ok := trimSpan(text, start, len(text)); ok {
		spans = append(spans, sp)
	}
	return spans
}

func isTrailer(c byte) bool {
	switch c {
	case '.', '!', '?', '"', '\'', ')', ']':
		return true
	}
	return false
}

// periodEndsSentence applies the abbreviation and lowercase-follower rules for
// a period at index i, where end is the index just past its trailer run.
func periodEndsSentence(text string, i, end int) bool {
	// Period inside a number, e.g. "3.14".
	if i > 0 && isDigit(text[i-1]) && end < len(text) && isDigit(text[end]) {
		return false
	}

	word := precedingWord(text, i)
	folded := strings.ToLower(word)
	if abbreviations[folded] {
		return false
	}
	// Single initial, e.g. "J." in "J. Smith", or the inner stops of "e.g.".
	if utf8.RuneCountInString(word) == 1 && word != "" && isLetterString(word) {
		return false
	}

	// A boundary is only confirmed when the next letter starts a new
	// sentence-shaped token: lowercase continuation means no break.
	r, ok := nextLetter(text, end)
	if ok && unicode.IsLower(r) {
		return false
	}
	return true
}

func precedingWord(text string, i int) string {
	j := i
	for j > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:j])
		if !unicode.IsLetter(r) {
			break
		}
		j -= size
	}
	return text[j:i]
}

func nextLetter(text string, from int) (rune, bool) {
	for k := from; k < len(text); {
		r, size := utf8.DecodeRuneInString(text[k:])
		if unicode.IsLetter(r) {
			return r, true
		}
		if !unicode.IsSpace(r) && r != '"' && r != '\'' && r != '(' {
			return 0, false
		}
		k += size
	}
	return 0, false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetterString(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}

// trimSpan shrinks [start, end) to exclude surrounding whitespace, reporting
// whether anything remains.
func trimSpan(text string, start, end int) (models.Span, bool) {
	for start < end && (text[start] == ' ' || text[start] == '\n') {
		start++
	}
	for end > start && (text[end-1] == ' ' || text[end-1] == '\n') {
		end--
	}
	if start >= end {
		return models.Span{}, false
	}
	return models.Span{Start: start, End: end}, true
}
