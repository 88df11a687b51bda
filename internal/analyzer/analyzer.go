package analyzer

import (
	"math"
	"strings"

	"github.com/zombar/knowledgegraph/internal/keywords"
	"github.com/zombar/knowledgegraph/internal/models"
)

// Compute derives the scalar document metrics from normalized text. It never
// fails: an empty document yields zero-valued metrics with a neutral
// sentiment.
func Compute(doc models.NormalizedText) models.Metrics {
	m := models.Metrics{}

	m.CharacterCount = len(doc.Text)
	words := keywords.Tokenize(doc.Text)
	m.WordCount = len(words)
	m.SentenceCount = doc.SentenceCount()
	m.ParagraphCount = countParagraphs(doc.Text)
	m.AverageWordLength = averageWordLength(words)

	m.Sentiment, m.SentimentScore = analyzeSentiment(words)
	m.Subjectivity = subjectivityRatio(words)

	m.ReadabilityScore = calculateReadability(words, m.SentenceCount)
	m.ReadabilityLevel = getReadabilityLevel(m.ReadabilityScore)

	return m
}

// countParagraphs counts non-empty paragraphs. Normalization collapses each
// paragraph onto a single line, so paragraphs are newline-delimited here.
func countParagraphs(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	count := 0
	for _, p := range strings.Split(text, "\n") {
		if strings.TrimSpace(p) != "" {
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return count
}

func averageWordLength(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	total := 0
	for _, word := range words {
		total += len(word)
	}
	return float64(total) / float64(len(words))
}

// analyzeSentiment scores polarity from the lexicons. The raw balance is
// scaled by 10 and clamped to [-1, 1] so short opinionated texts still
// saturate the scale.
func analyzeSentiment(words []string) (string, float64) {
	positiveCount := 0
	negativeCount := 0

	for _, word := range words {
		if positiveWords[word] {
			positiveCount++
		}
		if negativeWords[word] {
			negativeCount++
		}
	}

	total := positiveCount + negativeCount
	if total == 0 || len(words) == 0 {
		return "neutral", 0.0
	}

	score := (float64(positiveCount) - float64(negativeCount)) / float64(len(words))
	score = math.Max(-1.0, math.Min(1.0, score*10))

	sentiment := "neutral"
	if score > 0.1 {
		sentiment = "positive"
	} else if score < -0.1 {
		sentiment = "negative"
	}

	return sentiment, math.Round(score*1000) / 1000
}

// subjectivityRatio is the share of words carrying opinion markers or
// polarity, in [0, 1].
func subjectivityRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	count := 0
	for _, word := range words {
		if subjectiveWords[word] || positiveWords[word] || negativeWords[word] {
			count++
		}
	}
	ratio := float64(count) / float64(len(words)) * 4
	ratio = math.Min(1.0, ratio)
	return math.Round(ratio*1000) / 1000
}

// calculateReadability calculates the Flesch Reading Ease score.
func calculateReadability(words []string, sentenceCount int) float64 {
	if len(words) == 0 || sentenceCount == 0 {
		return 0
	}

	syllableCount := 0
	for _, word := range words {
		syllableCount += countSyllablesInWord(word)
	}

	avgWordsPerSentence := float64(len(words)) / float64(sentenceCount)
	avgSyllablesPerWord := float64(syllableCount) / float64(len(words))

	score := 206.835 - 1.015*avgWordsPerSentence - 84.6*avgSyllablesPerWord

	return math.Round(score*100) / 100
}

// countSyllablesInWord counts syllables in a single word (simplified).
func countSyllablesInWord(word string) int {
	word = strings.ToLower(word)
	if len(word) == 0 {
		return 0
	}

	count := 0
	vowels := "aeiouy"
	prevWasVowel := false

	for _, char := range word {
		isVowel := strings.ContainsRune(vowels, char)
		if isVowel && !prevWasVowel {
			count++
		}
		prevWasVowel = isVowel
	}

	// Adjust for silent e
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}

	if count == 0 {
		count = 1
	}

	return count
}

// getReadabilityLevel returns the readability level based on score
func getReadabilityLevel(score float64) string {
	switch {
	case score >= 90:
		return "very_easy"
	case score >= 80:
		return "easy"
	case score >= 70:
		return "fairly_easy"
	case score >= 60:
		return "standard"
	case score >= 50:
		return "fairly_difficult"
	case score >= 30:
		return "difficult"
	default:
		return "very_difficult"
	}
}
