package rag

import (
	"math"
	"strings"
	"unicode"

	"github.com/ternarybob/trutina/internal/models"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "of": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "with": {}, "by": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"it": {}, "its": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"as": {}, "from": {}, "has": {}, "have": {}, "had": {}, "not": {}, "no": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "can": {}, "could": {},
}

// Evaluate computes the five answer quality scores. All scores are
// deterministic lexical measures in [0, 1]; hallucination is defined as
// 1 - groundedness.
func Evaluate(query, response, contextText string) models.EvaluationScores {
	groundedness := scoreGroundedness(response, contextText)
	return models.EvaluationScores{
		Relevance:     scoreRelevance(query, response),
		Groundedness:  groundedness,
		Completeness:  scoreCompleteness(query, response),
		Hallucination: clamp01(1 - groundedness),
		Coherence:     scoreCoherence(response),
	}
}

// scoreRelevance blends query-word overlap with a length-bounded factor.
func scoreRelevance(query, response string) float64 {
	queryWords := contentWords(query)
	if len(queryWords) == 0 {
		return 0
	}
	responseSet := wordSet(response)

	matched := 0
	for word := range queryWords {
		if _, ok := responseSet[word]; ok {
			matched++
		}
	}
	overlap := float64(matched) / float64(len(queryWords))

	length := len(strings.Fields(response))
	lengthScore := 1.0
	switch {
	case length == 0:
		lengthScore = 0
	case length < 20:
		lengthScore = float64(length) / 20
	case length > 500:
		lengthScore = 500.0 / float64(length)
	}

	return clamp01(0.7*overlap + 0.3*lengthScore)
}

// scoreGroundedness is the fraction of response sentences whose content
// words appear at least half in the context corpus.
func scoreGroundedness(response, contextText string) float64 {
	sentences := splitSentences(response)
	if len(sentences) == 0 {
		return 0
	}
	corpus := wordSet(contextText)

	grounded := 0
	for _, sentence := range sentences {
		words := contentWords(sentence)
		if len(words) == 0 {
			grounded++
			continue
		}
		found := 0
		for word := range words {
			if _, ok := corpus[word]; ok {
				found++
			}
		}
		if float64(found)/float64(len(words)) >= 0.5 {
			grounded++
		}
	}
	return clamp01(float64(grounded) / float64(len(sentences)))
}

// scoreCompleteness blends a length threshold with query-word coverage.
func scoreCompleteness(query, response string) float64 {
	length := len(strings.Fields(response))
	lengthScore := 1.0
	if length < 30 {
		lengthScore = float64(length) / 30
	}

	queryWords := contentWords(query)
	coverage := 1.0
	if len(queryWords) > 0 {
		responseSet := wordSet(response)
		matched := 0
		for word := range queryWords {
			if _, ok := responseSet[word]; ok {
				matched++
			}
		}
		coverage = float64(matched) / float64(len(queryWords))
	}

	return clamp01(0.5*lengthScore + 0.5*coverage)
}

// scoreCoherence blends sentence-length regularity with the fraction of
// well-formed sentences (capitalized start, terminal punctuation).
func scoreCoherence(response string) float64 {
	sentences := splitSentences(response)
	if len(sentences) == 0 {
		return 0
	}

	lengths := make([]float64, len(sentences))
	wellFormed := 0
	for i, sentence := range sentences {
		lengths[i] = float64(len(strings.Fields(sentence)))

		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}
		first := []rune(trimmed)[0]
		last := trimmed[len(trimmed)-1]
		if (unicode.IsUpper(first) || unicode.IsDigit(first)) &&
			(last == '.' || last == '!' || last == '?') {
			wellFormed++
		}
	}
	formScore := float64(wellFormed) / float64(len(sentences))

	regularity := 1.0
	if len(lengths) > 1 {
		mean := 0.0
		for _, l := range lengths {
			mean += l
		}
		mean /= float64(len(lengths))
		if mean > 0 {
			variance := 0.0
			for _, l := range lengths {
				variance += (l - mean) * (l - mean)
			}
			variance /= float64(len(lengths))
			cv := math.Sqrt(variance) / mean
			regularity = clamp01(1 - cv/2)
		}
	}

	return clamp01(0.5*regularity + 0.5*formScore)
}

func contentWords(text string) map[string]struct{} {
	words := wordSet(text)
	for stop := range stopwords {
		delete(words, stop)
	}
	return words
}

// splitSentences breaks on terminal punctuation followed by whitespace.
func splitSentences(text string) []string {
	sentences := make([]string, 0)
	runes := []rune(strings.TrimSpace(text))
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				sentence := strings.TrimSpace(string(runes[start : i+1]))
				if sentence != "" {
					sentences = append(sentences, sentence)
				}
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		tail := strings.TrimSpace(string(runes[start:]))
		if tail != "" {
			sentences = append(sentences, tail)
		}
	}
	return sentences
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
