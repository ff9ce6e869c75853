package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/trutina/internal/chunker"
	"github.com/ternarybob/trutina/internal/models"
)

// rerank blends the vector similarity with lexical overlap:
// 0.5 x original + 0.5 x jaccard(query words, chunk words). A cross-encoder
// slot would shift the weights to 0.3/0.7 but none ships in-process.
func rerank(query string, results []models.SearchResult) []models.SearchResult {
	queryWords := wordSet(query)

	reranked := make([]models.SearchResult, len(results))
	for i, result := range results {
		blended := 0.5*result.Similarity + 0.5*jaccard(queryWords, wordSet(result.Record.Text))
		reranked[i] = models.SearchResult{Record: result.Record, Similarity: blended}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Similarity > reranked[j].Similarity
	})
	return reranked
}

// filterByScore drops results below the floor.
func filterByScore(results []models.SearchResult, floor float64) []models.SearchResult {
	kept := make([]models.SearchResult, 0, len(results))
	for _, result := range results {
		if result.Similarity >= floor {
			kept = append(kept, result)
		}
	}
	return kept
}

// dedupe drops a chunk when its word-set Jaccard similarity against any
// already-kept chunk reaches the threshold.
func dedupe(results []models.SearchResult, threshold float64) []models.SearchResult {
	kept := make([]models.SearchResult, 0, len(results))
	keptWords := make([]map[string]struct{}, 0, len(results))

	for _, result := range results {
		words := wordSet(result.Record.Text)
		duplicate := false
		for _, existing := range keptWords {
			if jaccard(words, existing) >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, result)
			keptWords = append(keptWords, words)
		}
	}
	return kept
}

// assembleContext concatenates chunks under a token budget, each prefixed
// with its source attribution header. Returns the context text and the
// source references actually included.
func assembleContext(results []models.SearchResult, tokenBudget int) (string, []models.SourceRef) {
	var context strings.Builder
	sources := make([]models.SourceRef, 0, len(results))
	used := 0

	for i, result := range results {
		header := fmt.Sprintf("[Source %d: %s, relevance: %.2f]", i+1, sourceBasename(&result.Record), result.Similarity)
		block := header + "\n" + result.Record.Text

		tokens := chunker.EstimateTokens(block)
		if used+tokens > tokenBudget && used > 0 {
			break
		}

		if context.Len() > 0 {
			context.WriteString("\n\n")
		}
		context.WriteString(block)
		used += tokens

		sources = append(sources, models.SourceRef{
			Source:     sourceBasename(&result.Record),
			ChunkID:    result.Record.ChunkID,
			Relevance:  result.Similarity,
			Collection: result.Record.Collection,
		})
	}
	return context.String(), sources
}

func sourceBasename(record *models.VectorRecord) string {
	source := record.Metadata["source"]
	if source == "" {
		return record.ChunkID
	}
	if idx := strings.LastIndexAny(source, "/\\"); idx >= 0 {
		source = source[idx+1:]
	}
	return source
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(word, ".,!?;:\"'()[]")] = struct{}{}
	}
	delete(set, "")
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for word := range a {
		if _, ok := b[word]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
