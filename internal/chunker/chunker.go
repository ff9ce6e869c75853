// Package chunker segments text into token-bounded chunks for embedding.
// Four strategies share one token accountant; files dispatch by extension.
package chunker

import (
	"fmt"
	"math"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/models"
)

// Strategy selects the segmentation algorithm.
type Strategy string

const (
	StrategyFixed     Strategy = "fixed"
	StrategyRecursive Strategy = "recursive"
	StrategySentence  Strategy = "sentence"
	StrategySemantic  Strategy = "semantic"
)

// Chunker produces immutable chunks. The strategy is fixed at construction.
type Chunker struct {
	strategy  Strategy
	chunkSize int
	overlap   int
	logger    arbor.ILogger
}

// New creates a chunker. The semantic strategy degrades to sentence; the
// degradation is logged at construction so it is never silent.
func New(strategy Strategy, chunkSize, overlap int, logger arbor.ILogger) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, apperr.Validation("chunk_size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, apperr.Validation("chunk_overlap must be within [0, chunk_size), got %d", overlap)
	}

	switch strategy {
	case StrategyFixed, StrategyRecursive, StrategySentence:
	case StrategySemantic:
		logger.Warn().Msg("No similarity model available, semantic chunking degrades to sentence strategy")
		strategy = StrategySentence
	default:
		return nil, apperr.Validation("unknown chunking strategy %q", strategy)
	}

	return &Chunker{strategy: strategy, chunkSize: chunkSize, overlap: overlap, logger: logger}, nil
}

// EstimateTokens approximates the token count as 1.3x the word count,
// rounded up. Callers treat it as an upper bound for packing.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(1.3 * float64(words)))
}

// ChunkText segments text into chunks attributed to source. Empty and
// whitespace-only input yields no chunks.
func (c *Chunker) ChunkText(text, source string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return []models.Chunk{}
	}

	var pieces []string
	switch c.strategy {
	case StrategyFixed:
		pieces = c.fixedSplit(text)
	case StrategyRecursive:
		pieces = c.recursiveSplit(text)
	default:
		pieces = c.sentenceSplit(text)
	}

	return c.assemble(pieces, source)
}

func (c *Chunker) assemble(pieces []string, source string) []models.Chunk {
	chunks := make([]models.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		index := len(chunks)
		chunks = append(chunks, models.Chunk{
			ChunkID:    fmt.Sprintf("%s_%d", source, index),
			Text:       piece,
			Metadata:   map[string]string{"source": source},
			TokenCount: EstimateTokens(piece),
			ChunkIndex: index,
		})
	}
	return chunks
}

// maxWords converts the token budget back into a word budget under the
// 1.3x estimate.
func (c *Chunker) maxWords() int {
	words := int(float64(c.chunkSize) / 1.3)
	if words < 1 {
		words = 1
	}
	return words
}

func (c *Chunker) overlapWords() int {
	return int(float64(c.overlap) / 1.3)
}

// fixedSplit slides a fixed window of words with overlap.
func (c *Chunker) fixedSplit(text string) []string {
	words := strings.Fields(text)
	window := c.maxWords()
	step := window - c.overlapWords()
	if step < 1 {
		step = 1
	}

	pieces := make([]string, 0)
	for start := 0; start < len(words); start += step {
		end := start + window
		if end > len(words) {
			end = len(words)
		}
		pieces = append(pieces, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return pieces
}

// recursiveSplit splits on blank-line paragraphs, descending to sentences
// and then words only for pieces over budget, then greedy-packs.
func (c *Chunker) recursiveSplit(text string) []string {
	paragraphs := splitParagraphs(text)

	atoms := make([]string, 0, len(paragraphs))
	for _, paragraph := range paragraphs {
		if EstimateTokens(paragraph) <= c.chunkSize {
			atoms = append(atoms, paragraph)
			continue
		}
		for _, sentence := range splitSentences(paragraph) {
			if EstimateTokens(sentence) <= c.chunkSize {
				atoms = append(atoms, sentence)
				continue
			}
			atoms = append(atoms, c.fixedSplit(sentence)...)
		}
	}
	return c.pack(atoms)
}

// sentenceSplit splits on sentence boundaries and greedy-packs.
func (c *Chunker) sentenceSplit(text string) []string {
	return c.pack(splitSentences(text))
}

// pack greedily joins atoms into pieces that stay within the token budget.
func (c *Chunker) pack(atoms []string) []string {
	pieces := make([]string, 0)
	var current strings.Builder
	currentTokens := 0

	for _, atom := range atoms {
		atom = strings.TrimSpace(atom)
		if atom == "" {
			continue
		}
		tokens := EstimateTokens(atom)
		if currentTokens > 0 && currentTokens+tokens > c.chunkSize {
			pieces = append(pieces, current.String())
			current.Reset()
			currentTokens = 0
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(atom)
		currentTokens += tokens
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(normalized, "\n\n")
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			paragraphs = append(paragraphs, strings.TrimSpace(part))
		}
	}
	return paragraphs
}

// splitSentences breaks text on terminal punctuation followed by
// whitespace. Plain scan instead of regex lookbehind.
func splitSentences(text string) []string {
	sentences := make([]string, 0)
	runes := []rune(strings.TrimSpace(text))
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
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
