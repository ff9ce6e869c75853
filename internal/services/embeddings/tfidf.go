package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// tfidfEmbedder projects text into a fixed-dimension space with the
// hashing trick: each token maps to a bucket by FNV hash, weighted by
// log-scaled term frequency, then L2-normalized. Deterministic and
// dependency-free, adequate for keyword-level similarity.
type tfidfEmbedder struct {
	dim int
}

func newTFIDFEmbedder(dim int) *tfidfEmbedder {
	return &tfidfEmbedder{dim: dim}
}

func (e *tfidfEmbedder) MethodName() string {
	return fmt.Sprintf("tfidf-%d", e.dim)
}

func (e *tfidfEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)

	counts := make(map[string]int)
	for _, token := range tokenize(text) {
		counts[token]++
	}

	for token, count := range counts {
		h := fnv.New32a()
		h.Write([]byte(token))
		bucket := int(h.Sum32()) % e.dim
		if bucket < 0 {
			bucket += e.dim
		}
		// sign hash decorrelates colliding tokens
		sign := float32(1)
		if h.Sum32()&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign * float32(1+math.Log(float64(count)))
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
