// Package sparse provides a local, dependency-free sparse embedder: a
// hashed-vocabulary term-frequency vectorizer. It gives backends that
// support a sparse search channel (SparseSearcher) something to index
// without depending on an external sparse-embedding API.
package sparse

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/oceanbase/powermem/pkg/embedder"
)

// bucketCount bounds the term-hash space. Collisions are acceptable: a
// hashed-vocabulary sparse vector trades exactness for a fixed, small
// dimensionality, the same tradeoff the "hashing trick" makes generally.
const bucketCount = 1 << 16

// Provider is a hashed term-frequency sparse embedder. It implements
// embedder.SparseProvider.
type Provider struct{}

// New creates a new hashed-vocabulary sparse embedder.
func New() *Provider {
	return &Provider{}
}

var _ embedder.SparseProvider = (*Provider)(nil)

// EmbedSparse tokenizes text and returns a log-scaled term-frequency
// vector keyed by hashed term bucket.
func (p *Provider) EmbedSparse(_ context.Context, text string) (map[int]float64, error) {
	return vectorize(text), nil
}

// EmbedSparseBatch embeds multiple texts.
func (p *Provider) EmbedSparseBatch(_ context.Context, texts []string) ([]map[int]float64, error) {
	out := make([]map[int]float64, len(texts))
	for i, t := range texts {
		out[i] = vectorize(t)
	}
	return out, nil
}

func vectorize(text string) map[int]float64 {
	counts := make(map[int]int)
	for _, tok := range tokenize(text) {
		bucket := hashTerm(tok) % bucketCount
		counts[bucket]++
	}

	vec := make(map[int]float64, len(counts))
	for bucket, count := range counts {
		// 1 + log(tf) dampens the contribution of very frequent terms
		// without discarding their presence entirely.
		vec[bucket] = 1.0 + math.Log(float64(count))
	}
	return vec
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// hashTerm is FNV-1a, inlined to avoid importing hash/fnv for a single use.
func hashTerm(s string) int {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return int(h & 0x7fffffff)
}

// CosineSimilarity scores two sparse vectors for ranking/testing.
func CosineSimilarity(a, b map[int]float64) float64 {
	var dot, normA, normB float64
	for k, v := range a {
		normA += v * v
		if bv, ok := b[k]; ok {
			dot += v * bv
		}
	}
	for _, v := range b {
		normB += v * v
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
