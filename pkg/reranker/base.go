// Package reranker provides an optional post-fusion reranking step for the
// retrieval engine: given a query and a candidate set already ranked by
// reciprocal rank fusion, a reranker reorders (and rescoes) them using a
// model with a fuller view of query/document interaction than the
// independent per-channel scores allowed.
package reranker

import "context"

// Candidate is a fused search result handed to the reranker.
type Candidate struct {
	ID      string
	Content string
	Score   float64
}

// Provider reorders candidates for a query. Implementations return the
// same IDs, re-scored and re-ordered; they must not invent or drop IDs.
type Provider interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error)
}
