// Package llmrerank implements reranker.Provider by asking an LLM to score
// each candidate's relevance to the query directly, the same
// prompt-then-parse-JSON pattern intelligence.DecisionMaker uses for
// ingest decisions.
package llmrerank

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/oceanbase/powermem/pkg/llm"
	"github.com/oceanbase/powermem/pkg/reranker"
)

// Reranker scores candidates with an LLM relevance judgment.
type Reranker struct {
	llm llm.Provider
}

// New creates an LLM-backed reranker.
func New(provider llm.Provider) *Reranker {
	return &Reranker{llm: provider}
}

var _ reranker.Provider = (*Reranker)(nil)

type scoredItem struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Rerank asks the LLM to assign each candidate a 0-1 relevance score
// against the query, then reorders candidates by that score. If the LLM
// call or parse fails, or a candidate is missing a score, the candidate's
// fused score is kept unchanged so one bad rerank pass degrades gracefully
// rather than dropping results.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []reranker.Candidate) ([]reranker.Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	prompt := buildPrompt(query, candidates)
	response, err := r.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	}, llm.WithTemperature(0))
	if err != nil {
		return candidates, fmt.Errorf("llmrerank: %w", err)
	}

	scores, err := parseScores(response)
	if err != nil {
		return candidates, fmt.Errorf("llmrerank: %w", err)
	}

	reranked := make([]reranker.Candidate, len(candidates))
	copy(reranked, candidates)
	for i, c := range reranked {
		if s, ok := scores[c.ID]; ok {
			reranked[i].Score = s
		}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	return reranked, nil
}

func buildPrompt(query string, candidates []reranker.Candidate) string {
	var b strings.Builder
	b.WriteString("You judge how relevant each candidate memory is to a search query.\n\n")
	fmt.Fprintf(&b, "# Query\n%s\n\n# Candidates\n", query)
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id: %s\n  text: %s\n", c.ID, c.Content)
	}
	b.WriteString(`
# Task
Score each candidate's relevance to the query from 0.0 (irrelevant) to
1.0 (directly answers the query). Return strict JSON, no prose, no code
fences:

{"scores": [{"id": "<id>", "score": <0.0-1.0>}, ...]}

Every candidate id must appear exactly once.`)
	return b.String()
}

func parseScores(response string) (map[string]float64, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var parsed struct {
		Scores []scoredItem `json:"scores"`
	}
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	out := make(map[string]float64, len(parsed.Scores))
	for _, s := range parsed.Scores {
		out[s.ID] = s.Score
	}
	return out, nil
}
