// Package rrf implements reciprocal rank fusion, the method PowerMem uses
// to combine ranked result lists from different search channels (dense
// vector, full-text, sparse) or different sub-stores into one ranking
// without needing the channels' scores to be on comparable scales.
package rrf

import "sort"

// DefaultK is the rank-fusion damping constant from the standard RRF
// formula (Cormack et al.): rrf(id) = sum(weight_i / (k + rank_i)).
// k=60 is the constant the original paper found to generalize well
// across collections, and is what every channel in this codebase uses
// unless a caller has a specific reason to override it.
const DefaultK = 60

// Ranked is one ranked list contributed by a single channel (e.g. a
// backend's dense search, its FTS search, or a whole sub-store's fused
// result). IDs earlier in the slice are assumed more relevant.
type Ranked struct {
	// Source labels which channel this ranking came from, for diagnostics
	// (surfaced in the retrieval engine's _fusion_info annotation).
	Source string
	// Weight scales this channel's contribution to the fused score.
	// Defaults to 1.0 when left zero (see Fuse).
	Weight float64
	// IDs is the ranked list of identifiers, best match first.
	IDs []string
}

// Contribution records a channel's rank for an id that survived into the
// fused result, so callers can explain how a score was produced.
type Contribution struct {
	Source string
	Rank   int
	Score  float64
}

// Fused is one entry in a fused ranking.
type Fused struct {
	ID            string
	Score         float64
	Contributions []Contribution
}

// Fuse combines multiple ranked lists into one list ordered by descending
// RRF score, using k as the damping constant (DefaultK if k <= 0). An id
// that appears in several lists accumulates a contribution from each.
func Fuse(lists []Ranked, k int) []Fused {
	if k <= 0 {
		k = DefaultK
	}

	scores := make(map[string]float64)
	contributions := make(map[string][]Contribution)
	order := make([]string, 0)
	seen := make(map[string]bool)

	for _, list := range lists {
		weight := list.Weight
		if weight == 0 {
			weight = 1.0
		}
		for rank, id := range list.IDs {
			contribScore := weight / float64(k+rank+1)
			scores[id] += contribScore
			contributions[id] = append(contributions[id], Contribution{
				Source: list.Source,
				Rank:   rank + 1,
				Score:  contribScore,
			})
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
		}
	}

	fused := make([]Fused, 0, len(order))
	for _, id := range order {
		fused = append(fused, Fused{
			ID:            id,
			Score:         scores[id],
			Contributions: contributions[id],
		})
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})

	return fused
}
