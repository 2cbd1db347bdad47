// Package retrieval implements the hybrid retrieval engine: it asks the
// sub-store router which backends to search, fans out dense/full-text/
// sparse queries against each, fuses every channel by reciprocal rank
// fusion, applies a score threshold, optionally reranks, and
// reinforces retention on every memory it returns.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/oceanbase/powermem/pkg/corelog"
	"github.com/oceanbase/powermem/pkg/embedder"
	"github.com/oceanbase/powermem/pkg/filter"
	"github.com/oceanbase/powermem/pkg/intelligence"
	"github.com/oceanbase/powermem/pkg/reranker"
	"github.com/oceanbase/powermem/pkg/rrf"
	"github.com/oceanbase/powermem/pkg/storage"
	"github.com/oceanbase/powermem/pkg/substore"
)

// Weights holds the (w_v, w_f, w_s) weights used to fuse dense,
// full-text, and sparse channels. Equal weighting is the sane default
// absent a reason to favor one channel.
type Weights struct {
	Dense    float64
	FullText float64
	Sparse   float64
}

// DefaultWeights weights every channel equally.
var DefaultWeights = Weights{Dense: 1.0, FullText: 1.0, Sparse: 1.0}

// Options configures a single Search call.
type Options struct {
	UserID    string
	AgentID   string
	Filters   map[string]interface{}
	Limit     int
	Threshold float64
	Weights   Weights
}

// Hit is a single ranked retrieval result, annotated with fusion
// diagnostics.
type Hit struct {
	Memory     *storage.Memory
	Score      float64
	FusionInfo map[string]interface{}
}

// Engine is the hybrid retrieval engine.
type Engine struct {
	router         *substore.Router
	embedder       embedder.Provider
	sparseEmbedder embedder.SparseProvider
	reranker       reranker.Provider
	retention      *intelligence.EbbinghausManager
	k              int
	weights        Weights
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithSparseEmbedder enables the sparse search channel.
func WithSparseEmbedder(p embedder.SparseProvider) Option {
	return func(e *Engine) { e.sparseEmbedder = p }
}

// WithReranker enables the post-fusion rerank step.
func WithReranker(r reranker.Provider) Option {
	return func(e *Engine) { e.reranker = r }
}

// WithRetention enables best-effort retention reinforcement on returned hits.
func WithRetention(m *intelligence.EbbinghausManager) Option {
	return func(e *Engine) { e.retention = m }
}

// WithRRFConstant overrides the default RRF damping constant.
func WithRRFConstant(k int) Option {
	return func(e *Engine) { e.k = k }
}

// WithWeights sets the engine's default channel weights, used when a
// Search call does not override them.
func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// New creates a retrieval engine over the given router and query embedder.
func New(router *substore.Router, emb embedder.Provider, opts ...Option) *Engine {
	e := &Engine{router: router, embedder: emb, k: rrf.DefaultK}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type channelResult struct {
	source string
	weight float64
	ids    []string
	byID   map[string]*storage.Memory
	store  storage.VectorStore
}

// Search runs the full hybrid-search-fuse-filter-rerank-reinforce pipeline.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Hit, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	weights := opts.Weights
	if weights == (Weights{}) {
		weights = e.weights
	}
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	fetchLimit := limit * 2
	if fetchLimit < 10 {
		fetchLimit = 10
	}

	var readExpr filter.Expr
	var err error
	if len(opts.Filters) > 0 {
		readExpr, err = filter.Parse(filter.Map(opts.Filters))
		if err != nil {
			return nil, fmt.Errorf("retrieval: %w", err)
		}
	}

	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	var sparseVec map[int]float64
	if e.sparseEmbedder != nil {
		sparseVec, err = e.sparseEmbedder.EmbedSparse(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("retrieval: sparse embed query: %w", err)
		}
	}

	stores := e.router.RouteRead(readExpr)

	searchOpts := &storage.SearchOptions{
		UserID:  opts.UserID,
		AgentID: opts.AgentID,
		Filters: opts.Filters,
		Limit:   fetchLimit,
		Query:   query,
	}

	results := e.searchStores(ctx, stores, embedding, sparseVec, searchOpts, weights)

	ranked := make([]rrf.Ranked, 0, len(results))
	byID := make(map[string]*storage.Memory)
	storeByID := make(map[string]storage.VectorStore)
	for _, r := range results {
		ranked = append(ranked, rrf.Ranked{Source: r.source, Weight: r.weight, IDs: r.ids})
		for id, m := range r.byID {
			byID[id] = m
			storeByID[id] = r.store
		}
	}

	fused := rrf.Fuse(ranked, e.k)

	hits := make([]Hit, 0, len(fused))
	var maxScore float64
	for _, f := range fused {
		if f.Score > maxScore {
			maxScore = f.Score
		}
	}
	for _, f := range fused {
		m, ok := byID[f.ID]
		if !ok {
			continue
		}
		normalized := f.Score
		if maxScore > 0 {
			normalized = f.Score / maxScore
		}
		if opts.Threshold > 0 && normalized < opts.Threshold {
			continue
		}
		info := map[string]interface{}{"method": "rrf", "k": e.k, "raw_score": f.Score}
		channels := make(map[string]int, len(f.Contributions))
		for _, c := range f.Contributions {
			channels[c.Source] = c.Rank
		}
		info["channel_ranks"] = channels

		hit := *m
		hits = append(hits, Hit{Memory: &hit, Score: normalized, FusionInfo: info})
	}

	sortHits(hits)

	if e.reranker != nil && len(hits) > limit {
		topN := limit * 3
		if topN > len(hits) {
			topN = len(hits)
		}
		hits = e.rerank(ctx, query, hits, topN)
	}

	if len(hits) > limit {
		hits = hits[:limit]
	}

	for i := range hits {
		if hits[i].FusionInfo == nil {
			hits[i].FusionInfo = map[string]interface{}{}
		}
		hits[i].Memory.Metadata = withFusionInfo(hits[i].Memory.Metadata, hits[i].FusionInfo)
	}

	if e.retention != nil {
		e.reinforceAsync(hits, storeByID)
	}

	return hits, nil
}

func (e *Engine) searchStores(ctx context.Context, stores []storage.VectorStore, dense []float64, sparse map[int]float64, opts *storage.SearchOptions, weights Weights) []channelResult {
	var mu sync.Mutex
	var wg sync.WaitGroup
	var out []channelResult
	log := corelog.Component("retrieval")

	for i, store := range stores {
		wg.Add(1)
		go func(idx int, s storage.VectorStore) {
			defer wg.Done()

			memories, err := s.Search(ctx, dense, opts)
			if err != nil {
				log.Error().Err(err).Int("store", idx).Msg("dense search failed")
			} else if len(memories) > 0 {
				mu.Lock()
				out = append(out, toChannelResult(fmt.Sprintf("store%d:dense", idx), weights.Dense, memories, s))
				mu.Unlock()
			}

			if opts.Query != "" {
				if fts, ok := s.(storage.FTSSearcher); ok {
					memories, err := fts.SearchFTS(ctx, opts.Query, opts)
					if err != nil {
						log.Error().Err(err).Int("store", idx).Msg("fts search failed")
					} else if len(memories) > 0 {
						mu.Lock()
						out = append(out, toChannelResult(fmt.Sprintf("store%d:fts", idx), weights.FullText, memories, s))
						mu.Unlock()
					}
				}
			}

			if len(sparse) > 0 {
				if sp, ok := s.(storage.SparseSearcher); ok {
					memories, err := sp.SearchSparse(ctx, sparse, opts)
					if err != nil {
						log.Error().Err(err).Int("store", idx).Msg("sparse search failed")
					} else if len(memories) > 0 {
						mu.Lock()
						out = append(out, toChannelResult(fmt.Sprintf("store%d:sparse", idx), weights.Sparse, memories, s))
						mu.Unlock()
					}
				}
			}
		}(i, store)
	}
	wg.Wait()
	return out
}

func toChannelResult(source string, weight float64, memories []*storage.Memory, store storage.VectorStore) channelResult {
	ids := make([]string, len(memories))
	byID := make(map[string]*storage.Memory, len(memories))
	for i, m := range memories {
		id := strconv.FormatInt(int64(m.ID), 10)
		ids[i] = id
		byID[id] = m
	}
	return channelResult{source: source, weight: weight, ids: ids, byID: byID, store: store}
}

func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].Memory.UpdatedAt.Equal(hits[j].Memory.UpdatedAt) {
			return hits[i].Memory.UpdatedAt.After(hits[j].Memory.UpdatedAt)
		}
		return hits[i].Memory.ID > hits[j].Memory.ID
	})
}

func (e *Engine) rerank(ctx context.Context, query string, hits []Hit, topN int) []Hit {
	candidates := make([]reranker.Candidate, topN)
	for i := 0; i < topN; i++ {
		candidates[i] = reranker.Candidate{
			ID:      strconv.FormatInt(int64(hits[i].Memory.ID), 10),
			Content: hits[i].Memory.Content,
			Score:   hits[i].Score,
		}
	}

	reordered, err := e.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		corelog.Component("retrieval").Error().Err(err).Msg("rerank failed, keeping fused order")
		return hits
	}

	byID := make(map[string]Hit, len(hits))
	for _, h := range hits[:topN] {
		byID[strconv.FormatInt(int64(h.Memory.ID), 10)] = h
	}

	newHits := make([]Hit, 0, len(hits))
	for _, c := range reordered {
		h, ok := byID[c.ID]
		if !ok {
			continue
		}
		h.Score = c.Score
		newHits = append(newHits, h)
	}
	newHits = append(newHits, hits[topN:]...)
	return newHits
}

// reinforceAsync writes each hit's reinforced retention back to its
// originating backend, best-effort, off the request path. Backends that
// don't implement storage.RetentionUpdater are silently skipped.
//
// Hits carrying a retention block get the full reinforcement rule
// applied to it — retention bumped toward 1.0, access_count
// incremented, the decay curve re-anchored at now — and the updated
// block is persisted with the strength column. Hits without a block
// (pre-intelligence records) fall back to the bare strength bump.
func (e *Engine) reinforceAsync(hits []Hit, storeByID map[string]storage.VectorStore) {
	type target struct {
		store    storage.VectorStore
		id       storage.MemoryID
		newRS    float64
		metadata map[string]interface{}
	}
	now := time.Now()
	targets := make([]target, 0, len(hits))
	for _, h := range hits {
		key := strconv.FormatInt(int64(h.Memory.ID), 10)
		s, ok := storeByID[key]
		if !ok {
			continue
		}
		if _, ok := s.(storage.RetentionUpdater); !ok {
			continue
		}

		t := target{store: s, id: h.Memory.ID}
		if info, ok := intelligence.RetentionFromMetadata(h.Memory.Metadata); ok {
			info.Reinforce(e.retention, now)
			metadata := withoutFusionInfo(h.Memory.Metadata)
			info.ToMetadata(metadata)
			t.newRS = info.CurrentRetention
			t.metadata = metadata
		} else {
			t.newRS = e.retention.Reinforce(h.Memory.RetentionStrength)
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return
	}

	go func(targets []target) {
		log := corelog.Component("retrieval")
		for _, t := range targets {
			ru := t.store.(storage.RetentionUpdater)
			if err := ru.UpdateRetention(context.Background(), t.id, t.newRS, now, t.metadata); err != nil {
				log.Error().Err(err).Int64("memory_id", int64(t.id)).Msg("retention reinforcement failed")
			}
		}
	}(targets)
}

// withoutFusionInfo copies a hit's metadata minus the per-request
// _fusion_info annotation, which must not be persisted.
func withoutFusionInfo(metadata map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		if k == "_fusion_info" {
			continue
		}
		out[k] = v
	}
	return out
}

func withFusionInfo(metadata map[string]interface{}, info map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["_fusion_info"] = info
	return out
}
