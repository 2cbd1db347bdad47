// Package rediscache wraps an embedding provider with a Redis-backed
// cache. The same fact text is embedded repeatedly during ingest
// (similarity probe, decision apply, migration re-embeds), and hosted
// embedding APIs bill per call; caching by content hash removes the
// repeat calls without the providers knowing.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oceanbase/powermem/pkg/contenthash"
	"github.com/oceanbase/powermem/pkg/corelog"
	"github.com/oceanbase/powermem/pkg/embedder"
)

// DefaultTTL bounds how long a cached embedding lives. Embeddings are
// deterministic per (model, text), so the TTL only bounds cache size,
// not staleness.
const DefaultTTL = 24 * time.Hour

// Provider decorates an embedder.Provider with a Redis cache.
type Provider struct {
	inner  embedder.Provider
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Config configures the cache layer.
type Config struct {
	// Addr is the Redis address, e.g. "localhost:6379".
	Addr string

	// Password is optional.
	Password string

	// DB selects the Redis logical database.
	DB int

	// KeyPrefix namespaces cache keys; include the embedding model name
	// so a model change cannot serve stale vectors. Default "powermem:emb".
	KeyPrefix string

	// TTL overrides DefaultTTL when positive.
	TTL time.Duration
}

// New wraps inner with a Redis cache.
func New(inner embedder.Provider, cfg *Config) *Provider {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "powermem:emb"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Provider{
		inner: inner,
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: prefix,
		ttl:    ttl,
	}
}

var _ embedder.Provider = (*Provider)(nil)

func (p *Provider) key(text string) string {
	return p.prefix + ":" + contenthash.Hash(text)
}

// Embed returns the cached vector for text when present, otherwise
// delegates to the wrapped provider and caches the result. Cache errors
// degrade to a direct provider call.
func (p *Provider) Embed(ctx context.Context, text string) ([]float64, error) {
	key := p.key(text)
	if cached, err := p.client.Get(ctx, key).Bytes(); err == nil {
		var vec []float64
		if err := json.Unmarshal(cached, &vec); err == nil {
			return vec, nil
		}
	}

	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.store(ctx, key, vec)
	return vec, nil
}

// EmbedBatch serves cached entries and only sends the misses to the
// wrapped provider, preserving input order.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if cached, err := p.client.Get(ctx, p.key(text)).Bytes(); err == nil {
			var vec []float64
			if err := json.Unmarshal(cached, &vec); err == nil {
				out[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		vecs, err := p.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			out[missIdx[j]] = vec
			p.store(ctx, p.key(missTexts[j]), vec)
		}
	}

	return out, nil
}

// Dimensions reports the wrapped provider's dimensionality.
func (p *Provider) Dimensions() int {
	return p.inner.Dimensions()
}

// Close closes the Redis client and the wrapped provider.
func (p *Provider) Close() error {
	if err := p.client.Close(); err != nil {
		corelog.Component("embedder").Warn().Err(err).Msg("closing embedding cache")
	}
	return p.inner.Close()
}

func (p *Provider) store(ctx context.Context, key string, vec []float64) {
	payload, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := p.client.Set(ctx, key, payload, p.ttl).Err(); err != nil {
		corelog.Component("embedder").Debug().Err(err).Msg("embedding cache write failed")
	}
}
