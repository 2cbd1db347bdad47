// Package coalesce batches concurrent embedding requests. Hosted
// embedding APIs charge per call and amortize well over batches; the
// ingest pipeline embeds many facts near-simultaneously, so requests
// arriving within a short window are collected and sent as one
// EmbedBatch call.
package coalesce

import (
	"context"
	"sync"
	"time"

	"github.com/oceanbase/powermem/pkg/embedder"
)

// DefaultWindow is how long the first request in a batch waits for
// company before the batch is flushed.
const DefaultWindow = 10 * time.Millisecond

// DefaultMaxBatch flushes a batch early once it reaches this size.
const DefaultMaxBatch = 64

type pending struct {
	text   string
	result chan result
}

type result struct {
	vec []float64
	err error
}

// Provider decorates an embedder.Provider with request coalescing.
// Embed calls arriving within the window are merged into one
// EmbedBatch call against the wrapped provider.
type Provider struct {
	inner    embedder.Provider
	window   time.Duration
	maxBatch int

	mu    sync.Mutex
	queue []pending
	timer *time.Timer
}

// New wraps inner with a coalescing buffer. window <= 0 selects
// DefaultWindow; maxBatch <= 0 selects DefaultMaxBatch.
func New(inner embedder.Provider, window time.Duration, maxBatch int) *Provider {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Provider{inner: inner, window: window, maxBatch: maxBatch}
}

var _ embedder.Provider = (*Provider)(nil)

// Embed enqueues the text and waits for its slot in the next flushed
// batch. Context cancellation abandons the wait (the batch still
// completes for the other callers).
func (p *Provider) Embed(ctx context.Context, text string) ([]float64, error) {
	entry := pending{text: text, result: make(chan result, 1)}

	p.mu.Lock()
	p.queue = append(p.queue, entry)
	if len(p.queue) >= p.maxBatch {
		p.flushLocked()
	} else if p.timer == nil {
		p.timer = time.AfterFunc(p.window, func() {
			p.mu.Lock()
			p.flushLocked()
			p.mu.Unlock()
		})
	}
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-entry.result:
		return r.vec, r.err
	}
}

// flushLocked sends the current queue as one batch. Caller holds p.mu.
func (p *Provider) flushLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if len(p.queue) == 0 {
		return
	}
	batch := p.queue
	p.queue = nil

	go func(batch []pending) {
		texts := make([]string, len(batch))
		for i, entry := range batch {
			texts[i] = entry.text
		}
		vecs, err := p.inner.EmbedBatch(context.Background(), texts)
		for i, entry := range batch {
			if err != nil || i >= len(vecs) {
				entry.result <- result{err: err}
				continue
			}
			entry.result <- result{vec: vecs[i]}
		}
	}(batch)
}

// EmbedBatch passes through: the caller already batched.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	return p.inner.EmbedBatch(ctx, texts)
}

// Dimensions reports the wrapped provider's dimensionality.
func (p *Provider) Dimensions() int {
	return p.inner.Dimensions()
}

// Close flushes any queued requests and closes the wrapped provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	p.flushLocked()
	p.mu.Unlock()
	return p.inner.Close()
}
