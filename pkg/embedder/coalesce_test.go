package embedder_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem/pkg/embedder/coalesce"
)

// countingEmbedder records how many batch calls it serves.
type countingEmbedder struct {
	mu         sync.Mutex
	batchCalls int
	batchSizes []int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	c.mu.Lock()
	c.batchCalls++
	c.batchSizes = append(c.batchSizes, len(texts))
	c.mu.Unlock()

	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = []float64{float64(len(text)), 1}
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int { return 2 }
func (c *countingEmbedder) Close() error    { return nil }

func TestCoalesceMergesConcurrentEmbeds(t *testing.T) {
	inner := &countingEmbedder{}
	p := coalesce.New(inner, 50*time.Millisecond, 64)

	const n = 8
	var wg sync.WaitGroup
	results := make([][]float64, n)
	errs := make([]error, n)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "ggggggg", "hhhhhhhh"}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Embed(context.Background(), texts[i])
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		// Each caller gets the vector for its own text, not a
		// neighbor's slot.
		assert.Equal(t, float64(len(texts[i])), results[i][0])
	}

	inner.mu.Lock()
	defer inner.mu.Unlock()
	assert.Equal(t, 1, inner.batchCalls, "concurrent embeds within the window should share one batch")
	assert.Equal(t, []int{n}, inner.batchSizes)
}

func TestCoalesceFlushesAtMaxBatch(t *testing.T) {
	inner := &countingEmbedder{}
	p := coalesce.New(inner, time.Hour, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.Embed(context.Background(), "text")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	inner.mu.Lock()
	defer inner.mu.Unlock()
	// The hour-long window never fired; the size cap flushed instead.
	assert.Equal(t, 1, inner.batchCalls)
}

func TestCoalesceSequentialCallsStillComplete(t *testing.T) {
	inner := &countingEmbedder{}
	p := coalesce.New(inner, 5*time.Millisecond, 64)

	for i := 0; i < 3; i++ {
		vec, err := p.Embed(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, []float64{5, 1}, vec)
	}
}
