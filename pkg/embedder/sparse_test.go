package embedder_test

import (
	"context"
	"testing"

	"github.com/oceanbase/powermem/pkg/embedder/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedSparse_SharedTermsOverlap(t *testing.T) {
	p := sparse.New()
	ctx := context.Background()

	a, err := p.EmbedSparse(ctx, "the user loves golang concurrency patterns")
	require.NoError(t, err)
	b, err := p.EmbedSparse(ctx, "golang concurrency is great")
	require.NoError(t, err)
	c, err := p.EmbedSparse(ctx, "paris is the capital of france")
	require.NoError(t, err)

	require.NotEmpty(t, a)
	require.NotEmpty(t, b)

	simAB := sparse.CosineSimilarity(a, b)
	simAC := sparse.CosineSimilarity(a, c)

	assert.Greater(t, simAB, simAC)
}

func TestEmbedSparseBatch_MatchesIndividual(t *testing.T) {
	p := sparse.New()
	ctx := context.Background()

	texts := []string{"alpha beta gamma", "delta epsilon"}
	batch, err := p.EmbedSparseBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	single, err := p.EmbedSparse(ctx, texts[0])
	require.NoError(t, err)
	assert.Equal(t, single, batch[0])
}

func TestEmbedSparse_EmptyTextYieldsEmptyVector(t *testing.T) {
	p := sparse.New()
	vec, err := p.EmbedSparse(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, vec)
}
