package rrf_test

import (
	"testing"

	"github.com/oceanbase/powermem/pkg/rrf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuse_SingleListPreservesOrder(t *testing.T) {
	fused := rrf.Fuse([]rrf.Ranked{
		{Source: "dense", IDs: []string{"a", "b", "c"}},
	}, 60)

	require.Len(t, fused, 3)
	assert.Equal(t, "a", fused[0].ID)
	assert.Equal(t, "b", fused[1].ID)
	assert.Equal(t, "c", fused[2].ID)
}

func TestFuse_AgreementBoostsRank(t *testing.T) {
	fused := rrf.Fuse([]rrf.Ranked{
		{Source: "dense", IDs: []string{"a", "b", "c"}},
		{Source: "fts", IDs: []string{"b", "a", "c"}},
	}, 60)

	require.Len(t, fused, 3)
	// "a" and "b" both rank highly in both lists; "c" trails in both.
	assert.Equal(t, "c", fused[2].ID)
	for _, id := range []string{"a", "b"} {
		assert.Contains(t, []string{fused[0].ID, fused[1].ID}, id)
	}
}

func TestFuse_WeightScalesContribution(t *testing.T) {
	fused := rrf.Fuse([]rrf.Ranked{
		{Source: "dense", Weight: 2.0, IDs: []string{"a"}},
		{Source: "fts", Weight: 0.5, IDs: []string{"b"}},
	}, 60)

	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ID)
	assert.Greater(t, fused[0].Score, fused[1].Score)
}

func TestFuse_DefaultKWhenNonPositive(t *testing.T) {
	withZero := rrf.Fuse([]rrf.Ranked{{Source: "dense", IDs: []string{"a", "b"}}}, 0)
	withDefault := rrf.Fuse([]rrf.Ranked{{Source: "dense", IDs: []string{"a", "b"}}}, rrf.DefaultK)
	assert.Equal(t, withDefault[0].Score, withZero[0].Score)
}

func TestFuse_RecordsContributions(t *testing.T) {
	fused := rrf.Fuse([]rrf.Ranked{
		{Source: "dense", IDs: []string{"a"}},
		{Source: "fts", IDs: []string{"a"}},
	}, 60)

	require.Len(t, fused, 1)
	assert.Len(t, fused[0].Contributions, 2)
}

func TestFuse_DeterministicAcrossRuns(t *testing.T) {
	lists := []rrf.Ranked{
		{Source: "dense", Weight: 1.0, IDs: []string{"a", "b", "c", "d"}},
		{Source: "fts", Weight: 0.5, IDs: []string{"c", "a", "e"}},
		{Source: "sparse", Weight: 0.25, IDs: []string{"e", "d"}},
	}

	first := rrf.Fuse(lists, 60)
	for i := 0; i < 10; i++ {
		again := rrf.Fuse(lists, 60)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].ID, again[j].ID)
			assert.Equal(t, first[j].Score, again[j].Score)
		}
	}
}
