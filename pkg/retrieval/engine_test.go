package retrieval_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oceanbase/powermem/pkg/intelligence"
	"github.com/oceanbase/powermem/pkg/retrieval"
	"github.com/oceanbase/powermem/pkg/storage"
	"github.com/oceanbase/powermem/pkg/substore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore serves canned dense and full-text results, implementing
// storage.VectorStore and storage.FTSSearcher.
type fakeStore struct {
	dense []*storage.Memory
	fts   []*storage.Memory
}

func (f *fakeStore) Insert(context.Context, *storage.Memory) error { return nil }

func (f *fakeStore) Search(_ context.Context, _ []float64, _ *storage.SearchOptions) ([]*storage.Memory, error) {
	return f.dense, nil
}

func (f *fakeStore) SearchFTS(_ context.Context, _ string, _ *storage.SearchOptions) ([]*storage.Memory, error) {
	return f.fts, nil
}

func (f *fakeStore) Get(_ context.Context, id storage.MemoryID, _ *storage.GetOptions) (*storage.Memory, error) {
	return nil, assert.AnError
}

func (f *fakeStore) Update(context.Context, storage.MemoryID, string, []float64, *storage.UpdateOptions) (*storage.Memory, error) {
	return nil, assert.AnError
}

func (f *fakeStore) Delete(context.Context, storage.MemoryID, *storage.DeleteOptions) error { return nil }

func (f *fakeStore) GetAll(context.Context, *storage.GetAllOptions) ([]*storage.Memory, error) {
	return nil, nil
}

func (f *fakeStore) DeleteAll(context.Context, *storage.DeleteAllOptions) error { return nil }

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) CreateIndex(context.Context, *storage.VectorIndexConfig) error { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float64, error) { return []float64{0.1, 0.2}, nil }
func (fakeEmbedder) EmbedBatch(context.Context, []string) ([][]float64, error) {
	return nil, nil
}
func (fakeEmbedder) Dimensions() int { return 2 }
func (fakeEmbedder) Close() error    { return nil }

func mem(id int64, content string) *storage.Memory {
	return &storage.Memory{
		ID: storage.MemoryID(id), Content: content,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
}

func TestSearch_FusesDenseAndFTSChannels(t *testing.T) {
	store := &fakeStore{
		dense: []*storage.Memory{mem(1, "a"), mem(2, "b"), mem(3, "c")},
		fts:   []*storage.Memory{mem(2, "b")},
	}
	router := substore.NewRouter(store)
	engine := retrieval.New(router, fakeEmbedder{})

	hits, err := engine.Search(context.Background(), "query", retrieval.Options{Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	// id 2 ranks #2 in dense and #1 in FTS, beating id 1 (#1 dense only)
	// and id 3 (#3 dense only) under equal-weight RRF.
	assert.Equal(t, storage.MemoryID(2), hits[0].Memory.ID)
	assert.NotNil(t, hits[0].Memory.Metadata["_fusion_info"])
}

func TestSearch_ThresholdDropsLowScoringHits(t *testing.T) {
	store := &fakeStore{dense: []*storage.Memory{mem(1, "a"), mem(2, "b")}}
	router := substore.NewRouter(store)
	engine := retrieval.New(router, fakeEmbedder{})

	hits, err := engine.Search(context.Background(), "query", retrieval.Options{Limit: 10, Threshold: 0.99})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Equal(t, storage.MemoryID(1), hits[0].Memory.ID)
}

func TestSearch_RespectsLimit(t *testing.T) {
	store := &fakeStore{dense: []*storage.Memory{mem(1, "a"), mem(2, "b"), mem(3, "c")}}
	router := substore.NewRouter(store)
	engine := retrieval.New(router, fakeEmbedder{})

	hits, err := engine.Search(context.Background(), "query", retrieval.Options{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearch_EmptyStoreReturnsNoHits(t *testing.T) {
	store := &fakeStore{}
	router := substore.NewRouter(store)
	engine := retrieval.New(router, fakeEmbedder{})

	hits, err := engine.Search(context.Background(), "query", retrieval.Options{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// reinforcingStore is fakeStore plus the RetentionUpdater capability,
// recording what the engine writes back.
type reinforcingStore struct {
	fakeStore

	mu       sync.Mutex
	strength map[storage.MemoryID]float64
	metadata map[storage.MemoryID]map[string]interface{}
}

func (r *reinforcingStore) UpdateRetention(_ context.Context, id storage.MemoryID, strength float64, _ time.Time, metadata map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.strength == nil {
		r.strength = map[storage.MemoryID]float64{}
		r.metadata = map[storage.MemoryID]map[string]interface{}{}
	}
	r.strength[id] = strength
	r.metadata[id] = metadata
	return nil
}

func (r *reinforcingStore) captured(id storage.MemoryID) (float64, map[string]interface{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	strength, ok := r.strength[id]
	return strength, r.metadata[id], ok
}

func TestSearch_ReinforcesRetentionBlockOnHit(t *testing.T) {
	manager := intelligence.NewEbbinghausManager(0, 0.3)
	now := time.Now()

	// One hit carrying a full retention block, seeded at 0.5 (importance 0).
	info := intelligence.NewRetentionInfo(manager, 0.0, now.Add(-time.Hour))
	metadata := map[string]interface{}{"source": "conversation"}
	info.ToMetadata(metadata)

	hit := mem(1, "likes coffee")
	hit.Metadata = metadata
	hit.RetentionStrength = info.CurrentRetention

	store := &reinforcingStore{fakeStore: fakeStore{dense: []*storage.Memory{hit}}}
	router := substore.NewRouter(store)
	engine := retrieval.New(router, fakeEmbedder{}, retrieval.WithRetention(manager))

	hits, err := engine.Search(context.Background(), "coffee", retrieval.Options{Limit: 5})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	// The write-back runs off the request path.
	var strength float64
	var persisted map[string]interface{}
	var ok bool
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strength, persisted, ok = store.captured(1); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, ok, "retention write-back never arrived")

	restored, hasBlock := intelligence.RetentionFromMetadata(persisted)
	require.True(t, hasBlock)

	// Reinforcement moved retention toward 1.0 and incremented the
	// access counter; the per-request fusion annotation is not persisted.
	assert.Greater(t, restored.CurrentRetention, 0.5)
	assert.Equal(t, restored.CurrentRetention, strength)
	assert.Equal(t, 1, restored.AccessCount)
	assert.NotContains(t, persisted, "_fusion_info")
	assert.Equal(t, "conversation", persisted["source"])
}
