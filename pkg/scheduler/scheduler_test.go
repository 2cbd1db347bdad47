package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem/pkg/filter"
	"github.com/oceanbase/powermem/pkg/intelligence"
	"github.com/oceanbase/powermem/pkg/scheduler"
	"github.com/oceanbase/powermem/pkg/storage"
	"github.com/oceanbase/powermem/pkg/substore"
)

// sweepStore is an in-memory VectorStore that records retention
// write-backs, standing in for a real backend in sweep tests.
type sweepStore struct {
	mu   sync.Mutex
	rows map[storage.MemoryID]*storage.Memory

	retentionWrites map[storage.MemoryID]float64

	// failNextGetAll makes the next GetAll call error, to drive a
	// migration into the FAILED state.
	failNextGetAll bool
}

func newSweepStore() *sweepStore {
	return &sweepStore{
		rows:            map[storage.MemoryID]*storage.Memory{},
		retentionWrites: map[storage.MemoryID]float64{},
	}
}

func (s *sweepStore) Insert(_ context.Context, m *storage.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.rows[m.ID] = &cp
	return nil
}

func (s *sweepStore) Search(_ context.Context, _ []float64, _ *storage.SearchOptions) ([]*storage.Memory, error) {
	return nil, nil
}

func (s *sweepStore) Get(_ context.Context, id storage.MemoryID, _ *storage.GetOptions) (*storage.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id], nil
}

func (s *sweepStore) Update(_ context.Context, id storage.MemoryID, _ string, _ []float64, _ *storage.UpdateOptions) (*storage.Memory, error) {
	return s.rows[id], nil
}

func (s *sweepStore) Delete(_ context.Context, id storage.MemoryID, _ *storage.DeleteOptions) error {
	delete(s.rows, id)
	return nil
}

func (s *sweepStore) GetAll(_ context.Context, opts *storage.GetAllOptions) ([]*storage.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNextGetAll {
		s.failNextGetAll = false
		return nil, assert.AnError
	}
	if opts.Offset > 0 {
		return nil, nil
	}
	var out []*storage.Memory
	for _, v := range s.rows {
		out = append(out, v)
	}
	return out, nil
}

func (s *sweepStore) DeleteAll(_ context.Context, _ *storage.DeleteAllOptions) error { return nil }
func (s *sweepStore) Close() error                                                   { return nil }
func (s *sweepStore) CreateIndex(_ context.Context, _ *storage.VectorIndexConfig) error {
	return nil
}

func (s *sweepStore) UpdateRetention(_ context.Context, id storage.MemoryID, strength float64, _ time.Time, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retentionWrites[id] = strength
	if row, ok := s.rows[id]; ok {
		row.RetentionStrength = strength
		if metadata != nil {
			row.Metadata = metadata
		}
	}
	return nil
}

func TestDecaySweepUpdatesDueMemories(t *testing.T) {
	store := newSweepStore()
	manager := intelligence.NewEbbinghausManager(0, 0.3)
	now := time.Now()

	// A memory last reviewed two hours ago with a 1h review checkpoint:
	// due for decay.
	dueRetention := intelligence.NewRetentionInfo(manager, 1.0, now.Add(-2*time.Hour))
	dueMetadata := map[string]interface{}{}
	dueRetention.ToMetadata(dueMetadata)
	require.NoError(t, store.Insert(context.Background(), &storage.Memory{
		ID: 1, Content: "due", Metadata: dueMetadata,
		RetentionStrength: 1.0, CreatedAt: now.Add(-2 * time.Hour),
	}))

	// A memory created just now: its first checkpoint is an hour away.
	freshRetention := intelligence.NewRetentionInfo(manager, 1.0, now)
	freshMetadata := map[string]interface{}{}
	freshRetention.ToMetadata(freshMetadata)
	require.NoError(t, store.Insert(context.Background(), &storage.Memory{
		ID: 2, Content: "fresh", Metadata: freshMetadata,
		RetentionStrength: 1.0, CreatedAt: now,
	}))

	// A memory with no retention block at all is left alone.
	require.NoError(t, store.Insert(context.Background(), &storage.Memory{
		ID: 3, Content: "plain", Metadata: map[string]interface{}{},
		RetentionStrength: 1.0, CreatedAt: now.Add(-48 * time.Hour),
	}))

	router := substore.NewRouter(store)
	s := scheduler.New(router, manager, nil)
	s.RunDecaySweep(context.Background())

	// Two hours of decay pushes a 1.0 memory to the retention floor.
	assert.Equal(t, intelligence.MinRetention, store.retentionWrites[1])
	assert.NotContains(t, store.retentionWrites, storage.MemoryID(2))
	assert.NotContains(t, store.retentionWrites, storage.MemoryID(3))

	// The refreshed block is persisted with the write-back, and the
	// sweep never touches the monotonic counters.
	refreshed, ok := intelligence.RetentionFromMetadata(store.rows[1].Metadata)
	require.True(t, ok)
	assert.Equal(t, intelligence.MinRetention, refreshed.CurrentRetention)
	assert.Equal(t, 0, refreshed.AccessCount)
	assert.Equal(t, 0, refreshed.ReviewCount)
}

func TestRetryFailedMigrations(t *testing.T) {
	main := newSweepStore()
	sub := newSweepStore()
	router := substore.NewRouter(main)

	expr, err := filter.Parse(filter.Map{"type": "working"})
	require.NoError(t, err)
	d := &substore.Descriptor{Index: 0, Name: "working", RoutingFilter: expr, Store: sub}
	router.AddSubStore(d)

	manager := intelligence.NewEbbinghausManager(0, 0.3)
	s := scheduler.New(router, manager, nil)

	// DORMANT sub-stores are not touched by the retry loop.
	s.RetryFailedMigrations(context.Background())
	assert.Equal(t, substore.Dormant, d.Status())

	// Force a migration failure, then let the retry loop recover it.
	main.failNextGetAll = true
	require.Error(t, router.Migrate(context.Background(), 0, 10, false))
	assert.Equal(t, substore.Failed, d.Status())

	s.RetryFailedMigrations(context.Background())
	assert.Equal(t, substore.Active, d.Status())
}
