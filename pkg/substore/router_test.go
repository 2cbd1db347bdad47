package substore_test

import (
	"context"
	"testing"
	"time"

	"github.com/oceanbase/powermem/pkg/filter"
	"github.com/oceanbase/powermem/pkg/storage"
	"github.com/oceanbase/powermem/pkg/substore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a minimal in-memory storage.VectorStore for router tests.
type memStore struct {
	rows map[storage.MemoryID]*storage.Memory
	next int64
}

func newMemStore() *memStore { return &memStore{rows: map[storage.MemoryID]*storage.Memory{}} }

func (m *memStore) Insert(_ context.Context, mem *storage.Memory) error {
	if mem.ID == 0 {
		m.next++
		mem.ID = storage.MemoryID(m.next)
	}
	cp := *mem
	m.rows[mem.ID] = &cp
	return nil
}

func (m *memStore) Search(_ context.Context, _ []float64, _ *storage.SearchOptions) ([]*storage.Memory, error) {
	return nil, nil
}

func (m *memStore) Get(_ context.Context, id storage.MemoryID, _ *storage.GetOptions) (*storage.Memory, error) {
	if v, ok := m.rows[id]; ok {
		return v, nil
	}
	return nil, assert.AnError
}

func (m *memStore) Update(_ context.Context, id storage.MemoryID, content string, embedding []float64, _ *storage.UpdateOptions) (*storage.Memory, error) {
	v := m.rows[id]
	v.Content = content
	v.Embedding = embedding
	return v, nil
}

func (m *memStore) Delete(_ context.Context, id storage.MemoryID, _ *storage.DeleteOptions) error {
	delete(m.rows, id)
	return nil
}

func (m *memStore) GetAll(_ context.Context, opts *storage.GetAllOptions) ([]*storage.Memory, error) {
	var out []*storage.Memory
	for _, v := range m.rows {
		out = append(out, v)
	}
	if opts.Offset >= len(out) {
		return nil, nil
	}
	end := opts.Offset + opts.Limit
	if opts.Limit <= 0 || end > len(out) {
		end = len(out)
	}
	return out[opts.Offset:end], nil
}

func (m *memStore) DeleteAll(_ context.Context, _ *storage.DeleteAllOptions) error {
	m.rows = map[storage.MemoryID]*storage.Memory{}
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) CreateIndex(_ context.Context, _ *storage.VectorIndexConfig) error { return nil }

func TestRouteWrite_DormantSubStoreIgnored(t *testing.T) {
	main := newMemStore()
	sub := newMemStore()
	r := substore.NewRouter(main)

	expr, err := filter.Parse(filter.Map{"category": "work"})
	require.NoError(t, err)

	r.AddSubStore(&substore.Descriptor{Index: 0, Name: "work", RoutingFilter: expr, Store: sub})

	target, desc, err := r.RouteWrite(map[string]interface{}{"category": "work"})
	require.NoError(t, err)
	assert.Nil(t, desc)
	assert.Same(t, storage.VectorStore(main), target)
}

func TestRouteWrite_ActiveSubStoreMatches(t *testing.T) {
	main := newMemStore()
	sub := newMemStore()
	r := substore.NewRouter(main)

	expr, err := filter.Parse(filter.Map{"category": "work"})
	require.NoError(t, err)

	d := &substore.Descriptor{Index: 0, Name: "work", RoutingFilter: expr, Store: sub}
	r.AddSubStore(d)
	require.NoError(t, r.Activate(0))

	target, desc, err := r.RouteWrite(map[string]interface{}{"category": "work"})
	require.NoError(t, err)
	require.NotNil(t, desc)
	assert.Same(t, storage.VectorStore(sub), target)

	target, desc, err = r.RouteWrite(map[string]interface{}{"category": "personal"})
	require.NoError(t, err)
	assert.Nil(t, desc)
	assert.Same(t, storage.VectorStore(main), target)
}

func TestRouteRead_SpecializationNarrowsToSubStore(t *testing.T) {
	main := newMemStore()
	sub := newMemStore()
	r := substore.NewRouter(main)

	broad, err := filter.Parse(filter.Map{"category": "work"})
	require.NoError(t, err)
	r.AddSubStore(&substore.Descriptor{Index: 0, Name: "work", RoutingFilter: broad, Store: sub})
	require.NoError(t, r.Activate(0))

	narrow, err := filter.Parse(filter.Map{"category": "work"})
	require.NoError(t, err)
	stores := r.RouteRead(narrow)
	require.Len(t, stores, 1)
	assert.Same(t, storage.VectorStore(sub), stores[0])

	other, err := filter.Parse(filter.Map{"category": "personal"})
	require.NoError(t, err)
	stores = r.RouteRead(other)
	require.Len(t, stores, 2)
}

func TestMigrate_MovesMatchingRecords(t *testing.T) {
	main := newMemStore()
	sub := newMemStore()

	require.NoError(t, main.Insert(context.Background(), &storage.Memory{
		Content: "work note", Metadata: map[string]interface{}{"category": "work"},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	require.NoError(t, main.Insert(context.Background(), &storage.Memory{
		Content: "personal note", Metadata: map[string]interface{}{"category": "personal"},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	r := substore.NewRouter(main)
	expr, err := filter.Parse(filter.Map{"category": "work"})
	require.NoError(t, err)
	d := &substore.Descriptor{Index: 0, Name: "work", RoutingFilter: expr, Store: sub}
	r.AddSubStore(d)

	require.NoError(t, r.Migrate(context.Background(), 0, 10, true))
	assert.Equal(t, substore.Active, d.Status())
	assert.Len(t, sub.rows, 1)
	assert.Len(t, main.rows, 1)
}

func TestMigrate_RerunIsNoOp(t *testing.T) {
	main := newMemStore()
	sub := newMemStore()

	require.NoError(t, main.Insert(context.Background(), &storage.Memory{
		Content: "work note", Metadata: map[string]interface{}{"category": "work"},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	r := substore.NewRouter(main)
	expr, err := filter.Parse(filter.Map{"category": "work"})
	require.NoError(t, err)
	d := &substore.Descriptor{Index: 0, Name: "work", RoutingFilter: expr, Store: sub}
	r.AddSubStore(d)

	require.NoError(t, r.Migrate(context.Background(), 0, 10, true))
	subAfterFirst := len(sub.rows)
	mainAfterFirst := len(main.rows)

	// A second run with delete_source finds nothing left to move and
	// leaves both stores exactly as the first run did.
	require.NoError(t, r.Migrate(context.Background(), 0, 10, true))
	assert.Equal(t, subAfterFirst, len(sub.rows))
	assert.Equal(t, mainAfterFirst, len(main.rows))
	assert.Equal(t, substore.Active, d.Status())
}

func TestMigrate_EmptyMainStillActivates(t *testing.T) {
	// Activation requires a migrate invocation even with no rows.
	r := substore.NewRouter(newMemStore())
	expr, err := filter.Parse(filter.Map{"category": "work"})
	require.NoError(t, err)
	d := &substore.Descriptor{Index: 0, Name: "work", RoutingFilter: expr, Store: newMemStore()}
	r.AddSubStore(d)
	assert.Equal(t, substore.Dormant, d.Status())

	require.NoError(t, r.Migrate(context.Background(), 0, 10, false))
	assert.Equal(t, substore.Active, d.Status())
}

func TestMigrate_WritesRouteToSubStoreAfterMigration(t *testing.T) {
	// RouteWrite accepts MIGRATING as well as ACTIVE sub-stores; this
	// test observes only the ACTIVE state a migrate run leaves behind.
	main := newMemStore()
	sub := newMemStore()
	r := substore.NewRouter(main)
	expr, err := filter.Parse(filter.Map{"category": "work"})
	require.NoError(t, err)
	d := &substore.Descriptor{Index: 0, Name: "work", RoutingFilter: expr, Store: sub}
	r.AddSubStore(d)

	// Drive the descriptor into MIGRATING via a real migrate on an
	// empty main store, then check write routing mid-state by
	// re-checking after activation (the terminal state).
	require.NoError(t, r.Migrate(context.Background(), 0, 10, false))
	target, desc, err := r.RouteWrite(map[string]interface{}{"category": "work"})
	require.NoError(t, err)
	require.NotNil(t, desc)
	assert.Same(t, storage.VectorStore(sub), target)
}
