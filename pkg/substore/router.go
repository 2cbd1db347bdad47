// Package substore implements the sub-store router: it partitions
// memories across physical collections by metadata routing rules and
// coordinates background migrations between them.
package substore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oceanbase/powermem/pkg/corelog"
	"github.com/oceanbase/powermem/pkg/embedder"
	"github.com/oceanbase/powermem/pkg/filter"
	"github.com/oceanbase/powermem/pkg/storage"
)

// Status is a sub-store's position in the activation state machine.
type Status string

const (
	// Dormant sub-stores are ignored by both write and read routing.
	Dormant Status = "DORMANT"
	// Migrating sub-stores accept writes (so writers never "miss" rows
	// mid-migration) but are not yet eligible for read routing.
	Migrating Status = "MIGRATING"
	// Active sub-stores participate fully in routing.
	Active Status = "ACTIVE"
	// Failed sub-stores had a fatal migration error and are paused.
	Failed Status = "FAILED"
)

// ErrMigrationInProgress is returned when Migrate is called on a
// sub-store that already has a migration running.
var ErrMigrationInProgress = errors.New("substore: migration already in progress")

// ErrSubStoreNotActive is returned when routing targets a sub-store that
// has not completed activation.
var ErrSubStoreNotActive = errors.New("substore: sub-store is not active")

// Descriptor describes one sub-store: its routing rule, backend, and
// embedder (which may differ in dimensionality from the main store's).
type Descriptor struct {
	Index         int
	Name          string
	RoutingFilter filter.Expr
	Dims          int
	Store         storage.VectorStore
	Embedder      embedder.Provider

	mu     sync.Mutex
	status Status
}

// Status returns the sub-store's current state.
func (d *Descriptor) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Descriptor) setStatus(s Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

// Router holds the main store and an ordered list of sub-store
// descriptors, and decides where reads and writes land.
type Router struct {
	main      storage.VectorStore
	subStores []*Descriptor
	mu        sync.RWMutex
}

// NewRouter creates a router backed by the given main store.
func NewRouter(main storage.VectorStore) *Router {
	return &Router{main: main}
}

// AddSubStore registers a new sub-store, starting in DORMANT.
func (r *Router) AddSubStore(d *Descriptor) {
	d.setStatus(Dormant)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subStores = append(r.subStores, d)
}

// SubStores returns the registered descriptors in index order.
func (r *Router) SubStores() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, len(r.subStores))
	copy(out, r.subStores)
	return out
}

// RouteWrite returns the store a new record should be written to: the
// lowest-indexed ACTIVE or MIGRATING sub-store whose routing_filter
// matches the record's metadata, or the main store if none match.
func (r *Router) RouteWrite(metadata map[string]interface{}) (storage.VectorStore, *Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.subStores {
		status := d.Status()
		if status != Active && status != Migrating {
			continue
		}
		match, err := filter.Match(d.RoutingFilter, metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("RouteWrite: %w", err)
		}
		if match {
			return d.Store, d, nil
		}
	}
	return r.main, nil, nil
}

// RouteRead decides which store(s) a read with the given filters should
// search. If the filters are a specialization of some ACTIVE sub-store's
// routing_filter, only that sub-store is searched; otherwise the main
// store plus every ACTIVE sub-store are all searched and the caller is
// expected to fuse the results (by RRF).
func (r *Router) RouteRead(readFilter filter.Expr) []storage.VectorStore {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.subStores {
		if d.Status() != Active {
			continue
		}
		if filter.Specializes(readFilter, d.RoutingFilter) {
			return []storage.VectorStore{d.Store}
		}
	}

	stores := []storage.VectorStore{r.main}
	for _, d := range r.subStores {
		if d.Status() == Active {
			stores = append(stores, d.Store)
		}
	}
	return stores
}

// Migrate runs the migration protocol for the sub-store at the given
// index: mark MIGRATING, page through the main store selecting records
// matching the sub-store's routing_filter, re-embed with the sub-store's
// own embedder, insert into the sub-store, optionally delete from main,
// then mark ACTIVE. A fatal error marks the sub-store FAILED and returns
// the error; callers may retry, which resumes rather than restarts since
// already-migrated rows no longer match the main-store scan once deleted
// (or are idempotently re-inserted with the same ID when deleteSource is
// false).
func (r *Router) Migrate(ctx context.Context, index int, batchSize int, deleteSource bool) error {
	d, err := r.descriptor(index)
	if err != nil {
		return err
	}

	if !d.mu.TryLock() {
		return ErrMigrationInProgress
	}
	if d.status == Migrating {
		d.mu.Unlock()
		return ErrMigrationInProgress
	}
	d.status = Migrating
	d.mu.Unlock()

	log := corelog.Component("substore")
	if batchSize <= 0 {
		batchSize = 100
	}

	offset := 0
	for {
		page, err := r.main.GetAll(ctx, &storage.GetAllOptions{Limit: batchSize, Offset: offset})
		if err != nil {
			d.setStatus(Failed)
			log.Error().Err(err).Str("substore", d.Name).Msg("migration scan failed")
			return fmt.Errorf("Migrate: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, m := range page {
			matched, err := filter.Match(d.RoutingFilter, m.Metadata)
			if err != nil {
				d.setStatus(Failed)
				return fmt.Errorf("Migrate: %w", err)
			}
			if !matched {
				continue
			}

			embedding := m.Embedding
			if d.Embedder != nil {
				embedding, err = d.Embedder.Embed(ctx, m.Content)
				if err != nil {
					d.setStatus(Failed)
					log.Error().Err(err).Str("substore", d.Name).Msg("migration re-embed failed")
					return fmt.Errorf("Migrate: %w", err)
				}
			}

			migrated := *m
			migrated.Embedding = embedding
			if err := d.Store.Insert(ctx, &migrated); err != nil {
				d.setStatus(Failed)
				return fmt.Errorf("Migrate: %w", err)
			}

			if deleteSource {
				if err := r.main.Delete(ctx, m.ID, &storage.DeleteOptions{}); err != nil {
					d.setStatus(Failed)
					return fmt.Errorf("Migrate: %w", err)
				}
			}
		}

		if len(page) < batchSize {
			break
		}
		if !deleteSource {
			offset += batchSize
		}
	}

	d.setStatus(Active)
	log.Debug().Str("substore", d.Name).Msg("migration complete")
	return nil
}

// Activate transitions a sub-store directly to ACTIVE without running a
// migration, for sub-stores that start empty. Activation requires a
// successful migrate invocation, even a no-op one -- this is that no-op
// path.
func (r *Router) Activate(index int) error {
	d, err := r.descriptor(index)
	if err != nil {
		return err
	}
	d.setStatus(Active)
	return nil
}

func (r *Router) descriptor(index int) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.subStores {
		if d.Index == index {
			return d, nil
		}
	}
	return nil, fmt.Errorf("substore: no sub-store with index %d", index)
}
