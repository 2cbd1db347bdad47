// Package core provides the main PowerMem client and memory management functionality.
package core

import (
	"context"
	"sync"
)

// AsyncResult carries the outcome of one asynchronous operation.
type AsyncResult[T any] struct {
	// Value is the operation's result (zero value if Error is set).
	Value T

	// Error is the error returned by the operation (nil on success).
	Error error
}

// AsyncClient provides the asynchronous PowerMem surface.
//
// Every method mirrors a synchronous Client method and shares its
// contract; the only difference is delivery. Calls return immediately
// with a buffered channel that receives exactly one result and is then
// closed, so callers can select over many in-flight operations. The
// business logic lives solely in Client: the async methods delegate,
// they do not reimplement.
//
// Cancellation flows through the ctx handed to each call; a canceled
// context surfaces as the operation's error on the result channel.
// Because each method runs in its own goroutine, one AsyncClient may
// be shared by many tasks.
//
// Example:
//
//	asyncClient, _ := core.NewAsyncClient(config)
//	defer asyncClient.Close()
//
//	addCh := asyncClient.AddAsync(ctx, "User likes Python", core.WithUserID("user_001"))
//	searchCh := asyncClient.SearchAsync(ctx, "preferences", core.WithUserIDForSearch("user_001"))
//	added := <-addCh
//	found := <-searchCh
type AsyncClient struct {
	*Client
	wg sync.WaitGroup
}

// NewAsyncClient creates a new asynchronous PowerMem client.
func NewAsyncClient(cfg *Config) (*AsyncClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &AsyncClient{
		Client: client,
	}, nil
}

// NewAsyncClientFrom wraps an existing Client without re-initializing
// providers, so both surfaces can share one configured instance.
func NewAsyncClientFrom(client *Client) *AsyncClient {
	return &AsyncClient{Client: client}
}

// dispatch runs fn in a tracked goroutine and delivers its result on a
// single-use channel.
func dispatch[T any](ac *AsyncClient, fn func() (T, error)) <-chan AsyncResult[T] {
	resultChan := make(chan AsyncResult[T], 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		value, err := fn()
		resultChan <- AsyncResult[T]{Value: value, Error: err}
		close(resultChan)
	}()

	return resultChan
}

// AddAsync adds a memory asynchronously (pass-through mode).
func (ac *AsyncClient) AddAsync(ctx context.Context, content string, opts ...AddOption) <-chan AsyncResult[*Memory] {
	return dispatch(ac, func() (*Memory, error) {
		return ac.Add(ctx, content, opts...)
	})
}

// IntelligentAddAsync runs the full ingest pipeline asynchronously.
func (ac *AsyncClient) IntelligentAddAsync(ctx context.Context, messages interface{}, opts ...AddOption) <-chan AsyncResult[*IntelligentAddResult] {
	return dispatch(ac, func() (*IntelligentAddResult, error) {
		return ac.IntelligentAdd(ctx, messages, opts...)
	})
}

// SearchAsync searches memories asynchronously.
func (ac *AsyncClient) SearchAsync(ctx context.Context, query string, opts ...SearchOption) <-chan AsyncResult[[]*Memory] {
	return dispatch(ac, func() ([]*Memory, error) {
		return ac.Search(ctx, query, opts...)
	})
}

// GetAsync retrieves a memory by ID asynchronously.
func (ac *AsyncClient) GetAsync(ctx context.Context, id MemoryID) <-chan AsyncResult[*Memory] {
	return dispatch(ac, func() (*Memory, error) {
		return ac.Get(ctx, id)
	})
}

// UpdateAsync updates a memory asynchronously.
func (ac *AsyncClient) UpdateAsync(ctx context.Context, id MemoryID, content string) <-chan AsyncResult[*Memory] {
	return dispatch(ac, func() (*Memory, error) {
		return ac.Update(ctx, id, content)
	})
}

// DeleteAsync deletes a memory asynchronously.
func (ac *AsyncClient) DeleteAsync(ctx context.Context, id MemoryID) <-chan error {
	errChan := make(chan error, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		errChan <- ac.Delete(ctx, id)
		close(errChan)
	}()

	return errChan
}

// GetAllAsync retrieves all memories asynchronously.
func (ac *AsyncClient) GetAllAsync(ctx context.Context, opts ...GetAllOption) <-chan AsyncResult[[]*Memory] {
	return dispatch(ac, func() ([]*Memory, error) {
		return ac.GetAll(ctx, opts...)
	})
}

// DeleteAllAsync deletes all memories matching the filters asynchronously.
func (ac *AsyncClient) DeleteAllAsync(ctx context.Context, opts ...DeleteAllOption) <-chan error {
	errChan := make(chan error, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		errChan <- ac.DeleteAll(ctx, opts...)
		close(errChan)
	}()

	return errChan
}

// MigrateAsync runs a sub-store migration asynchronously. Concurrent
// calls against the same sub-store fail fast with ErrMigrationInProgress,
// exactly as the synchronous Migrate does.
func (ac *AsyncClient) MigrateAsync(ctx context.Context, index int, batchSize int, deleteSource bool) <-chan error {
	errChan := make(chan error, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		errChan <- ac.Migrate(ctx, index, batchSize, deleteSource)
		close(errChan)
	}()

	return errChan
}

// Wait blocks until all in-flight asynchronous operations complete.
func (ac *AsyncClient) Wait() {
	ac.wg.Wait()
}

// Close waits for in-flight operations, then closes the underlying client.
func (ac *AsyncClient) Close() error {
	ac.Wait()
	return ac.Client.Close()
}
