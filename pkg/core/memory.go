package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"

	"github.com/oceanbase/powermem/pkg/contenthash"
	"github.com/oceanbase/powermem/pkg/corelog"
	"github.com/oceanbase/powermem/pkg/embedder"
	"github.com/oceanbase/powermem/pkg/embedder/coalesce"
	openaiEmbedder "github.com/oceanbase/powermem/pkg/embedder/openai"
	qwenEmbedder "github.com/oceanbase/powermem/pkg/embedder/qwen"
	"github.com/oceanbase/powermem/pkg/embedder/rediscache"
	sparseEmbedder "github.com/oceanbase/powermem/pkg/embedder/sparse"
	"github.com/oceanbase/powermem/pkg/events"
	"github.com/oceanbase/powermem/pkg/filter"
	"github.com/oceanbase/powermem/pkg/intelligence"
	"github.com/oceanbase/powermem/pkg/llm"
	anthropicLLM "github.com/oceanbase/powermem/pkg/llm/anthropic"
	deepseekLLM "github.com/oceanbase/powermem/pkg/llm/deepseek"
	ollamaLLM "github.com/oceanbase/powermem/pkg/llm/ollama"
	openaiLLM "github.com/oceanbase/powermem/pkg/llm/openai"
	qwenLLM "github.com/oceanbase/powermem/pkg/llm/qwen"
	"github.com/oceanbase/powermem/pkg/reranker/llmrerank"
	"github.com/oceanbase/powermem/pkg/retrieval"
	"github.com/oceanbase/powermem/pkg/scheduler"
	"github.com/oceanbase/powermem/pkg/storage"
	"github.com/oceanbase/powermem/pkg/storage/oceanbase"
	postgresStore "github.com/oceanbase/powermem/pkg/storage/postgres"
	qdrantStore "github.com/oceanbase/powermem/pkg/storage/qdrant"
	sqliteStore "github.com/oceanbase/powermem/pkg/storage/sqlite"
	"github.com/oceanbase/powermem/pkg/substore"
)

// Client is the main PowerMem client for memory management.
//
// It provides a complete interface for storing, retrieving, and managing memories
// with support for:
//   - Hybrid similarity search (dense + full-text + sparse, RRF-fused)
//   - Intelligent fact extraction and deduplication
//   - Ebbinghaus forgetting curve retention
//   - Sub-store routing and migration
//   - Multi-agent support and metadata filtering
//
// The client is thread-safe and can be used concurrently from multiple goroutines.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	memory, _ := client.Add(ctx, "User likes Python",
//	    core.WithUserID("user_001"),
//	)
type Client struct {
	// config contains the client configuration.
	config *Config

	// storage is the main vector store for memory persistence.
	storage storage.VectorStore

	// llm is the LLM provider for intelligent features.
	llm llm.Provider

	// embedder is the embedding provider for vector generation,
	// possibly wrapped in a Redis cache.
	embedder embedder.Provider

	// dedupManager manages memory deduplication (nil if not enabled).
	dedupManager *intelligence.DedupManager

	// ebbinghausManager manages retention using Ebbinghaus curve (nil if not enabled).
	ebbinghausManager *intelligence.EbbinghausManager

	// intelligentManager manages complete intelligent memory processing (nil if not enabled).
	intelligentManager *intelligence.IntelligentMemoryManager

	// router decides which store (main or a sub-store) a write or read
	// targets. With no sub-stores registered, every route resolves to storage.
	router *substore.Router

	// retrieval is the hybrid search engine: it asks router for candidate
	// stores, fuses their per-channel results by reciprocal rank fusion, and
	// applies threshold/rerank/retention-reinforcement on top.
	retrieval *retrieval.Engine

	// events publishes memory lifecycle events (nil when not configured).
	events events.Emitter

	// scheduler runs background decay sweeps and migration retries
	// (nil when not configured).
	scheduler *scheduler.Scheduler

	// snowflakeNode generates unique IDs for memories.
	snowflakeNode *snowflake.Node

	// log is the client's structured logger.
	log zerolog.Logger

	// mu protects concurrent access to the client.
	mu sync.RWMutex
}

// NewClient creates a new PowerMem client.
//
// The client is initialized with:
//   - Vector store (SQLite, OceanBase, PostgreSQL, or Qdrant)
//   - LLM provider (OpenAI, Qwen, DeepSeek, Ollama, Anthropic)
//   - Embedding provider (OpenAI, Qwen), optionally Redis-cached
//   - Sub-stores, reranker, event publication, and background
//     scheduling when configured
//
// Parameters:
//   - cfg: Configuration containing storage, LLM, and embedding settings
//
// Returns a new Client instance, or an error if initialization fails.
func NewClient(cfg *Config) (*Client, error) {
	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	corelog.Init(cfg.LogPath, cfg.LogLevel)
	log := corelog.Component("core")

	// Initialize storage
	store, err := initStorage(cfg.VectorStore)
	if err != nil {
		log.Error().Err(err).Str("provider", cfg.VectorStore.Provider).Msg("storage init failed")
		return nil, err
	}

	// Initialize LLM
	llmProvider, err := initLLM(cfg.LLM)
	if err != nil {
		return nil, err
	}

	// Initialize Embedder
	embedderProvider, err := initEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	return NewClientWithProviders(cfg, store, llmProvider, embedderProvider)
}

// NewClientWithProviders assembles a client around caller-supplied
// store and provider instances, skipping the registry lookups. This is
// how custom provider implementations (and tests) plug in anything
// honoring the interfaces.
func NewClientWithProviders(cfg *Config, store storage.VectorStore, llmProvider llm.Provider, embedderProvider embedder.Provider) (*Client, error) {
	corelog.Init(cfg.LogPath, cfg.LogLevel)
	log := corelog.Component("core")

	if cfg.EmbeddingCache != nil {
		embedderProvider = rediscache.New(embedderProvider, &rediscache.Config{
			Addr:      cfg.EmbeddingCache.Addr,
			Password:  cfg.EmbeddingCache.Password,
			DB:        cfg.EmbeddingCache.DB,
			KeyPrefix: "powermem:emb:" + cfg.Embedder.Model,
		})
	}
	// Concurrent single-text embeds within a 10ms window share one
	// batch API call.
	embedderProvider = coalesce.New(embedderProvider, 0, 0)

	// Initialize Snowflake ID generator
	workerID := cfg.WorkerID
	if workerID == 0 {
		workerID = 1
	}
	node, err := snowflake.NewNode(workerID)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}

	router := substore.NewRouter(store)

	client := &Client{
		config:        cfg,
		storage:       store,
		llm:           llmProvider,
		embedder:      embedderProvider,
		router:        router,
		snowflakeNode: node,
		log:           log,
	}

	// Register configured sub-stores. Each starts DORMANT until a
	// Migrate (or Activate) call brings it into routing.
	for i, subCfg := range cfg.SubStores {
		descriptor, err := client.buildSubStore(i, subCfg)
		if err != nil {
			log.Error().Err(err).Str("substore", subCfg.Name).Msg("sub-store init failed")
			return nil, err
		}
		router.AddSubStore(descriptor)
	}

	// Initialize intelligent features (if enabled)
	if cfg.Intelligence != nil && cfg.Intelligence.Enabled {
		// Initialize deduplication manager
		client.dedupManager = intelligence.NewDedupManager(
			store,
			cfg.Intelligence.DuplicateThreshold,
		)

		// Initialize Ebbinghaus manager
		client.ebbinghausManager = intelligence.NewEbbinghausManagerWithConfig(
			cfg.Intelligence.DecayRate,
			cfg.Intelligence.ReinforcementFactor,
			cfg.Intelligence.ForgetThreshold,
			cfg.Intelligence.ShortTermThreshold,
			cfg.Intelligence.LongTermThreshold,
			cfg.Intelligence.InitialRetention,
		)

		// Initialize intelligent memory manager (for full intelligent processing)
		client.intelligentManager = intelligence.NewIntelligentMemoryManager(
			llmProvider,
			&intelligence.Config{
				DecayRate:                  cfg.Intelligence.DecayRate,
				ReinforcementFactor:        cfg.Intelligence.ReinforcementFactor,
				ForgetThreshold:            cfg.Intelligence.ForgetThreshold,
				ShortTermThreshold:         cfg.Intelligence.ShortTermThreshold,
				LongTermThreshold:          cfg.Intelligence.LongTermThreshold,
				InitialRetention:           cfg.Intelligence.InitialRetention,
				FallbackToSimpleAdd:        cfg.Intelligence.FallbackToSimpleAdd,
				CustomFactExtractionPrompt: cfg.Intelligence.CustomFactExtractionPrompt,
				CustomUpdateMemoryPrompt:   cfg.Intelligence.CustomUpdateMemoryPrompt,
				MaxFacts:                   cfg.Intelligence.MaxFacts,
			},
		)
	}

	retrievalOpts := []retrieval.Option{}
	if cfg.SparseEmbedder != nil {
		retrievalOpts = append(retrievalOpts, retrieval.WithSparseEmbedder(sparseEmbedder.New()))
	} else if sp, ok := embedderProvider.(embedder.SparseProvider); ok {
		retrievalOpts = append(retrievalOpts, retrieval.WithSparseEmbedder(sp))
	}
	if cfg.Reranker != nil && cfg.Reranker.Enabled {
		retrievalOpts = append(retrievalOpts, retrieval.WithReranker(llmrerank.New(llmProvider)))
	}
	if client.ebbinghausManager != nil {
		retrievalOpts = append(retrievalOpts, retrieval.WithRetention(client.ebbinghausManager))
	}
	if w := (retrieval.Weights{
		Dense:    cfg.VectorStore.VectorWeight,
		FullText: cfg.VectorStore.FTSWeight,
		Sparse:   cfg.VectorStore.SparseWeight,
	}); w != (retrieval.Weights{}) {
		retrievalOpts = append(retrievalOpts, retrieval.WithWeights(w))
	}
	client.retrieval = retrieval.New(router, embedderProvider, retrievalOpts...)

	if cfg.Events != nil && len(cfg.Events.Brokers) > 0 {
		topic := cfg.Events.Topic
		if topic == "" {
			topic = "powermem.memory-events"
		}
		client.events = events.NewKafkaEmitter(cfg.Events.Brokers, topic)
	}

	if cfg.Scheduler != nil && cfg.Scheduler.Enabled && client.ebbinghausManager != nil {
		client.scheduler = scheduler.New(router, client.ebbinghausManager, &scheduler.Config{
			DecaySpec:          cfg.Scheduler.DecaySpec,
			MigrationRetrySpec: cfg.Scheduler.MigrationRetrySpec,
		})
		if err := client.scheduler.Start(); err != nil {
			return nil, NewMemoryError("NewClient", err)
		}
	}

	return client, nil
}

// buildSubStore constructs a DORMANT sub-store descriptor from config.
func (c *Client) buildSubStore(index int, subCfg SubStoreConfig) (*substore.Descriptor, error) {
	routingFilter, err := filter.Parse(filter.Map(subCfg.RoutingFilter))
	if err != nil {
		return nil, NewMemoryError("buildSubStore", err)
	}

	storeCfg := subCfg.VectorStore
	if storeCfg == nil {
		// Reuse the main backend, pointed at the sub-store's own collection.
		derived := c.config.VectorStore
		derivedConfig := make(map[string]interface{}, len(derived.Config))
		for k, v := range derived.Config {
			derivedConfig[k] = v
		}
		derivedConfig["collection_name"] = subCfg.Name
		derived.Config = derivedConfig
		storeCfg = &derived
	}
	subStore, err := initStorage(*storeCfg)
	if err != nil {
		return nil, err
	}

	subEmbedder := c.embedder
	dims := c.config.Embedder.Dimensions
	if subCfg.Embedder != nil {
		subEmbedder, err = initEmbedder(*subCfg.Embedder)
		if err != nil {
			return nil, err
		}
		dims = subCfg.Embedder.Dimensions
	}

	return &substore.Descriptor{
		Index:         index,
		Name:          subCfg.Name,
		RoutingFilter: routingFilter,
		Dims:          dims,
		Store:         subStore,
		Embedder:      subEmbedder,
	}, nil
}

// checkDims enforces the write-time invariant that an embedding's
// length matches the embedder's declared dimensionality.
func (c *Client) checkDims(embedding []float64) error {
	want := c.embedder.Dimensions()
	if want > 0 && len(embedding) != want {
		return &DimensionMismatchError{Want: want, Got: len(embedding)}
	}
	return nil
}

// applyDefaultScope fills in the configured default agent when the
// caller did not name one.
func (c *Client) applyDefaultScope(agentID *string) {
	if *agentID == "" && c.config.DefaultAgentID != "" {
		*agentID = c.config.DefaultAgentID
	}
}

// Add adds a new memory to the store (pass-through mode).
//
// The content is treated as a single, already-normalized fact: no fact
// extraction or LLM reconciliation runs. The method still applies
// exact-hash deduplication and retention initialization:
//
//  1. Reject empty content
//  2. Short-circuit when a memory with the same content hash exists
//     under the same scope (the existing memory is returned unchanged)
//  3. Generate the embedding, route through the sub-store router, insert
//
// For the full intelligent pipeline use IntelligentAdd. The Infer option
// only adds similarity-based duplicate merging to this path.
func (c *Client) Add(ctx context.Context, content string, opts ...AddOption) (*Memory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLocked(ctx, content, opts...)
}

// addLocked is Add without lock acquisition, for callers already
// holding c.mu (the intelligent pipeline's fallback path).
func (c *Client) addLocked(ctx context.Context, content string, opts ...AddOption) (*Memory, error) {
	// Apply options
	addOpts := applyAddOptions(opts)
	c.applyDefaultScope(&addOpts.AgentID)

	if content == "" {
		return nil, validationError("Add", "content must not be empty")
	}

	// Check context cancellation
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// Build metadata, merge all additional parameters
	metadata := copyMetadata(addOpts.Metadata)
	addMetadataFields(metadata, addOpts)

	target, _, err := c.router.RouteWrite(metadata)
	if err != nil {
		c.log.Error().Err(err).Msg("write routing failed")
		return nil, NewMemoryError("Add", err)
	}

	// Exact-duplicate short circuit: same hash under the same scope
	// means the memory already exists.
	hash := contenthash.Hash(content)
	if existing := c.lookupByHash(ctx, target, hash, addOpts); existing != nil {
		c.log.Debug().Int64("memory_id", int64(existing.ID)).Msg("duplicate content, returning existing memory")
		return fromStorageMemory(existing), nil
	}

	// Generate embedding
	embedding, err := c.embedder.Embed(ctx, content)
	if err != nil {
		return nil, NewMemoryError("Add", errors.Join(ErrEmbedderUnavailable, err))
	}
	if err := c.checkDims(embedding); err != nil {
		return nil, NewMemoryError("Add", err)
	}

	// Intelligent deduplication (if enabled)
	if addOpts.Infer && c.dedupManager != nil {
		isDup, existingID, err := c.dedupManager.CheckDuplicate(ctx, embedding, addOpts.UserID, addOpts.AgentID)
		if err != nil {
			return nil, NewMemoryError("Add", err)
		}
		if isDup {
			// Merge memories
			merged, err := c.dedupManager.MergeMemories(ctx, existingID, content, embedding)
			if err != nil {
				return nil, NewMemoryError("Add", err)
			}
			// Convert back to core.Memory type
			return fromIntelligenceMemory(merged), nil
		}
	}

	retentionStrength := 1.0
	if c.intelligentManager != nil {
		retention := c.intelligentManager.InitRetention(intelligence.DefaultImportance, time.Now())
		retention.ToMetadata(metadata)
		retentionStrength = retention.CurrentRetention
	}

	// Insert into storage
	memory := &Memory{
		ID:                MemoryID(c.snowflakeNode.Generate().Int64()),
		UserID:            addOpts.UserID,
		AgentID:           addOpts.AgentID,
		Content:           content,
		Hash:              hash,
		Embedding:         embedding,
		Metadata:          metadata,
		RetentionStrength: retentionStrength,
	}

	if err := target.Insert(ctx, toStorageMemory(memory)); err != nil {
		c.log.Error().Err(err).Int64("memory_id", int64(memory.ID)).Msg("insert failed")
		return nil, NewMemoryError("Add", err)
	}

	c.emitEvent(memory.ID, EventAdd, content, "", addOpts)
	c.log.Debug().Int64("memory_id", int64(memory.ID)).Str("user_id", memory.UserID).Msg("memory added")
	return memory, nil
}

// Search searches for memories using hybrid retrieval.
//
// The query is embedded once, every candidate store the router selects
// is searched in parallel across its dense/full-text/sparse channels,
// and results are fused by reciprocal rank fusion, thresholded,
// optionally reranked, and annotated with fusion diagnostics. Returned
// memories have their retention reinforced best-effort.
//
// Example:
//
//	results, err := client.Search(ctx, "Python programming",
//	    core.WithUserIDForSearch("user_001"),
//	    core.WithLimit(10),
//	    core.WithMinScore(0.7),
//	)
func (c *Client) Search(ctx context.Context, query string, opts ...SearchOption) ([]*Memory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Apply search options
	searchOpts := applySearchOptions(opts)
	c.applyDefaultScope(&searchOpts.AgentID)
	if searchOpts.RunID != "" {
		if searchOpts.Filters == nil {
			searchOpts.Filters = map[string]interface{}{}
		}
		searchOpts.Filters["run_id"] = searchOpts.RunID
	}

	hits, err := c.retrieval.Search(ctx, query, retrieval.Options{
		UserID:    searchOpts.UserID,
		AgentID:   searchOpts.AgentID,
		Filters:   searchOpts.Filters,
		Limit:     searchOpts.Limit,
		Threshold: searchOpts.MinScore,
	})
	if err != nil {
		return nil, NewMemoryError("Search", err)
	}

	memories := make([]*storage.Memory, len(hits))
	for i, h := range hits {
		memories[i] = h.Memory
	}

	return fromStorageMemories(memories), nil
}

// Get retrieves a memory by its ID, checking the main store first and
// then any active sub-stores.
func (c *Client) Get(ctx context.Context, id MemoryID) (*Memory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	memory, _, err := c.findMemory(ctx, id)
	if err != nil {
		return nil, NewMemoryError("Get", err)
	}

	return fromStorageMemory(memory), nil
}

// Update updates an existing memory's content.
//
// The method generates a new embedding for the updated content and
// rewrites the record in place: the ID is preserved and updated_at
// advances.
func (c *Client) Update(ctx context.Context, id MemoryID, content string) (*Memory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if content == "" {
		return nil, validationError("Update", "content must not be empty")
	}

	// Generate new embedding
	embedding, err := c.embedder.Embed(ctx, content)
	if err != nil {
		return nil, NewMemoryError("Update", errors.Join(ErrEmbedderUnavailable, err))
	}

	_, store, err := c.findMemory(ctx, id)
	if err != nil {
		return nil, NewMemoryError("Update", err)
	}

	// Update storage
	memory, err := store.Update(ctx, id, content, embedding, &storage.UpdateOptions{})
	if err != nil {
		return nil, NewMemoryError("Update", err)
	}

	return fromStorageMemory(memory), nil
}

// Delete deletes a memory by its ID.
func (c *Client) Delete(ctx context.Context, id MemoryID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, store, err := c.findMemory(ctx, id)
	if err != nil {
		return NewMemoryError("Delete", err)
	}

	if err := store.Delete(ctx, id, &storage.DeleteOptions{}); err != nil {
		return NewMemoryError("Delete", err)
	}

	return nil
}

// findMemory locates a memory across the main store and active
// sub-stores, returning the record and the store holding it.
func (c *Client) findMemory(ctx context.Context, id MemoryID) (*storage.Memory, storage.VectorStore, error) {
	var lastErr error
	for _, store := range c.router.RouteRead(nil) {
		memory, err := store.Get(ctx, id, &storage.GetOptions{})
		if err == nil && memory != nil {
			return memory, store, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrNotFound
	}
	return nil, nil, lastErr
}

// GetAll retrieves all memories with optional filtering.
//
// Results can be filtered by UserID, AgentID, and paginated using Limit and Offset.
func (c *Client) GetAll(ctx context.Context, opts ...GetAllOption) ([]*Memory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	getAllOpts := applyGetAllOptions(opts)
	c.applyDefaultScope(&getAllOpts.AgentID)

	storageOpts := &storage.GetAllOptions{
		UserID:  getAllOpts.UserID,
		AgentID: getAllOpts.AgentID,
		Limit:   getAllOpts.Limit,
		Offset:  getAllOpts.Offset,
	}

	var out []*Memory
	for _, store := range c.router.RouteRead(nil) {
		memories, err := store.GetAll(ctx, storageOpts)
		if err != nil {
			return nil, NewMemoryError("GetAll", err)
		}
		out = append(out, fromStorageMemories(memories)...)
	}
	if getAllOpts.Limit > 0 && len(out) > getAllOpts.Limit {
		out = out[:getAllOpts.Limit]
	}
	return out, nil
}

// DeleteAll deletes all memories matching the given filters from every
// routed store.
//
// If no filters are provided, deletes ALL memories (use with caution).
func (c *Client) DeleteAll(ctx context.Context, opts ...DeleteAllOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deleteAllOpts := applyDeleteAllOptions(opts)
	c.applyDefaultScope(&deleteAllOpts.AgentID)

	storageOpts := &storage.DeleteAllOptions{
		UserID:  deleteAllOpts.UserID,
		AgentID: deleteAllOpts.AgentID,
	}

	for _, store := range c.router.RouteRead(nil) {
		if err := store.DeleteAll(ctx, storageOpts); err != nil {
			return NewMemoryError("DeleteAll", err)
		}
	}

	return nil
}

// Migrate runs the migration protocol for the sub-store at the given
// index: matching records are paged out of the main store, re-embedded
// with the sub-store's embedder, and inserted into the sub-store. On
// success the sub-store becomes ACTIVE and participates in routing.
//
// Running a completed migration again is a no-op (there is nothing left
// to move). A concurrent call on the same sub-store fails with
// ErrMigrationInProgress.
func (c *Client) Migrate(ctx context.Context, index int, batchSize int, deleteSource bool) error {
	if err := c.router.Migrate(ctx, index, batchSize, deleteSource); err != nil {
		if errors.Is(err, substore.ErrMigrationInProgress) {
			name := fmt.Sprintf("#%d", index)
			for _, d := range c.router.SubStores() {
				if d.Index == index {
					name = d.Name
				}
			}
			return NewMemoryError("Migrate", &MigrationInProgressError{Name: name})
		}
		return NewMemoryError("Migrate", err)
	}
	return nil
}

// SubStores exposes the registered sub-store descriptors, in index order.
func (c *Client) SubStores() []*substore.Descriptor {
	return c.router.SubStores()
}

// Close closes the client and releases all resources.
func (c *Client) Close() error {
	var errs []error

	if c.scheduler != nil {
		c.scheduler.Stop()
	}

	if c.events != nil {
		if err := c.events.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.storage != nil {
		if err := c.storage.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	for _, d := range c.router.SubStores() {
		if d.Store != nil {
			if err := d.Store.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if c.llm != nil {
		if err := c.llm.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0] // Return the first error
	}

	return nil
}

// initStorage initializes the storage backend.
func initStorage(cfg VectorStoreConfig) (storage.VectorStore, error) {
	switch cfg.Provider {
	case "oceanbase":
		return oceanbase.NewClient(&oceanbase.Config{
			Host:               cfg.Config["host"].(string),
			Port:               cfg.Config["port"].(int),
			User:               cfg.Config["user"].(string),
			Password:           cfg.Config["password"].(string),
			DBName:             cfg.Config["db_name"].(string),
			CollectionName:     cfg.Config["collection_name"].(string),
			EmbeddingModelDims: cfg.Config["embedding_model_dims"].(int),
		})
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:             cfg.Config["db_path"].(string),
			CollectionName:     cfg.Config["collection_name"].(string),
			EmbeddingModelDims: cfg.Config["embedding_model_dims"].(int),
		})
	case "postgres":
		sslMode := "disable"
		if s, ok := cfg.Config["ssl_mode"].(string); ok {
			sslMode = s
		}
		return postgresStore.NewClient(&postgresStore.Config{
			Host:               cfg.Config["host"].(string),
			Port:               cfg.Config["port"].(int),
			User:               cfg.Config["user"].(string),
			Password:           cfg.Config["password"].(string),
			DBName:             cfg.Config["db_name"].(string),
			CollectionName:     cfg.Config["collection_name"].(string),
			EmbeddingModelDims: cfg.Config["embedding_model_dims"].(int),
			SSLMode:            sslMode,
		})
	case "qdrant":
		apiKey, _ := cfg.Config["api_key"].(string)
		useTLS, _ := cfg.Config["use_tls"].(bool)
		return qdrantStore.NewClient(&qdrantStore.Config{
			Host:               cfg.Config["host"].(string),
			Port:               cfg.Config["port"].(int),
			APIKey:             apiKey,
			UseTLS:             useTLS,
			CollectionName:     cfg.Config["collection_name"].(string),
			EmbeddingModelDims: cfg.Config["embedding_model_dims"].(int),
		})
	default:
		return nil, NewMemoryError("initStorage", ErrInvalidConfig)
	}
}

// NewLLMProvider constructs an LLM provider from config. Exported so
// extensions (e.g. the user-memory client) reuse the same provider
// registry instead of duplicating the switch.
func NewLLMProvider(cfg LLMConfig) (llm.Provider, error) {
	return initLLM(cfg)
}

// initLLM initializes the LLM provider.
func initLLM(cfg LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "qwen":
		return qwenLLM.NewClient(&qwenLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "deepseek":
		return deepseekLLM.NewClient(&deepseekLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "ollama":
		return ollamaLLM.NewClient(&ollamaLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "anthropic":
		return anthropicLLM.NewClient(&anthropicLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, NewMemoryError("initLLM", ErrInvalidConfig)
	}
}

// initEmbedder initializes the embedder provider.
func initEmbedder(cfg EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "qwen":
		return qwenEmbedder.NewClient(&qwenEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, NewMemoryError("initEmbedder", ErrInvalidConfig)
	}
}
