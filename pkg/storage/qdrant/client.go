// Package qdrant implements the storage.VectorStore interface on top of
// Qdrant, giving PowerMem its tier-a backend: native dense AND sparse
// vector channels in one engine (FTS is emulated with a payload
// substring match, mirroring what the SQL-backed tiers do for their own
// weakest channel).
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/oceanbase/powermem/pkg/contenthash"
	"github.com/oceanbase/powermem/pkg/storage"
)

const payloadVector = "dense"
const payloadSparseVector = "sparse"

// Config contains Qdrant connection configuration.
type Config struct {
	Host               string
	Port               int
	APIKey             string
	UseTLS             bool
	CollectionName     string
	EmbeddingModelDims int
}

// Client is a Qdrant-backed store.
type Client struct {
	client     *qdrant.Client
	collection string
	dimensions int
}

// NewClient creates a new Qdrant client and ensures the collection exists
// with both a dense and a sparse named vector.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("NewQdrantClient: collection name is required")
	}

	qc, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("NewQdrantClient: %w", err)
	}

	client := &Client{
		client:     qc,
		collection: cfg.CollectionName,
		dimensions: cfg.EmbeddingModelDims,
	}

	if err := client.ensureCollection(context.Background()); err != nil {
		_ = qc.Close()
		return nil, fmt.Errorf("NewQdrantClient: %w", err)
	}

	return client, nil
}

func (c *Client) ensureCollection(ctx context.Context) error {
	exists, err := c.client.CollectionExists(ctx, c.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if c.dimensions <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}

	return c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			payloadVector: {
				Size:     uint64(c.dimensions),
				Distance: qdrant.Distance_Cosine,
			},
		}),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			payloadSparseVector: {},
		}),
	})
}

// Insert inserts a memory, with its dense embedding and (if present)
// sparse embedding as two named vectors on the same point.
func (c *Client) Insert(ctx context.Context, memory *storage.Memory) error {
	metadataJSON, err := json.Marshal(memory.Metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	payload := map[string]any{
		"user_id":            memory.UserID,
		"agent_id":           memory.AgentID,
		"content":             memory.Content,
		"fulltext_content":    firstNonEmpty(memory.FulltextContent, memory.Content),
		"metadata":            string(metadataJSON),
		"hash":                firstNonEmpty(memory.Hash, generateHash(memory.Content)),
		"created_at":          memory.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"updated_at":          memory.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"retention_strength":  memory.RetentionStrength,
	}

	vectors := map[string]*qdrant.Vector{
		payloadVector: qdrant.NewVectorDense(toFloat32(memory.Embedding)),
	}
	if len(memory.SparseEmbedding) > 0 {
		indices, values := sparseToArrays(memory.SparseEmbedding)
		vectors[payloadSparseVector] = qdrant.NewVectorSparse(indices, values)
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(uint64(memory.ID)),
		Vectors: qdrant.NewVectorsMap(vectors),
		Payload: qdrant.NewValueMap(payload),
	}

	_, err = c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

// Search performs dense vector similarity search against the "dense"
// named vector.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	limit := uint64(opts.Limit)
	if limit == 0 {
		limit = 10
	}

	minScore := opts.MinScore
	if minScore == 0 && opts.Threshold > 0 {
		minScore = opts.Threshold
	}

	req := &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQueryDense(toFloat32(embedding)),
		Using:          strPtr(payloadVector),
		Limit:          &limit,
		Filter:         buildFilter(opts.UserID, opts.AgentID, opts.Filters),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if minScore > 0 {
		sf := float32(minScore)
		req.ScoreThreshold = &sf
	}

	points, err := c.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	return toMemories(points)
}

// SearchSparse performs a native sparse-vector search against the
// "sparse" named vector, implementing storage.SparseSearcher.
func (c *Client) SearchSparse(ctx context.Context, sparse map[int]float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	if len(sparse) == 0 {
		return nil, nil
	}
	limit := uint64(opts.Limit)
	if limit == 0 {
		limit = 10
	}
	indices, values := sparseToArrays(sparse)

	req := &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQuerySparse(indices, values),
		Using:          strPtr(payloadSparseVector),
		Limit:          &limit,
		Filter:         buildFilter(opts.UserID, opts.AgentID, opts.Filters),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	points, err := c.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("SearchSparse: %w", err)
	}
	return toMemories(points)
}

// SearchFTS emulates a full-text channel with a payload substring match.
// Qdrant has no native text index in the client surface this codebase
// uses, so this scans the collection's scroll API; adequate at the
// collection sizes this tier targets, not meant to scale to millions of
// points.
func (c *Client) SearchFTS(ctx context.Context, query string, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	limit := uint32(200)
	points, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: c.collection,
		Filter:         buildFilter(opts.UserID, opts.AgentID, opts.Filters),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("SearchFTS: %w", err)
	}

	lowered := strings.ToLower(query)
	var memories []*storage.Memory
	for _, p := range points {
		m, err := payloadToMemory(p.Id, p.Payload, p.Vectors)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(m.FulltextContent), lowered) {
			memories = append(memories, m)
		}
	}

	limitN := opts.Limit
	if limitN > 0 && len(memories) > limitN {
		memories = memories[:limitN]
	}
	return memories, nil
}

// GetByHash scans for a matching content hash via the scroll API with a
// payload filter, implementing storage.HashLookup.
func (c *Client) GetByHash(ctx context.Context, hash, userID, agentID string) (*storage.Memory, error) {
	filter := buildFilter(userID, agentID, nil)
	filter.Must = append(filter.Must, qdrant.NewMatch("hash", hash))

	limit := uint32(1)
	points, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: c.collection,
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("GetByHash: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	return payloadToMemory(points[0].Id, points[0].Payload, points[0].Vectors)
}

// Get retrieves a memory by ID.
func (c *Client) Get(ctx context.Context, id storage.MemoryID, opts *storage.GetOptions) (*storage.Memory, error) {
	points, err := c.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: c.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDNum(uint64(id))},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("Get: not found")
	}
	memory, err := payloadToMemory(points[0].Id, points[0].Payload, points[0].Vectors)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if opts != nil {
		if opts.UserID != "" && memory.UserID != opts.UserID {
			return nil, fmt.Errorf("Get: not found or access denied")
		}
		if opts.AgentID != "" && memory.AgentID != opts.AgentID {
			return nil, fmt.Errorf("Get: not found or access denied")
		}
	}
	return memory, nil
}

// Update updates a memory's content, dense embedding, and derived fields.
func (c *Client) Update(ctx context.Context, id storage.MemoryID, content string, embedding []float64, opts *storage.UpdateOptions) (*storage.Memory, error) {
	existing, err := c.Get(ctx, id, &storage.GetOptions{UserID: opts.UserID, AgentID: opts.AgentID})
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	existing.Content = content
	existing.FulltextContent = content
	existing.Embedding = embedding
	existing.Hash = generateHash(content)

	if err := c.Insert(ctx, existing); err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}
	return existing, nil
}

// UpdateRetention patches a point's payload in place, leaving its vectors
// untouched. A non-nil metadata replaces the stored metadata payload in
// the same patch, carrying the retention block's updated counters.
func (c *Client) UpdateRetention(ctx context.Context, id storage.MemoryID, retentionStrength float64, lastAccessedAt time.Time, metadata map[string]interface{}) error {
	payload := map[string]any{
		"retention_strength": retentionStrength,
		"last_accessed_at":   lastAccessedAt.Format(time.RFC3339),
	}
	if metadata != nil {
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("UpdateRetention: %w", err)
		}
		payload["metadata"] = string(metadataJSON)
	}
	_, err := c.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: c.collection,
		Payload:        qdrant.NewValueMap(payload),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewIDNum(uint64(id))),
	})
	if err != nil {
		return fmt.Errorf("UpdateRetention: %w", err)
	}
	return nil
}

// Delete deletes a memory by ID.
func (c *Client) Delete(ctx context.Context, id storage.MemoryID, opts *storage.DeleteOptions) error {
	if opts != nil && (opts.UserID != "" || opts.AgentID != "") {
		if _, err := c.Get(ctx, id, &storage.GetOptions{UserID: opts.UserID, AgentID: opts.AgentID}); err != nil {
			return fmt.Errorf("Delete: %w", err)
		}
	}
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDNum(uint64(id))),
	})
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// GetAll retrieves all memories matching the given scoping via Scroll.
func (c *Client) GetAll(ctx context.Context, opts *storage.GetAllOptions) ([]*storage.Memory, error) {
	limit := uint32(opts.Limit)
	if limit == 0 {
		limit = 100
	}
	points, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: c.collection,
		Filter:         buildFilter(opts.UserID, opts.AgentID, nil),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}

	memories := make([]*storage.Memory, 0, len(points))
	for _, p := range points {
		m, err := payloadToMemory(p.Id, p.Payload, p.Vectors)
		if err != nil {
			continue
		}
		memories = append(memories, m)
	}

	if opts.Offset > 0 && opts.Offset < len(memories) {
		memories = memories[opts.Offset:]
	}
	return memories, nil
}

// List implements storage.Lister.
func (c *Client) List(ctx context.Context, opts *storage.GetAllOptions) ([]*storage.Memory, int, error) {
	memories, err := c.GetAll(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := c.Count(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	return memories, total, nil
}

// Count implements storage.Counter using Qdrant's native count API.
func (c *Client) Count(ctx context.Context, opts *storage.GetAllOptions) (int, error) {
	n, err := c.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.collection,
		Filter:         buildFilter(opts.UserID, opts.AgentID, nil),
	})
	if err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return int(n), nil
}

// DeleteAll deletes all memories matching the given scoping.
func (c *Client) DeleteAll(ctx context.Context, opts *storage.DeleteAllOptions) error {
	filter := buildFilter(opts.UserID, opts.AgentID, nil)
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("DeleteAll: %w", err)
	}
	return nil
}

// Reset implements storage.Resetter by recreating the collection.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.DeleteCol(ctx); err != nil {
		return err
	}
	return c.ensureCollection(ctx)
}

// DeleteCol implements storage.ColDeleter.
func (c *Client) DeleteCol(ctx context.Context) error {
	if err := c.client.DeleteCollection(ctx, c.collection); err != nil {
		return fmt.Errorf("DeleteCol: %w", err)
	}
	return nil
}

// ColInfo implements storage.ColInfoer.
func (c *Client) ColInfo(ctx context.Context) (*storage.CollectionInfo, error) {
	n, err := c.Count(ctx, &storage.GetAllOptions{})
	if err != nil {
		return nil, err
	}
	return &storage.CollectionInfo{Name: c.collection, Count: n, Dimensions: c.dimensions}, nil
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// CreateIndex is a no-op: Qdrant manages its own HNSW index internally
// and configures it at collection-creation time rather than via a
// separate DDL call.
func (c *Client) CreateIndex(ctx context.Context, config *storage.VectorIndexConfig) error {
	return nil
}

func buildFilter(userID, agentID string, filters map[string]interface{}) *qdrant.Filter {
	var must []*qdrant.Condition
	if userID != "" {
		must = append(must, qdrant.NewMatch("user_id", userID))
	}
	if agentID != "" {
		must = append(must, qdrant.NewMatch("agent_id", agentID))
	}
	for k, v := range filters {
		must = append(must, qdrant.NewMatch(k, fmt.Sprintf("%v", v)))
	}
	return &qdrant.Filter{Must: must}
}

func toMemories(points []*qdrant.ScoredPoint) ([]*storage.Memory, error) {
	memories := make([]*storage.Memory, 0, len(points))
	for _, p := range points {
		m, err := payloadToMemory(p.Id, p.Payload, nil)
		if err != nil {
			continue
		}
		m.Score = float64(p.Score)
		memories = append(memories, m)
	}
	return memories, nil
}

func payloadToMemory(id *qdrant.PointId, payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) (*storage.Memory, error) {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	getFloat := func(key string) float64 {
		if v, ok := payload[key]; ok {
			return v.GetDoubleValue()
		}
		return 0
	}

	memory := &storage.Memory{
		ID:                storage.MemoryID(id.GetNum()),
		UserID:            get("user_id"),
		AgentID:           get("agent_id"),
		Content:           get("content"),
		FulltextContent:   get("fulltext_content"),
		Hash:              get("hash"),
		RetentionStrength: getFloat("retention_strength"),
	}

	if m := get("metadata"); m != "" {
		if err := json.Unmarshal([]byte(m), &memory.Metadata); err != nil {
			return nil, err
		}
	}
	if vectors != nil {
		if named := vectors.GetVectors(); named != nil {
			if dense := named.GetVectors()[payloadVector]; dense != nil {
				memory.Embedding = toFloat64(dense.GetDense().GetData())
			}
		}
	}

	return memory, nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func sparseToArrays(sparse map[int]float64) ([]uint32, []float32) {
	indices := make([]uint32, 0, len(sparse))
	values := make([]float32, 0, len(sparse))
	for k, v := range sparse {
		indices = append(indices, uint32(k))
		values = append(values, float32(v))
	}
	return indices, values
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func strPtr(s string) *string { return &s }

func generateHash(content string) string {
	return contenthash.Hash(content)
}
