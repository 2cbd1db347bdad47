// Package sqlite provides SQLite implementation for vector storage.
//
// SQLite is a lightweight, file-based database suitable for local development
// and small-scale applications. Vectors are stored as JSON strings in TEXT fields,
// and similarity search uses in-memory cosine similarity calculation.
package sqlite

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/oceanbase/powermem/pkg/contenthash"
	"github.com/oceanbase/powermem/pkg/storage"
)

// Client implements VectorStore using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// collectionName is the name of the table storing memories.
	collectionName string

	// dimensions is the dimension of embedding vectors.
	dimensions int
}

// Config contains configuration for creating a SQLite VectorStore.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CollectionName is the name of the table to use.
	CollectionName string

	// EmbeddingModelDims is the dimension of embedding vectors.
	EmbeddingModelDims int

	// PureGo selects the cgo-free modernc.org/sqlite driver instead of
	// mattn/go-sqlite3, for binaries (notably test binaries) built
	// without cgo.
	PureGo bool
}

// NewClient creates a new SQLite VectorStore client.
//
// Parameters:
//   - cfg: Configuration containing database path, table name, and embedding dimensions
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	driver, dsn := "sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL"
	if cfg.PureGo {
		driver, dsn = "sqlite", cfg.DBPath
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{
		db:             db,
		collectionName: cfg.CollectionName,
		dimensions:     cfg.EmbeddingModelDims,
	}

	// Initialize table structure
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table structure.
//
// SQLite stores vectors as JSON strings in TEXT fields.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_id TEXT,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			retention_strength REAL DEFAULT 1.0,
			last_accessed_at DATETIME,
			hash TEXT
		)
	`, c.collectionName)

	_, err := c.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	// Create indexes
	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_user_agent ON %s(user_id, agent_id)
	`, c.collectionName, c.collectionName)
	_, err = c.db.ExecContext(ctx, indexQuery)
	if err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	hashIndexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_hash ON %s(hash)
	`, c.collectionName, c.collectionName)
	_, err = c.db.ExecContext(ctx, hashIndexQuery)
	if err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Insert inserts a memory into the SQLite database.
//
// Vectors are stored as JSON strings in TEXT fields.
func (c *Client) Insert(ctx context.Context, memory *storage.Memory) error {
	query := fmt.Sprintf(`
		INSERT INTO %s 
		(id, user_id, agent_id, content, embedding, metadata, created_at, retention_strength, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.collectionName)

	embeddingJSON, err := json.Marshal(memory.Embedding)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	metadataJSON, err := json.Marshal(memory.Metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	hash := memory.Hash
	if hash == "" {
		hash = contenthash.Hash(memory.Content)
	}

	_, err = c.db.ExecContext(ctx, query,
		memory.ID,
		memory.UserID,
		memory.AgentID,
		memory.Content,
		string(embeddingJSON),
		string(metadataJSON),
		time.Now(),
		memory.RetentionStrength,
		hash,
	)

	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// GetByHash looks up a memory by its exact content-hash fingerprint,
// scoped to the given user/agent. Returns nil when no duplicate exists.
func (c *Client) GetByHash(ctx context.Context, hash, userID, agentID string) (*storage.Memory, error) {
	if hash == "" {
		return nil, nil
	}

	whereClause := "WHERE hash = ?"
	args := []interface{}{hash}
	if userID != "" {
		whereClause += " AND user_id = ?"
		args = append(args, userID)
	}
	if agentID != "" {
		whereClause += " AND agent_id = ?"
		args = append(args, agentID)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, agent_id, content, embedding, metadata,
		       created_at, updated_at, retention_strength, last_accessed_at
		FROM %s
		%s
		LIMIT 1
	`, c.collectionName, whereClause)

	memory, err := c.scanMemory(c.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByHash: %w", err)
	}
	return memory, nil
}

// Search performs vector similarity search using cosine similarity.
//
// SQLite does not have native vector operations, so similarity is calculated
// in memory after loading all matching records.
//
// The method supports hybrid search parameters for future enhancement:
//   - opts.Query: Original query text (reserved for full-text search)
//   - opts.SparseEmbedding: Sparse vector (reserved for sparse + dense hybrid)
//   - opts.Threshold: Minimum similarity score (alias for MinScore)
//
// This backend is the minimal embedded tier: dense vector search only,
// with an in-process cosine scan. Full-text and sparse channels live in
// the server-backed stores.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	// Use Threshold if MinScore is not set
	minScore := opts.MinScore
	if minScore == 0 && opts.Threshold > 0 {
		minScore = opts.Threshold
	}

	whereClause, args, err := buildWhereClause(opts.UserID, opts.AgentID, opts.Filters)
	if err != nil {
		return nil, err
	}

	// SQLite requires manual cosine similarity calculation
	query := fmt.Sprintf(`
		SELECT 
			id, user_id, agent_id, content, embedding, metadata,
			created_at, updated_at, retention_strength, last_accessed_at
		FROM %s
		%s
		ORDER BY id
	`, c.collectionName, whereClause)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := c.scanMemory(rows)
		if err != nil {
			return nil, err
		}

		// Calculate cosine similarity
		score := cosineSimilarity(embedding, memory.Embedding)
		memory.Score = score

		// Apply threshold filter
		if score >= minScore {
			memories = append(memories, memory)
		}

	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sort by score and limit results
	memories = sortByScore(memories, opts.Limit)

	return memories, nil
}

// Get retrieves a memory by ID with optional access control.
func (c *Client) Get(ctx context.Context, id storage.MemoryID, opts *storage.GetOptions) (*storage.Memory, error) {
	if opts == nil {
		opts = &storage.GetOptions{}
	}

	// Build WHERE clause with access control
	whereClause := "WHERE id = ?"
	args := []interface{}{id}

	if opts.UserID != "" {
		whereClause += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.AgentID != "" {
		whereClause += " AND agent_id = ?"
		args = append(args, opts.AgentID)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, agent_id, content, embedding, metadata,
		       created_at, updated_at, retention_strength, last_accessed_at
		FROM %s
		%s
	`, c.collectionName, whereClause)

	row := c.db.QueryRowContext(ctx, query, args...)

	memory, err := c.scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("Get: not found or access denied")
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return memory, nil
}

// Update updates a memory with optional access control.
func (c *Client) Update(ctx context.Context, id storage.MemoryID, content string, embedding []float64, opts *storage.UpdateOptions) (*storage.Memory, error) {
	if opts == nil {
		opts = &storage.UpdateOptions{}
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	// Build WHERE clause with access control
	whereClause := "WHERE id = ?"
	args := []interface{}{content, string(embeddingJSON), contenthash.Hash(content), time.Now(), id}

	if opts.UserID != "" {
		whereClause += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.AgentID != "" {
		whereClause += " AND agent_id = ?"
		args = append(args, opts.AgentID)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET content = ?, embedding = ?, hash = ?, updated_at = ?
		%s
	`, c.collectionName, whereClause)

	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	if rowsAffected == 0 {
		return nil, fmt.Errorf("Update: not found or access denied")
	}

	return c.Get(ctx, id, &storage.GetOptions{
		UserID:  opts.UserID,
		AgentID: opts.AgentID,
	})
}

// UpdateRetention persists a retention reinforcement without touching
// content or embedding, used by the retrieval engine's best-effort
// write-back after serving a hit. A non-nil metadata replaces the
// stored blob in the same statement, carrying the retention block's
// updated counters with it.
func (c *Client) UpdateRetention(ctx context.Context, id storage.MemoryID, retentionStrength float64, lastAccessedAt time.Time, metadata map[string]interface{}) error {
	if metadata != nil {
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("UpdateRetention: %w", err)
		}
		query := fmt.Sprintf(`
			UPDATE %s SET retention_strength = ?, last_accessed_at = ?, metadata = ?
			WHERE id = ?
		`, c.collectionName)
		if _, err := c.db.ExecContext(ctx, query, retentionStrength, lastAccessedAt, string(metadataJSON), id); err != nil {
			return fmt.Errorf("UpdateRetention: %w", err)
		}
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s SET retention_strength = ?, last_accessed_at = ?
		WHERE id = ?
	`, c.collectionName)
	_, err := c.db.ExecContext(ctx, query, retentionStrength, lastAccessedAt, id)
	if err != nil {
		return fmt.Errorf("UpdateRetention: %w", err)
	}
	return nil
}

// Delete deletes a memory by ID with optional access control.
func (c *Client) Delete(ctx context.Context, id storage.MemoryID, opts *storage.DeleteOptions) error {
	if opts == nil {
		opts = &storage.DeleteOptions{}
	}

	// Build WHERE clause with access control
	whereClause := "WHERE id = ?"
	args := []interface{}{id}

	if opts.UserID != "" {
		whereClause += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.AgentID != "" {
		whereClause += " AND agent_id = ?"
		args = append(args, opts.AgentID)
	}

	query := fmt.Sprintf("DELETE FROM %s %s", c.collectionName, whereClause)

	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("Delete: not found or access denied")
	}

	return nil
}

// GetAll retrieves all memories with optional filtering and pagination.
func (c *Client) GetAll(ctx context.Context, opts *storage.GetAllOptions) ([]*storage.Memory, error) {
	whereClause, args, err := buildWhereClause(opts.UserID, opts.AgentID, nil)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, agent_id, content, embedding, metadata,
		       created_at, updated_at, retention_strength, last_accessed_at
		FROM %s
		%s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, c.collectionName, whereClause)

	args = append(args, opts.Limit, opts.Offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := c.scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, memory)
	}

	return memories, nil
}

// DeleteAll deletes all memories matching the given filters.
func (c *Client) DeleteAll(ctx context.Context, opts *storage.DeleteAllOptions) error {
	whereClause, args, err := buildWhereClause(opts.UserID, opts.AgentID, nil)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s %s", c.collectionName, whereClause)

	_, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("DeleteAll: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// CreateIndex creates a vector index.
//
// SQLite does not support vector indexes, so this method is a no-op.
// Similarity search uses full table scan with in-memory calculation.
func (c *Client) CreateIndex(ctx context.Context, config *storage.VectorIndexConfig) error {
	// SQLite does not support vector indexes, uses full table scan
	return nil
}

// scanMemory scans a memory from a database row or rows.
func (c *Client) scanMemory(scanner interface{}) (*storage.Memory, error) {
	var memory storage.Memory
	var embeddingStr string
	var metadataStr string
	var lastAccessedAt sql.NullTime

	var err error
	switch s := scanner.(type) {
	case *sql.Row:
		err = s.Scan(
			&memory.ID,
			&memory.UserID,
			&memory.AgentID,
			&memory.Content,
			&embeddingStr,
			&metadataStr,
			&memory.CreatedAt,
			&memory.UpdatedAt,
			&memory.RetentionStrength,
			&lastAccessedAt,
		)
	case *sql.Rows:
		err = s.Scan(
			&memory.ID,
			&memory.UserID,
			&memory.AgentID,
			&memory.Content,
			&embeddingStr,
			&metadataStr,
			&memory.CreatedAt,
			&memory.UpdatedAt,
			&memory.RetentionStrength,
			&lastAccessedAt,
		)
	default:
		return nil, fmt.Errorf("unsupported scanner type")
	}

	if err != nil {
		return nil, err
	}

	// Parse embedding
	if err := json.Unmarshal([]byte(embeddingStr), &memory.Embedding); err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}

	// Parse metadata
	if metadataStr != "" {
		if err := json.Unmarshal([]byte(metadataStr), &memory.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}

	// Handle last_accessed_at
	if lastAccessedAt.Valid {
		memory.LastAccessedAt = &lastAccessedAt.Time
	}

	return &memory, nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// scoreHeap is a min-heap by score, so the root is always the weakest
// of the retained candidates and can be evicted in O(log k).
type scoreHeap []*storage.Memory

func (h scoreHeap) Len() int            { return len(h) }
func (h scoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h scoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoreHeap) Push(x interface{}) { *h = append(*h, x.(*storage.Memory)) }
func (h *scoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// sortByScore returns the top limit memories ordered by score
// (descending). The full scan already costs O(n); a bounded min-heap
// keeps selection at O(n log k) instead of sorting everything.
func sortByScore(memories []*storage.Memory, limit int) []*storage.Memory {
	if limit <= 0 || limit >= len(memories) {
		sort.SliceStable(memories, func(i, j int) bool {
			return memories[i].Score > memories[j].Score
		})
		return memories
	}

	h := make(scoreHeap, 0, limit+1)
	heap.Init(&h)
	for _, m := range memories {
		heap.Push(&h, m)
		if h.Len() > limit {
			heap.Pop(&h)
		}
	}

	// Drain the heap weakest-first into descending order.
	out := make([]*storage.Memory, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(*storage.Memory)
	}
	return out
}
