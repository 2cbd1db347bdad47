package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/oceanbase/powermem/pkg/storage"
)

// Client is a PostgreSQL + pgvector client. It provides a dense + full-text
// backend: dense vector search (pgvector's <=> cosine-distance operator)
// plus a full-text channel (tsvector/tsquery), but no sparse channel.
type Client struct {
	db             *sql.DB
	collectionName string
	dimensions     int
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	CollectionName     string
	EmbeddingModelDims int
	SSLMode            string
}

// NewClient creates a new PostgreSQL client.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{
		db:             db,
		collectionName: cfg.CollectionName,
		dimensions:     cfg.EmbeddingModelDims,
	}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table.
func (c *Client) initTables(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("initTables: create extension: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			agent_id VARCHAR(255),
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB,
			hash VARCHAR(32),
			fulltext_content TEXT,
			fulltext_tsv tsvector,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			retention_strength FLOAT DEFAULT 1.0,
			last_accessed_at TIMESTAMP
		)
	`, c.collectionName, c.dimensions)

	if _, err = c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: create table: %w", err)
	}

	indexQuery := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user_agent ON %s(user_id, agent_id)`,
		c.collectionName, c.collectionName)
	if _, err = c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: create index: %w", err)
	}

	ftsIndexQuery := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_fts ON %s USING GIN(fulltext_tsv)`,
		c.collectionName, c.collectionName)
	if _, err = c.db.ExecContext(ctx, ftsIndexQuery); err != nil {
		return fmt.Errorf("initTables: create fts index: %w", err)
	}

	hashIndexQuery := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_hash ON %s(hash, user_id, agent_id)`,
		c.collectionName, c.collectionName)
	if _, err = c.db.ExecContext(ctx, hashIndexQuery); err != nil {
		return fmt.Errorf("initTables: create hash index: %w", err)
	}

	return nil
}

// Insert inserts a memory.
func (c *Client) Insert(ctx context.Context, memory *storage.Memory) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, user_id, agent_id, content, embedding, metadata, hash, fulltext_content, fulltext_tsv, created_at, retention_strength)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, to_tsvector('simple', $8), $9, $10)
	`, c.collectionName)

	vectorStr := vectorToString(memory.Embedding)

	metadataJSON, err := json.Marshal(memory.Metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	hash := memory.Hash
	if hash == "" {
		hash = generateHash(memory.Content)
	}
	fulltext := memory.FulltextContent
	if fulltext == "" {
		fulltext = memory.Content
	}

	_, err = c.db.ExecContext(ctx, query,
		memory.ID,
		memory.UserID,
		memory.AgentID,
		memory.Content,
		vectorStr,
		string(metadataJSON),
		hash,
		fulltext,
		time.Now(),
		memory.RetentionStrength,
	)

	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// Search performs vector search using pgvector's cosine similarity.
// Combined with SearchFTS this gives a dense + full-text search surface
// (no sparse channel); the two channels are fused by pkg/retrieval's
// reciprocal-rank-fusion step.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	queryVectorStr := vectorToString(embedding)

	whereClause, filterArgs, err := buildWhereClauseWithOffset(opts.UserID, opts.AgentID, opts.Filters, 2)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	minScore := opts.MinScore
	if minScore == 0 && opts.Threshold > 0 {
		minScore = opts.Threshold
	}

	query := fmt.Sprintf(`
		SELECT
			id, user_id, agent_id, content, embedding, metadata, hash,
			created_at, updated_at, retention_strength, last_accessed_at,
			1 - (embedding <=> $1) as similarity
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, c.collectionName, whereClause, len(filterArgs)+2)

	allArgs := []interface{}{queryVectorStr}
	allArgs = append(allArgs, filterArgs...)
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	allArgs = append(allArgs, limit)

	rows, err := c.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	memories, err := c.scanMemories(rows, true)
	if err != nil {
		return nil, err
	}
	if minScore > 0 {
		filtered := memories[:0]
		for _, m := range memories {
			if m.Score >= minScore {
				filtered = append(filtered, m)
			}
		}
		memories = filtered
	}
	return memories, nil
}

// SearchFTS ranks by PostgreSQL's native ts_rank against the precomputed
// tsvector column, giving this backend a real full-text channel distinct
// from its dense-vector one.
func (c *Client) SearchFTS(ctx context.Context, query string, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	whereClause, filterArgs, err := buildWhereClauseWithOffset(opts.UserID, opts.AgentID, opts.Filters, 2)
	if err != nil {
		return nil, fmt.Errorf("SearchFTS: %w", err)
	}

	ftsCond := "fulltext_tsv @@ plainto_tsquery('simple', $1)"
	if whereClause == "" {
		whereClause = "WHERE " + ftsCond
	} else {
		whereClause += " AND " + ftsCond
	}

	sqlQuery := fmt.Sprintf(`
		SELECT
			id, user_id, agent_id, content, embedding, metadata, hash,
			created_at, updated_at, retention_strength, last_accessed_at,
			ts_rank(fulltext_tsv, plainto_tsquery('simple', $1)) as similarity
		FROM %s
		%s
		ORDER BY similarity DESC
		LIMIT $%d
	`, c.collectionName, whereClause, len(filterArgs)+2)

	allArgs := []interface{}{query}
	allArgs = append(allArgs, filterArgs...)
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	allArgs = append(allArgs, limit)

	rows, err := c.db.QueryContext(ctx, sqlQuery, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("SearchFTS: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return c.scanMemories(rows, true)
}

// GetByHash looks up a memory by its exact content-hash fingerprint.
func (c *Client) GetByHash(ctx context.Context, hash, userID, agentID string) (*storage.Memory, error) {
	whereClause, args, err := buildWhereClauseWithOffset(userID, agentID, nil, 2)
	if err != nil {
		return nil, fmt.Errorf("GetByHash: %w", err)
	}
	cond := "hash = $1"
	if whereClause == "" {
		whereClause = "WHERE " + cond
	} else {
		whereClause += " AND " + cond
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, agent_id, content, embedding, metadata, hash,
		       created_at, updated_at, retention_strength, last_accessed_at
		FROM %s
		%s
		LIMIT 1
	`, c.collectionName, whereClause)

	allArgs := append([]interface{}{hash}, args...)
	row := c.db.QueryRowContext(ctx, query, allArgs...)
	memory, err := c.scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByHash: %w", err)
	}
	return memory, nil
}

// Get retrieves a memory by ID with optional access control.
func (c *Client) Get(ctx context.Context, id storage.MemoryID, opts *storage.GetOptions) (*storage.Memory, error) {
	if opts == nil {
		opts = &storage.GetOptions{}
	}

	whereClause := "WHERE id = $1"
	args := []interface{}{id}
	idx := 2
	if opts.UserID != "" {
		whereClause += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, opts.UserID)
		idx++
	}
	if opts.AgentID != "" {
		whereClause += fmt.Sprintf(" AND agent_id = $%d", idx)
		args = append(args, opts.AgentID)
		idx++
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, agent_id, content, embedding, metadata, hash,
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

	vectorStr := vectorToString(embedding)
	hash := generateHash(content)

	whereClause := "WHERE id = $5"
	args := []interface{}{content, vectorStr, time.Now(), hash, id}
	idx := 6
	if opts.UserID != "" {
		whereClause += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, opts.UserID)
		idx++
	}
	if opts.AgentID != "" {
		whereClause += fmt.Sprintf(" AND agent_id = $%d", idx)
		args = append(args, opts.AgentID)
		idx++
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET content = $1, embedding = $2, updated_at = $3, hash = $4,
		    fulltext_content = $1, fulltext_tsv = to_tsvector('simple', $1)
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

	return c.Get(ctx, id, &storage.GetOptions{UserID: opts.UserID, AgentID: opts.AgentID})
}

// UpdateRetention persists a retention reinforcement without touching
// content or embedding, used by the retrieval engine's best-effort
// write-back after serving a hit. A non-nil metadata replaces the
// stored JSONB blob in the same statement, carrying the retention
// block's updated counters with it.
func (c *Client) UpdateRetention(ctx context.Context, id storage.MemoryID, retentionStrength float64, lastAccessedAt time.Time, metadata map[string]interface{}) error {
	if metadata != nil {
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("UpdateRetention: %w", err)
		}
		query := fmt.Sprintf(`
			UPDATE %s SET retention_strength = $1, last_accessed_at = $2, metadata = $3
			WHERE id = $4
		`, c.collectionName)
		if _, err := c.db.ExecContext(ctx, query, retentionStrength, lastAccessedAt, string(metadataJSON), id); err != nil {
			return fmt.Errorf("UpdateRetention: %w", err)
		}
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s SET retention_strength = $1, last_accessed_at = $2
		WHERE id = $3
	`, c.collectionName)
	_, err := c.db.ExecContext(ctx, query, retentionStrength, lastAccessedAt, id)
	if err != nil {
		return fmt.Errorf("UpdateRetention: %w", err)
	}
	return nil
}

// Delete deletes a memory with optional access control.
func (c *Client) Delete(ctx context.Context, id storage.MemoryID, opts *storage.DeleteOptions) error {
	if opts == nil {
		opts = &storage.DeleteOptions{}
	}

	whereClause := "WHERE id = $1"
	args := []interface{}{id}
	idx := 2
	if opts.UserID != "" {
		whereClause += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, opts.UserID)
		idx++
	}
	if opts.AgentID != "" {
		whereClause += fmt.Sprintf(" AND agent_id = $%d", idx)
		args = append(args, opts.AgentID)
		idx++
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

// GetAll retrieves all memories.
func (c *Client) GetAll(ctx context.Context, opts *storage.GetAllOptions) ([]*storage.Memory, error) {
	whereClause, args, err := buildWhereClause(opts.UserID, opts.AgentID, nil)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, agent_id, content, embedding, metadata, hash,
		       created_at, updated_at, retention_strength, last_accessed_at
		FROM %s
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, c.collectionName, whereClause, len(args)+1, len(args)+2)

	args = append(args, opts.Limit, opts.Offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return c.scanMemories(rows, false)
}

// List is the Lister capability: a plain listing plus a total count.
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

// Count reports how many memories match the given scoping.
func (c *Client) Count(ctx context.Context, opts *storage.GetAllOptions) (int, error) {
	whereClause, args, err := buildWhereClause(opts.UserID, opts.AgentID, nil)
	if err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", c.collectionName, whereClause)
	var n int
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

// DeleteAll deletes all memories.
func (c *Client) DeleteAll(ctx context.Context, opts *storage.DeleteAllOptions) error {
	whereClause, args, err := buildWhereClause(opts.UserID, opts.AgentID, nil)
	if err != nil {
		return fmt.Errorf("DeleteAll: %w", err)
	}

	query := fmt.Sprintf("DELETE FROM %s %s", c.collectionName, whereClause)

	_, err = c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("DeleteAll: %w", err)
	}

	return nil
}

// Reset truncates the collection.
func (c *Client) Reset(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", c.collectionName))
	if err != nil {
		return fmt.Errorf("Reset: %w", err)
	}
	return nil
}

// DeleteCol drops the collection entirely.
func (c *Client) DeleteCol(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", c.collectionName))
	if err != nil {
		return fmt.Errorf("DeleteCol: %w", err)
	}
	return nil
}

// ColInfo reports collection metadata.
func (c *Client) ColInfo(ctx context.Context) (*storage.CollectionInfo, error) {
	n, err := c.Count(ctx, &storage.GetAllOptions{})
	if err != nil {
		return nil, err
	}
	return &storage.CollectionInfo{Name: c.collectionName, Count: n, Dimensions: c.dimensions}, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// CreateIndex creates a vector index (HNSW or IVFFlat).
func (c *Client) CreateIndex(ctx context.Context, config *storage.VectorIndexConfig) error {
	switch config.IndexType {
	case storage.IndexTypeHNSW:
		query := fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s ON %s
			USING hnsw (%s vector_cosine_ops)
			WITH (m = %d, ef_construction = %d)
		`, config.IndexName, config.TableName, config.VectorField,
			config.HNSWParams.M, config.HNSWParams.EfConstruction)
		_, err := c.db.ExecContext(ctx, query)
		return err
	case storage.IndexTypeIVFFlat:
		query := fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s ON %s
			USING ivfflat (%s vector_cosine_ops)
			WITH (lists = %d)
		`, config.IndexName, config.TableName, config.VectorField, config.IVFParams.Nlist)
		_, err := c.db.ExecContext(ctx, query)
		return err
	default:
		return fmt.Errorf("unsupported index type: %s", config.IndexType)
	}
}

// vectorToString converts a vector to PostgreSQL vector format.
func vectorToString(vector []float64) string {
	if len(vector) == 0 {
		return "[]"
	}
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = fmt.Sprintf("%f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (c *Client) scanMemory(row *sql.Row) (*storage.Memory, error) {
	var memory storage.Memory
	var embeddingStr string
	var metadataStr []byte
	var hash sql.NullString
	var lastAccessedAt sql.NullTime

	err := row.Scan(
		&memory.ID, &memory.UserID, &memory.AgentID, &memory.Content,
		&embeddingStr, &metadataStr, &hash,
		&memory.CreatedAt, &memory.UpdatedAt, &memory.RetentionStrength, &lastAccessedAt,
	)
	if err != nil {
		return nil, err
	}
	return finishScan(&memory, embeddingStr, metadataStr, hash, lastAccessedAt)
}

func (c *Client) scanMemories(rows *sql.Rows, hasScore bool) ([]*storage.Memory, error) {
	var memories []*storage.Memory

	for rows.Next() {
		var memory storage.Memory
		var embeddingStr string
		var metadataStr []byte
		var hash sql.NullString
		var lastAccessedAt sql.NullTime
		var similarity float64

		var err error
		if hasScore {
			err = rows.Scan(
				&memory.ID, &memory.UserID, &memory.AgentID, &memory.Content,
				&embeddingStr, &metadataStr, &hash,
				&memory.CreatedAt, &memory.UpdatedAt, &memory.RetentionStrength, &lastAccessedAt,
				&similarity,
			)
		} else {
			err = rows.Scan(
				&memory.ID, &memory.UserID, &memory.AgentID, &memory.Content,
				&embeddingStr, &metadataStr, &hash,
				&memory.CreatedAt, &memory.UpdatedAt, &memory.RetentionStrength, &lastAccessedAt,
			)
		}
		if err != nil {
			return nil, err
		}
		if hasScore {
			memory.Score = similarity
		}

		m, err := finishScan(&memory, embeddingStr, metadataStr, hash, lastAccessedAt)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return memories, nil
}

func finishScan(memory *storage.Memory, embeddingStr string, metadataStr []byte, hash sql.NullString, lastAccessedAt sql.NullTime) (*storage.Memory, error) {
	embedding, err := parseVectorString(embeddingStr)
	if err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}
	memory.Embedding = embedding

	if len(metadataStr) > 0 {
		if err := json.Unmarshal(metadataStr, &memory.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	if hash.Valid {
		memory.Hash = hash.String
	}
	if lastAccessedAt.Valid {
		memory.LastAccessedAt = &lastAccessedAt.Time
	}

	return memory, nil
}

func parseVectorString(s string) ([]float64, error) {
	s = strings.Trim(s, "[]")
	if s == "" {
		return []float64{}, nil
	}

	parts := strings.Split(s, ",")
	result := make([]float64, len(parts))

	for i, part := range parts {
		var val float64
		_, err := fmt.Sscanf(strings.TrimSpace(part), "%f", &val)
		if err != nil {
			return nil, err
		}
		result[i] = val
	}

	return result, nil
}
