// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/memvault/core"
)

// PgVectorConfig configures the Postgres-backed index.
type PgVectorConfig struct {
	// ConnString is a pgx connection string or URL.
	ConnString string
	// TableName defaults to "memvault_chunks".
	TableName string
	// VectorDim is the embedding dimensionality, default 768.
	VectorDim int
}

// PgVectorIndex stores chunks in Postgres with the pgvector extension.
// Similarity ordering runs in the database; tag filters apply while
// streaming the ordered rows.
type PgVectorIndex struct {
	config PgVectorConfig
	pool   *pgxpool.Pool
}

var _ Index = (*PgVectorIndex)(nil)

// NewPgVectorIndex connects to Postgres, ensures the vector extension,
// the chunk table and its ivfflat index exist, and returns the index.
func NewPgVectorIndex(ctx context.Context, config PgVectorConfig) (*PgVectorIndex, error) {
	if config.TableName == "" {
		config.TableName = "memvault_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	idx := &PgVectorIndex{config: config, pool: pool}
	if err := idx.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PgVectorIndex) initialize(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			index_name  TEXT NOT NULL,
			chunk_id    BIGINT NOT NULL,
			document_id TEXT NOT NULL,
			file_id     TEXT NOT NULL,
			part        INTEGER NOT NULL,
			content     TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			tags        JSONB,
			PRIMARY KEY (index_name, chunk_id)
		)`, p.config.TableName, p.config.VectorDim)
	if _, err := p.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		p.config.TableName, p.config.TableName)
	if _, err := p.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func (p *PgVectorIndex) Upsert(ctx context.Context, index string, chunks []*core.Chunk) error {
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			return ErrMissingVector
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (index_name, chunk_id, document_id, file_id, part, content, embedding, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (index_name, chunk_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			file_id     = EXCLUDED.file_id,
			part        = EXCLUDED.part,
			content     = EXCLUDED.content,
			embedding   = EXCLUDED.embedding,
			tags        = EXCLUDED.tags`,
		p.config.TableName)

	for _, c := range chunks {
		tags, err := json.Marshal(c.Tags)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, stmt,
			index,
			int64(c.ID),
			c.DocumentID,
			c.FileID,
			c.Part,
			c.Text,
			pgvector.NewVector(c.Vector),
			tags,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *PgVectorIndex) DeleteByFilter(ctx context.Context, index string, filters []core.MemoryFilter) (int, error) {
	if len(filters) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`SELECT chunk_id, tags FROM %s WHERE index_name = $1`, p.config.TableName)
	rows, err := p.pool.Query(ctx, query, index)
	if err != nil {
		return 0, fmt.Errorf("failed to query chunks: %w", err)
	}

	var doomed []int64
	for rows.Next() {
		var id int64
		var tagsJSON []byte
		if err := rows.Scan(&id, &tagsJSON); err != nil {
			rows.Close()
			return 0, err
		}
		tags, err := decodeTags(tagsJSON)
		if err != nil {
			rows.Close()
			return 0, err
		}
		if core.MatchAnyFilter(filters, tags) {
			doomed = append(doomed, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	del := fmt.Sprintf(`DELETE FROM %s WHERE index_name = $1 AND chunk_id = ANY($2)`, p.config.TableName)
	tag, err := p.pool.Exec(ctx, del, index, doomed)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *PgVectorIndex) Search(ctx context.Context, index string, vector []float32, filters []core.MemoryFilter, minScore float32, limit int) ([]core.ScoredChunk, error) {
	if limit == 0 {
		return nil, nil
	}

	// Rows come back best first; stop reading once limit is filled.
	query := fmt.Sprintf(`
		SELECT chunk_id, document_id, file_id, part, content, embedding,
		       tags, 1 - (embedding <=> $2) AS score
		FROM %s
		WHERE index_name = $1
		ORDER BY embedding <=> $2`,
		p.config.TableName)

	rows, err := p.pool.Query(ctx, query, index, pgvector.NewVector(vector))
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []core.ScoredChunk
	for rows.Next() {
		var (
			id        int64
			c         core.Chunk
			embedding pgvector.Vector
			tagsJSON  []byte
			score     float32
		)
		err := rows.Scan(&id, &c.DocumentID, &c.FileID, &c.Part, &c.Text, &embedding, &tagsJSON, &score)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		// Cosine distance ordering is monotone in score, so the first
		// sub-threshold row ends the scan.
		if score < minScore {
			break
		}
		tags, err := decodeTags(tagsJSON)
		if err != nil {
			return nil, err
		}
		if !core.MatchAnyFilter(filters, tags) {
			continue
		}
		c.ID = core.ID(id)
		c.Vector = embedding.Slice()
		c.Tags = tags
		results = append(results, core.ScoredChunk{Chunk: &c, Score: score})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil && err != pgx.ErrNoRows {
		return nil, err
	}
	return results, nil
}

func (p *PgVectorIndex) ListIndexes(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT index_name FROM %s ORDER BY index_name`, p.config.TableName)
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (p *PgVectorIndex) DeleteIndex(ctx context.Context, index string) error {
	del := fmt.Sprintf(`DELETE FROM %s WHERE index_name = $1`, p.config.TableName)
	if _, err := p.pool.Exec(ctx, del, index); err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	return nil
}

func (p *PgVectorIndex) Close() error {
	p.pool.Close()
	return nil
}

func decodeTags(data []byte) (core.TagCollection, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var tags core.TagCollection
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("%w: bad tags: %v", ErrCorruptRecord, err)
	}
	return tags, nil
}
