package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
)

// ChunkRepository persists the chunk corpus per index generation. It keeps
// exactly one generation: replacing it is transactional, so readers either
// see the old corpus or the new one, never a mix.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/indexer startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS index_generations (
	generation TEXT PRIMARY KEY,
	chunk_count INTEGER NOT NULL,
	report JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	generation TEXT NOT NULL REFERENCES index_generations(generation) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	chunk_id TEXT NOT NULL,
	doc_id TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	location TEXT NOT NULL,
	source_path TEXT NOT NULL,
	start_char INTEGER NOT NULL,
	end_char INTEGER NOT NULL,
	file_type TEXT NOT NULL,
	PRIMARY KEY (generation, chunk_id)
);

CREATE INDEX IF NOT EXISTS idx_chunks_generation_position ON chunks(generation, position);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ReplaceGeneration(ctx context.Context, generation string, chunks []domain.Chunk, report domain.IngestReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_generations WHERE generation <> $1`, generation); err != nil {
		return fmt.Errorf("drop previous generations: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO index_generations (generation, chunk_count, report, created_at)
VALUES ($1, $2, $3, $4)
`, generation, len(chunks), reportJSON, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}

	for i, c := range chunks {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO chunks (
	generation, position, chunk_id, doc_id, title, content, location, source_path, start_char, end_char, file_type
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
			generation, i, c.ChunkID, c.DocID, c.Title, c.Content, c.Location, c.SourcePath, c.StartChar, c.EndChar, c.FileType,
		); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ActiveGeneration(ctx context.Context) (string, int, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT generation, chunk_count
FROM index_generations
ORDER BY created_at DESC
LIMIT 1
`)

	var generation string
	var count int
	if err := row.Scan(&generation, &count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("scan active generation: %w", err)
	}
	return generation, count, nil
}

func (r *ChunkRepository) LoadChunks(ctx context.Context, generation string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT chunk_id, doc_id, title, content, location, source_path, start_char, end_char, file_type
FROM chunks
WHERE generation = $1
ORDER BY position
`, generation)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(
			&c.ChunkID, &c.DocID, &c.Title, &c.Content, &c.Location,
			&c.SourcePath, &c.StartChar, &c.EndChar, &c.FileType,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (r *ChunkRepository) LastReport(ctx context.Context) (*domain.IngestReport, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT report
FROM index_generations
ORDER BY created_at DESC
LIMIT 1
`)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}

	var report domain.IngestReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}
