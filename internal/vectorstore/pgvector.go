package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/agentoven/ragjenkins/pkg/models"
)

// PgvectorStore implements VectorStoreDriver using PostgreSQL with the pgvector
// extension. The database is user provided (PGVECTOR_URL); every collection
// shares the rj_vectors table.
type PgvectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPgvectorStore creates a pgvector-backed vector store.
// It creates the required table and index if they don't exist.
func NewPgvectorStore(ctx context.Context, connURL string, dimensions int) (*PgvectorStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}

	s := &PgvectorStore{pool: pool, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}

	log.Info().Int("dims", dimensions).Msg("pgvector store initialized")
	return s, nil
}

func (s *PgvectorStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS rj_vectors (
			id         TEXT NOT NULL,
			collection TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			metadata   JSONB NOT NULL DEFAULT '{}',
			vector     vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		);

		CREATE INDEX IF NOT EXISTS idx_rj_vectors_collection ON rj_vectors (collection);
	`, s.dimensions)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PgvectorStore) Kind() string { return "pgvector" }

func (s *PgvectorStore) Upsert(ctx context.Context, collection string, docs []models.VectorDoc) error {
	if len(docs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO rj_vectors (id, collection, content, metadata, vector, created_at)
		VALUES `)

	args := make([]interface{}, 0, len(docs)*6)
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("pgvector: document without id")
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i*6 + 1
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d::vector, $%d)", base, base+1, base+2, base+3, base+4, base+5))
		now := d.CreatedAt
		if now.IsZero() {
			now = time.Now()
		}
		metadata := d.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		args = append(args, d.ID, collection, d.Content, metadata, pgvectorArray(d.Vector), now)
	}

	sb.WriteString(` ON CONFLICT (collection, id) DO UPDATE SET
		content = EXCLUDED.content,
		metadata = EXCLUDED.metadata,
		vector = EXCLUDED.vector`)

	_, err := s.pool.Exec(ctx, sb.String(), args...)
	return err
}

func (s *PgvectorStore) Search(ctx context.Context, collection string, vector []float64, topK int) ([]models.SearchResult, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, collection, content, metadata, created_at,
		1 - (vector <=> $1::vector) AS score
		FROM rj_vectors
		WHERE collection = $2
		ORDER BY vector <=> $1::vector, id
		LIMIT $3`, pgvectorArray(vector), collection, topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var doc models.VectorDoc
		var score float64
		if err := rows.Scan(&doc.ID, &doc.Collection, &doc.Content, &doc.Metadata, &doc.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		results = append(results, models.SearchResult{Doc: doc, Score: score})
	}
	return results, rows.Err()
}

func (s *PgvectorStore) Drop(ctx context.Context, collection string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM rj_vectors WHERE collection = $1", collection)
	return err
}

func (s *PgvectorStore) Count(ctx context.Context, collection string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM rj_vectors WHERE collection = $1", collection).Scan(&count)
	return count, err
}

func (s *PgvectorStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PgvectorStore) Close() {
	s.pool.Close()
}

// pgvectorArray converts a float64 slice to pgvector's text format: [1.0,2.0,3.0]
func pgvectorArray(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fmt.Sprintf("%g", f))
	}
	sb.WriteByte(']')
	return sb.String()
}
