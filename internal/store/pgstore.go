package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/katakuxiko/docchat/internal/model"
	_ "github.com/lib/pq"
)

// PgStore keeps indexes in a pgvector table. Each Build writes its rows
// under a fresh index id in one transaction; Close deletes them.
type PgStore struct {
	db *sql.DB
}

func NewPgStore(ctx context.Context, conn string) (*PgStore, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PgStore{db: db}, nil
}

// NewPgStoreWithDB wraps an open handle whose schema is already in place.
func NewPgStoreWithDB(db *sql.DB) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Name() string { return "pgvector" }

func (s *PgStore) DB() *sql.DB { return s.db }

func (s *PgStore) Close() error { return s.db.Close() }

func (s *PgStore) Build(ctx context.Context, dimension int, entries []Entry) (Searcher, error) {
	for _, e := range entries {
		if len(e.Vector) != dimension {
			return nil, &model.EmbeddingDimensionError{Position: e.Chunk.Position, Want: dimension, Got: len(e.Vector)}
		}
	}

	id := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (index_id, position, start_offset, end_offset, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6::vector)
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		c := e.Chunk
		if _, err := stmt.ExecContext(ctx, id, c.Position, c.Start, c.End, c.Content, floatsToPgVectorLiteral(e.Vector)); err != nil {
			return nil, fmt.Errorf("insert chunk %d: %w", c.Position, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &PgIndex{db: s.db, id: id, dimension: dimension, size: len(entries)}, nil
}

// PgIndex is one built index inside a PgStore.
type PgIndex struct {
	db        *sql.DB
	id        string
	dimension int
	size      int
}

func (p *PgIndex) ID() string { return p.id }

func (p *PgIndex) Len() int { return p.size }

func (p *PgIndex) Search(ctx context.Context, query []float32, k int) ([]model.ScoredChunk, error) {
	if len(query) != p.dimension {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(query), p.dimension)
	}
	if k <= 0 {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT position, start_offset, end_offset, content, 1 - (embedding <=> $1::vector) AS score
		FROM chunks
		WHERE index_id = $2
		ORDER BY embedding <=> $1::vector, position
		LIMIT $3
	`, floatsToPgVectorLiteral(query), p.id, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var res []model.ScoredChunk
	for rows.Next() {
		var h model.ScoredChunk
		if err := rows.Scan(&h.Position, &h.Start, &h.End, &h.Content, &h.Score); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (p *PgIndex) Close(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM chunks WHERE index_id = $1`, p.id)
	return err
}

func floatsToPgVectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, f := range v {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteString("]")
	return sb.String()
}
