package store

import (
	"context"
	"database/sql"
)

// ensureSchema создаёт расширение pgvector, таблицу чанков и индекс.
// Размерность колонки embedding не фиксирована: разные модели эмбеддингов
// делят одну таблицу, поиск точный.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id SERIAL PRIMARY KEY,
			index_id UUID NOT NULL,
			position INT NOT NULL,
			start_offset INT NOT NULL,
			end_offset INT NOT NULL,
			content TEXT NOT NULL,
			embedding vector NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS chunks_index_id_position_idx ON chunks (index_id, position)`,
	}

	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
