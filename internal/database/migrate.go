package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

const listingsSchema = `
CREATE TABLE IF NOT EXISTS listings (
	id               UUID PRIMARY KEY,
	source           TEXT NOT NULL,
	external_id      TEXT NOT NULL DEFAULT '',
	external_url     TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	price_amount     DOUBLE PRECISION,
	price_currency   TEXT,
	price_uah        BIGINT,
	price_usd        BIGINT,
	price_eur        BIGINT,
	area             DOUBLE PRECISION,
	rooms            INTEGER,
	floor            INTEGER,
	floors           INTEGER,
	location         TEXT,
	images           TEXT[] NOT NULL DEFAULT '{}',
	phone            TEXT,
	tags             TEXT[] NOT NULL DEFAULT '{}',
	property_type    TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'new',
	parsed_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	is_active        BOOLEAN NOT NULL DEFAULT TRUE,
	vector_embedding REAL[],
	created_at       TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_listings_source ON listings (source);
CREATE INDEX IF NOT EXISTS idx_listings_status ON listings (status);
`

// embeddingIndexDDL indexes the embedding column cast to a fixed-size vector.
// VectorSearch must use the same cast expression for the planner to pick it.
func embeddingIndexDDL(dims int) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_listings_embedding_hnsw_%[1]d
	ON listings USING hnsw ((vector_embedding::vector(%[1]d)) vector_cosine_ops)`, dims)
}

// Migrate creates the listings table. The pgvector extension is optional;
// without it vector searches fall back to a full scan. With it, an HNSW
// index over dims-sized embeddings is created.
func (db *DB) Migrate(ctx context.Context, dims int, logger *slog.Logger) error {
	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, listingsSchema); err != nil {
			return fmt.Errorf("failed to create listings schema: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := db.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		logger.Warn("pgvector extension unavailable, vector search will scan", "error", err)
		return nil
	}
	if dims <= 0 {
		return nil
	}
	if _, err := db.pool.Exec(ctx, embeddingIndexDDL(dims)); err != nil {
		// Older pgvector releases lack hnsw; stored rows of another size fail the cast.
		logger.Warn("failed to create embedding index, vector search will not use it", "dims", dims, "error", err)
	}

	return nil
}
