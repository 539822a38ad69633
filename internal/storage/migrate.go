package storage

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id VARCHAR(255) PRIMARY KEY,
		slug VARCHAR(255),
		title TEXT,
		content TEXT,
		clean_content TEXT,
		publishedat TIMESTAMP WITH TIME ZONE,
		authorname VARCHAR(255),
		category VARCHAR(255),
		sourcename VARCHAR(255),
		sourceurl VARCHAR(255),
		imageurl TEXT,
		articleurl TEXT,
		tags TEXT[],
		createdat TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		updatedat TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT articles_unique_slug_source UNIQUE (slug, sourcename),
		CONSTRAINT articles_unique_title_source UNIQUE (title, sourcename)
	)`,
	`CREATE INDEX IF NOT EXISTS articles_publishedat_idx ON articles (publishedat DESC)`,
	`CREATE TABLE IF NOT EXISTS sources (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		feed_url TEXT NOT NULL UNIQUE,
		site_url TEXT NOT NULL DEFAULT '',
		insecure BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Migrate creates the tables if they do not exist. The embeddings column is
// only added when the vector extension can be enabled; without it semantic
// search reports ErrVectorUnsupported.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		log.Printf("[WARN] pgvector is unavailable, semantic search disabled: %v", err)
		return nil
	}

	if _, err := db.ExecContext(ctx, `ALTER TABLE articles ADD COLUMN IF NOT EXISTS embeddings VECTOR(1536)`); err != nil {
		return fmt.Errorf("migrate embeddings column: %w", err)
	}

	return nil
}
