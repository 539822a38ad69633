package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/0x0BSoD/cryptonews/internal/model"
)

// ErrSourceNotFound is returned when no source has the requested id.
var ErrSourceNotFound = errors.New("source not found")

type SourcePostgresStorage struct {
	db *sqlx.DB
}

func NewSourceStorage(db *sqlx.DB) *SourcePostgresStorage {
	return &SourcePostgresStorage{db: db}
}

func (s *SourcePostgresStorage) Sources(ctx context.Context) ([]model.Source, error) {
	var sources []model.Source
	err := s.db.SelectContext(ctx, &sources, `
		SELECT id, name, feed_url, site_url, insecure, created_at
		FROM sources
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("select sources: %w", err)
	}
	return sources, nil
}

func (s *SourcePostgresStorage) SourceByID(ctx context.Context, id int64) (*model.Source, error) {
	var source model.Source
	err := s.db.GetContext(ctx, &source, `
		SELECT id, name, feed_url, site_url, insecure, created_at
		FROM sources
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select source %d: %w", id, err)
	}
	return &source, nil
}

func (s *SourcePostgresStorage) Add(ctx context.Context, source model.Source) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `
		INSERT INTO sources (name, feed_url, site_url, insecure)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, source.Name, source.FeedURL, source.SiteURL, source.Insecure)
	if err != nil {
		return 0, fmt.Errorf("insert source: %w", err)
	}
	return id, nil
}

func (s *SourcePostgresStorage) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSourceNotFound
	}
	return nil
}
