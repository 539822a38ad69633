package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type QueryOptions struct {
	MaxRows int
	Timeout time.Duration
}

type QueryResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// Query runs a statement that has already passed sqlguard validation. It is
// executed inside a read-only transaction with a statement timeout and
// wrapped so that at most opts.MaxRows rows come back.
func (s *ArticlePostgresStorage) Query(ctx context.Context, query string, opts QueryOptions) (*QueryResult, error) {
	if opts.MaxRows <= 0 {
		opts.MaxRows = 50
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if opts.Timeout > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", opts.Timeout.Milliseconds())); err != nil {
			return nil, fmt.Errorf("set statement timeout: %w", err)
		}
	}

	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", trimStatement(query), opts.MaxRows)

	rows, err := tx.QueryxContext(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := &QueryResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		row := make(map[string]any, len(columns))
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, nil
}

func trimStatement(query string) string {
	return strings.TrimSuffix(strings.TrimSpace(query), ";")
}
