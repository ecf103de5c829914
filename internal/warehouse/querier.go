// Package warehouse executes validated read queries against the analytic
// database and exposes its schema as prompt context. It never receives SQL
// that has not passed the safety validator.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/tursodatabase/go-libsql"
)

// Querier runs one read query and returns ordered row-maps.
type Querier interface {
	Query(ctx context.Context, sqlText string) ([]map[string]any, error)
}

// DB is a libSQL-backed Querier with a per-query timeout.
type DB struct {
	db           *sql.DB
	queryTimeout time.Duration
	logger       *slog.Logger
}

// Open opens a libSQL database at the given path. The path should be a file
// URI, e.g. "file:/path/to/warehouse.db".
func Open(dbPath string, queryTimeout time.Duration, logger *slog.Logger) (*DB, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	// PRAGMAs are per-connection; a single pooled connection keeps query_only
	// in force for every query.
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA query_only=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &DB{db: db, queryTimeout: queryTimeout, logger: logger}, nil
}

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// Query executes sqlText under the per-query timeout and materializes the
// result set as ordered row-maps. Byte columns come back as strings.
func (d *DB) Query(ctx context.Context, sqlText string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := d.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	d.logger.DebugContext(ctx, "query executed", "rows", len(results), "duration", time.Since(start))
	return results, nil
}
