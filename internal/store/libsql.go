package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/reportpipe/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows, so QueryRow is used for all of them.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, run *Run) error {
	profile, err := marshalMapOrDefault(run.UserProfile)
	if err != nil {
		return fmt.Errorf("marshal user_profile: %w", err)
	}
	errorsJSON, err := marshalSliceOrNil(run.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, query, user_profile, status, stage, sql_query, chart_type, score, approved, iteration, max_iterations, document, errors, created_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Query, string(profile), string(run.Status), string(run.Stage),
		nullStr(run.SQLQuery), nullStr(run.ChartType), run.Score, boolInt(run.Approved),
		run.Iteration, run.MaxIterations, nullBytes(run.Document), errorsJSON,
		timeOrNow(run.CreatedAt), nullTime(run.CompletedAt), timeOrNow(run.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, user_profile, status, stage, sql_query, chart_type, score, approved, iteration, max_iterations, document, errors, created_at, completed_at, updated_at
		 FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	return run, err
}

func (s *LibSQLStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Stage != nil {
		sets = append(sets, "stage = ?")
		args = append(args, string(*update.Stage))
	}
	if update.SQLQuery != nil {
		sets = append(sets, "sql_query = ?")
		args = append(args, *update.SQLQuery)
	}
	if update.ChartType != nil {
		sets = append(sets, "chart_type = ?")
		args = append(args, *update.ChartType)
	}
	if update.Score != nil {
		sets = append(sets, "score = ?")
		args = append(args, *update.Score)
	}
	if update.Approved != nil {
		sets = append(sets, "approved = ?")
		args = append(args, boolInt(*update.Approved))
	}
	if update.Iteration != nil {
		sets = append(sets, "iteration = ?")
		args = append(args, *update.Iteration)
	}
	if update.Document != nil {
		sets = append(sets, "document = ?")
		args = append(args, update.Document)
	}
	if update.Errors != nil {
		errorsJSON, err := marshalSliceOrNil(update.Errors)
		if err != nil {
			return fmt.Errorf("marshal errors: %w", err)
		}
		sets = append(sets, "errors = ?")
		args = append(args, errorsJSON)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE runs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var where []string
	var args []any

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, query, user_profile, status, stage, sql_query, chart_type, score, approved, iteration, max_iterations, document, errors, created_at, completed_at, updated_at FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *LibSQLStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var (
		profileJSON           sql.NullString
		sqlQuery, chartType   sql.NullString
		errorsJSON            sql.NullString
		approved              int
		document              []byte
		status, stage         string
		completedAt           sql.NullTime
	)
	err := row.Scan(&run.ID, &run.Query, &profileJSON, &status, &stage,
		&sqlQuery, &chartType, &run.Score, &approved, &run.Iteration, &run.MaxIterations,
		&document, &errorsJSON, &run.CreatedAt, &completedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	run.Status = schema.RunStatus(status)
	run.Stage = schema.Stage(stage)
	run.SQLQuery = sqlQuery.String
	run.ChartType = chartType.String
	run.Approved = approved != 0
	run.Document = document
	if profileJSON.Valid && profileJSON.String != "" {
		_ = json.Unmarshal([]byte(profileJSON.String), &run.UserProfile)
	}
	if errorsJSON.Valid && errorsJSON.String != "" {
		_ = json.Unmarshal([]byte(errorsJSON.String), &run.Errors)
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// --- Events ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE run_id = ?`, event.RunID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (run_id, stage, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.RunID, nullStr(event.Stage), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, stage, event_type, payload, timestamp, sequence
		 FROM events WHERE run_id = ? AND sequence > ? ORDER BY sequence ASC`,
		runID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	var where []string
	var args []any

	where = append(where, "event_type = ?")
	args = append(args, eventType)

	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Stage != "" {
		where = append(where, "stage = ?")
		args = append(args, filter.Stage)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, run_id, stage, event_type, payload, timestamp, sequence FROM events`
	query += " WHERE " + strings.Join(where, " AND ")
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var stage, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &stage, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Stage = stage.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.PipeError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func marshalMapOrDefault(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}

func marshalSliceOrNil(s []string) (any, error) {
	if len(s) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
