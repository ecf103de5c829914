package warehouse

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openSeeded creates a warehouse file with a small sales table and opens it
// through Open, so tests exercise the real read-only connection setup.
func openSeeded(t *testing.T) *DB {
	t.Helper()
	path := "file:" + filepath.Join(t.TempDir(), "warehouse.db")

	raw, err := sql.Open("libsql", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE sales (region TEXT, amount REAL)`)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO sales VALUES ('north', 5.0), ('south', 3.5)`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	d, err := Open(path, 5*time.Second, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestQueryReturnsRowMaps(t *testing.T) {
	d := openSeeded(t)

	rows, err := d.Query(context.Background(), "SELECT region, amount FROM sales ORDER BY region")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "north", rows[0]["region"])
	assert.Equal(t, 5.0, rows[0]["amount"])
}

func TestQueryEmptyResult(t *testing.T) {
	d := openSeeded(t)

	rows, err := d.Query(context.Background(), "SELECT region FROM sales WHERE amount > 100")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOpenRejectsWrites(t *testing.T) {
	d := openSeeded(t)

	_, err := d.Query(context.Background(), "INSERT INTO sales VALUES ('east', 1.0)")
	require.Error(t, err)

	// The table is untouched.
	rows, err := d.Query(context.Background(), "SELECT COUNT(*) AS n FROM sales")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 2, rows[0]["n"])
}

func TestOpenPinsSingleConnection(t *testing.T) {
	d := openSeeded(t)

	// query_only is a per-connection PRAGMA; a pool wider than one connection
	// would let fresh connections bypass it.
	assert.Equal(t, 1, d.db.Stats().MaxOpenConnections)

	// The read-only setting survives a burst of sequential queries, which
	// would surface any connection churn.
	for range 10 {
		_, err := d.Query(context.Background(), "SELECT region FROM sales LIMIT 1")
		require.NoError(t, err)
	}
	_, err := d.Query(context.Background(), "DELETE FROM sales")
	require.Error(t, err)
}
