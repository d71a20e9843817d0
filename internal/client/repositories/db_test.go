package repositories

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tables(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestInitDatabase_CreatesSchema(t *testing.T) {
	db, err := InitDatabase(context.Background(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	defer db.Close()

	got := tables(t, db)
	for _, want := range []string{"goose_db_version", "remote_users", "user_manifest", "workspace_manifests"} {
		assert.Contains(t, got, want)
	}
}

func TestInitDatabase_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")

	db, err := InitDatabase(ctx, path)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO remote_users (key, value) VALUES ('k', x'01')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitDatabase(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM remote_users`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestInitDatabase_BadPath(t *testing.T) {
	_, err := InitDatabase(context.Background(), filepath.Join(t.TempDir(), "missing", "local.db"))
	require.Error(t, err)
}
