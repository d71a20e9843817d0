package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/gurjot03/parsec-cloud/internal/common"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v BLOB NOT NULL);`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n))
	return n
}

func put(ctx context.Context, q DBTX, k string) error {
	return PutBlob(ctx, q, "kv", "k", "v", k, []byte(k))
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		return put(ctx, tx, "ok")
	})
	require.NoError(t, err)
	require.Equal(t, 1, countRows(t, db))
}

func TestWithTx_RollbackOnFnError(t *testing.T) {
	db := setupDB(t)
	boom := errors.New("boom")

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, put(ctx, tx, "fail"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, countRows(t, db))
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := setupDB(t)

	require.Panics(t, func() {
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
			require.NoError(t, put(ctx, tx, "panic"))
			panic("kaput")
		})
	})
	require.Equal(t, 0, countRows(t, db))
}

func TestWithTx_BeginError(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Close())

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		return nil
	})
	require.Error(t, err)
}

func TestWithTx_CommitError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	err = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error { return nil })
	require.EqualError(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBlobs(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	_, err := GetBlob(ctx, db, "kv", "k", "v", "a")
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, PutBlob(ctx, db, "kv", "k", "v", "a", []byte("1")))
	require.NoError(t, PutBlob(ctx, db, "kv", "k", "v", "a", []byte("2")))

	v, err := GetBlob(ctx, db, "kv", "k", "v", "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
	assert.Equal(t, 1, countRows(t, db))
}
