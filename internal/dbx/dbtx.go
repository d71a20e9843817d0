// Package dbx holds the small database/sql helpers shared by the local
// repositories. Every table they touch maps a text key to one opaque blob.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gurjot03/parsec-cloud/internal/common"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction. It commits when fn returns nil and
// rolls back otherwise; a panic in fn rolls back and is re-raised.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetBlob reads the blob stored under key. A missing row is reported as
// common.ErrorNotFound.
func GetBlob(ctx context.Context, q DBTX, table, keyColumn, valueColumn, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`, valueColumn, table, keyColumn)

	var value []byte
	err := q.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// PutBlob inserts or replaces the blob stored under key.
func PutBlob(ctx context.Context, q DBTX, table, keyColumn, valueColumn, key string, value []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, %[3]s) VALUES (?, ?)
		ON CONFLICT(%[2]s) DO UPDATE SET %[3]s = excluded.%[3]s
	`, table, keyColumn, valueColumn)

	_, err := q.ExecContext(ctx, query, key, value)
	return err
}
