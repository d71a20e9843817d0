package usercache

import (
	"context"
	"errors"
	"fmt"

	"github.com/gurjot03/parsec-cloud/internal/common"
	"github.com/gurjot03/parsec-cloud/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns (nil, nil) when key is absent.
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := dbx.GetBlob(ctx, r.db, "remote_users", "key", "value", key)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get remote user[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	if err := dbx.PutBlob(ctx, r.db, "remote_users", "key", "value", key, value); err != nil {
		return fmt.Errorf("failed to set remote user[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM remote_users WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete remote user[%s]: %w", key, err)
	}
	return nil
}
