package manifests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/cryptox"
	"github.com/gurjot03/parsec-cloud/internal/dbx"
)

// SQLiteRepository keeps manifests as rows encrypted with the device local
// key.
type SQLiteRepository struct {
	db             *sql.DB
	key            cryptox.SecretKey
	userManifestID models.EntryID
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(db *sql.DB, userManifestID models.EntryID, key cryptox.SecretKey) *SQLiteRepository {
	return &SQLiteRepository{db: db, key: key, userManifestID: userManifestID}
}

func (r *SQLiteRepository) GetUserManifest(ctx context.Context) (models.LocalUserManifest, error) {
	var m models.LocalUserManifest
	if err := r.get(ctx, "user_manifest", string(r.userManifestID), &m); err != nil {
		return models.LocalUserManifest{}, fmt.Errorf("failed to get user manifest: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepository) SetUserManifest(ctx context.Context, m models.LocalUserManifest) error {
	if err := r.putUserManifest(ctx, r.db, m); err != nil {
		return fmt.Errorf("failed to set user manifest: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetWorkspaceManifest(ctx context.Context, id models.EntryID) (models.LocalWorkspaceManifest, error) {
	var m models.LocalWorkspaceManifest
	if err := r.get(ctx, "workspace_manifests", string(id), &m); err != nil {
		return models.LocalWorkspaceManifest{}, fmt.Errorf("failed to get workspace manifest[%s]: %w", id, err)
	}
	return m, nil
}

func (r *SQLiteRepository) SetWorkspaceManifest(ctx context.Context, m models.LocalWorkspaceManifest) error {
	if err := r.putWorkspaceManifest(ctx, r.db, m); err != nil {
		return fmt.Errorf("failed to set workspace manifest[%s]: %w", m.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) CreateWorkspace(ctx context.Context, um models.LocalUserManifest, wm models.LocalWorkspaceManifest) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := r.putWorkspaceManifest(ctx, tx, wm); err != nil {
			return err
		}
		return r.putUserManifest(ctx, tx, um)
	})
	if err != nil {
		return fmt.Errorf("failed to create workspace[%s]: %w", wm.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) get(ctx context.Context, table string, id string, v any) error {
	data, err := dbx.GetBlob(ctx, r.db, table, "id", "data", id)
	if err != nil {
		return err
	}
	return cryptox.DecryptJSON(data, r.key, v)
}

func (r *SQLiteRepository) put(ctx context.Context, q dbx.DBTX, table string, id string, v any) error {
	data, err := cryptox.EncryptJSON(v, r.key)
	if err != nil {
		return err
	}
	return dbx.PutBlob(ctx, q, table, "id", "data", id, data)
}

func (r *SQLiteRepository) putUserManifest(ctx context.Context, q dbx.DBTX, m models.LocalUserManifest) error {
	return r.put(ctx, q, "user_manifest", string(m.ID), m)
}

func (r *SQLiteRepository) putWorkspaceManifest(ctx context.Context, q dbx.DBTX, m models.LocalWorkspaceManifest) error {
	return r.put(ctx, q, "workspace_manifests", string(m.ID), m)
}
