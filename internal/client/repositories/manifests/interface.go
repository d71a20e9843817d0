// Package manifests stores the local user manifest and the local workspace
// manifests. Both getters return common.ErrorNotFound when nothing has been
// stored yet.
package manifests

import (
	"context"

	"github.com/gurjot03/parsec-cloud/internal/client/models"
)

type Repository interface {
	GetUserManifest(ctx context.Context) (models.LocalUserManifest, error)
	SetUserManifest(ctx context.Context, m models.LocalUserManifest) error
	GetWorkspaceManifest(ctx context.Context, id models.EntryID) (models.LocalWorkspaceManifest, error)
	SetWorkspaceManifest(ctx context.Context, m models.LocalWorkspaceManifest) error
	// CreateWorkspace stores a new workspace manifest and the user manifest
	// referencing it in one step.
	CreateWorkspace(ctx context.Context, um models.LocalUserManifest, wm models.LocalWorkspaceManifest) error
}
