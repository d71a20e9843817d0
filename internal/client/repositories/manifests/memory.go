package manifests

import (
	"context"
	"slices"
	"sync"

	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/common"
)

// InMemoryRepository is a Repository without persistence.
type InMemoryRepository struct {
	mu         sync.Mutex
	user       *models.LocalUserManifest
	workspaces map[models.EntryID]models.LocalWorkspaceManifest
}

var _ Repository = (*InMemoryRepository)(nil)

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{workspaces: make(map[models.EntryID]models.LocalWorkspaceManifest)}
}

func (r *InMemoryRepository) GetUserManifest(ctx context.Context) (models.LocalUserManifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.user == nil {
		return models.LocalUserManifest{}, common.ErrorNotFound
	}
	m := *r.user
	m.Workspaces = slices.Clone(m.Workspaces)
	return m, nil
}

func (r *InMemoryRepository) SetUserManifest(ctx context.Context, m models.LocalUserManifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.Workspaces = slices.Clone(m.Workspaces)
	r.user = &m
	return nil
}

func (r *InMemoryRepository) GetWorkspaceManifest(ctx context.Context, id models.EntryID) (models.LocalWorkspaceManifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.workspaces[id]
	if !ok {
		return models.LocalWorkspaceManifest{}, common.ErrorNotFound
	}
	return m, nil
}

func (r *InMemoryRepository) SetWorkspaceManifest(ctx context.Context, m models.LocalWorkspaceManifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workspaces[m.ID] = m
	return nil
}

func (r *InMemoryRepository) CreateWorkspace(ctx context.Context, um models.LocalUserManifest, wm models.LocalWorkspaceManifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workspaces[wm.ID] = wm
	um.Workspaces = slices.Clone(um.Workspaces)
	r.user = &um
	return nil
}
