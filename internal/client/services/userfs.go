// Package services implements the user-level sync engine: reconciliation of
// the user manifest with the backend, processing of the mailbox, workspace
// sharing and realm reencryption.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/client/client"
	"github.com/gurjot03/parsec-cloud/internal/client/device"
	"github.com/gurjot03/parsec-cloud/internal/client/messages"
	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/client/repositories/manifests"
	"github.com/gurjot03/parsec-cloud/internal/client/trust"
	"github.com/gurjot03/parsec-cloud/internal/common"
	"github.com/gurjot03/parsec-cloud/internal/logging"
)

const DefaultReencryptionBatchSize = 100

// ctxLock is a mutex whose acquisition can be abandoned through a context.
type ctxLock chan struct{}

func newCtxLock() ctxLock { return make(ctxLock, 1) }

func (l ctxLock) Lock(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l ctxLock) Unlock() { <-l }

// Resolver adds a cache-bypassing lookup to messages.Resolver. It is used
// wherever a stale revocation status would send a key to a revoked user or
// desync us from the backend's view of a realm.
type Resolver interface {
	messages.Resolver
	RefreshUser(ctx context.Context, userID models.UserID) (trust.RemoteUser, error)
}

// UserFS owns the local user manifest of one device.
//
// updateLock guards every read-modify-write of the manifest; processLock
// serializes mailbox processing. When both are needed, processLock is
// taken first.
type UserFS struct {
	device   *device.LocalDevice
	backend  client.Backend
	store    manifests.Repository
	resolver Resolver
	protocol *messages.Protocol

	logger    logging.Logger
	observer  Observer
	now       func() time.Time
	batchSize int

	updateLock  ctxLock
	processLock ctxLock
}

type Option func(*UserFS)

func WithClock(now func() time.Time) Option {
	return func(u *UserFS) { u.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(u *UserFS) { u.logger = l }
}

func WithObserver(o Observer) Option {
	return func(u *UserFS) { u.observer = o }
}

// WithBatchSize sets the default reencryption batch size.
func WithBatchSize(n int) Option {
	return func(u *UserFS) {
		if n > 0 {
			u.batchSize = n
		}
	}
}

func NewUserFS(d *device.LocalDevice, backend client.Backend, store manifests.Repository, resolver Resolver, opts ...Option) *UserFS {
	u := &UserFS{
		device:      d,
		backend:     backend,
		store:       store,
		resolver:    resolver,
		protocol:    messages.NewProtocol(d, resolver),
		logger:      logging.Discard(),
		observer:    NopObserver{},
		now:         time.Now,
		batchSize:   DefaultReencryptionBatchSize,
		updateLock:  newCtxLock(),
		processLock: newCtxLock(),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = u.logger.With("device", d.DeviceID)
	return u
}

func (u *UserFS) DeviceID() models.DeviceID {
	return u.device.DeviceID
}

// GetUserManifest returns the local manifest, or a placeholder when
// nothing has been stored yet.
func (u *UserFS) GetUserManifest(ctx context.Context) (models.LocalUserManifest, error) {
	m, err := u.store.GetUserManifest(ctx)
	if errors.Is(err, common.ErrorNotFound) {
		return models.NewPlaceholderUserManifest(u.device.UserManifestID, u.now()), nil
	}
	if err != nil {
		return models.LocalUserManifest{}, &common.Error{Op: "userfs.GetUserManifest", Kind: common.ErrSync, Err: err}
	}
	return m, nil
}

func (u *UserFS) GetWorkspaceEntry(ctx context.Context, id models.EntryID) (models.WorkspaceEntry, error) {
	m, err := u.GetUserManifest(ctx)
	if err != nil {
		return models.WorkspaceEntry{}, err
	}
	e, ok := m.WorkspaceEntry(id)
	if !ok {
		return models.WorkspaceEntry{}, &common.Error{Op: "userfs.GetWorkspaceEntry", Workspace: string(id), Kind: common.ErrWorkspaceNotFound}
	}
	return e, nil
}

// WorkspaceCreate adds a workspace that exists only locally until the next
// outbound sync.
func (u *UserFS) WorkspaceCreate(ctx context.Context, name string) (models.EntryID, error) {
	const op = "userfs.WorkspaceCreate"
	if name == "" {
		return "", &common.Error{Op: op, Kind: common.ErrInvalidInput, Err: errors.New("empty workspace name")}
	}

	if err := u.updateLock.Lock(ctx); err != nil {
		return "", err
	}
	defer u.updateLock.Unlock()

	local, err := u.GetUserManifest(ctx)
	if err != nil {
		return "", err
	}

	now := u.now()
	entry := models.NewWorkspaceEntry(name, now)
	updated := local.EvolveWorkspacesAndMarkUpdated(now, entry)
	if err := u.store.CreateWorkspace(ctx, updated, models.NewPlaceholderWorkspaceManifest(entry.ID, now)); err != nil {
		return "", &common.Error{Op: op, Workspace: string(entry.ID), Kind: common.ErrSync, Err: err}
	}

	u.logger.Info(ctx, "workspace created", "workspace", entry.ID, "name", name)
	u.observer.Notify(Event{Type: EventWorkspaceCreated, ID: entry.ID, NewEntry: &entry})
	u.observer.Notify(Event{Type: EventManifestUpdated, ID: updated.ID})
	return entry.ID, nil
}

func (u *UserFS) WorkspaceRename(ctx context.Context, id models.EntryID, name string) error {
	const op = "userfs.WorkspaceRename"
	if name == "" {
		return &common.Error{Op: op, Workspace: string(id), Kind: common.ErrInvalidInput, Err: errors.New("empty workspace name")}
	}

	if err := u.updateLock.Lock(ctx); err != nil {
		return err
	}
	defer u.updateLock.Unlock()

	local, err := u.GetUserManifest(ctx)
	if err != nil {
		return err
	}
	entry, ok := local.WorkspaceEntry(id)
	if !ok {
		return &common.Error{Op: op, Workspace: string(id), Kind: common.ErrWorkspaceNotFound}
	}
	if entry.Name == name {
		return nil
	}

	updated := local.EvolveWorkspacesAndMarkUpdated(u.now(), entry.WithName(name))
	if err := u.store.SetUserManifest(ctx, updated); err != nil {
		return &common.Error{Op: op, Workspace: string(id), Kind: common.ErrSync, Err: err}
	}
	u.observer.Notify(Event{Type: EventManifestUpdated, ID: updated.ID})
	return nil
}

// backendError classifies a transport error for the engine's callers.
func backendError(op string, workspace models.EntryID, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var ce *common.Error
	if errors.As(err, &ce) {
		return &common.Error{Op: op, Workspace: string(workspace), Kind: ce.Kind, Err: err}
	}

	kind := common.ErrSync
	switch {
	case errors.Is(err, client.ErrUnavailable):
		kind = common.ErrBackendOffline
	case errors.Is(err, client.ErrInMaintenance):
		kind = common.ErrWorkspaceInMaintenance
	case errors.Is(err, client.ErrNotInMaintenance):
		kind = common.ErrWorkspaceNotInMaintenance
	case errors.Is(err, client.ErrNotAllowed):
		kind = common.ErrWorkspaceNoAccess
	}
	return &common.Error{Op: op, Workspace: string(workspace), Kind: kind, Err: err}
}

func isOffline(err error) bool {
	return errors.Is(err, common.ErrBackendOffline) || errors.Is(err, client.ErrUnavailable)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
