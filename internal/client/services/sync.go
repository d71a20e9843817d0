package services

import (
	"context"
	"errors"

	"github.com/gurjot03/parsec-cloud/internal/client/client"
	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/common"
)

// The user manifest lives in a realm that is never reencrypted.
const userManifestEncryptionRevision = 1

var errNoRemoteManifest = errors.New("user manifest not published yet")

// Sync publishes local changes if there are any and otherwise pulls the
// remote user manifest.
func (u *UserFS) Sync(ctx context.Context) error {
	local, err := u.GetUserManifest(ctx)
	if err != nil {
		return err
	}
	if local.NeedSync {
		return u.outboundSync(ctx)
	}
	return u.inboundSync(ctx)
}

// fetchRemoteUserManifest reads and authenticates a version of the user
// manifest; version 0 means the latest.
func (u *UserFS) fetchRemoteUserManifest(ctx context.Context, version uint64) (models.UserManifest, error) {
	const op = "userfs.fetchRemoteUserManifest"
	id := u.device.UserManifestID

	res, err := u.backend.VlobRead(ctx, userManifestEncryptionRevision, id, version)
	if errors.Is(err, client.ErrNotFound) {
		return models.UserManifest{}, errNoRemoteManifest
	}
	if err != nil {
		return models.UserManifest{}, backendError(op, id, err)
	}

	signed, err := u.device.UserManifestKey.Decrypt(res.Blob)
	if err != nil {
		return models.UserManifest{}, &common.Error{Op: op, Workspace: string(id), Kind: common.ErrSync, Err: err}
	}

	author, err := u.resolver.ResolveDevice(ctx, res.Author)
	if err != nil {
		if isOffline(err) || isCanceled(err) {
			return models.UserManifest{}, backendError(op, id, err)
		}
		return models.UserManifest{}, &common.Error{Op: op, Workspace: string(id), Item: string(res.Author), Kind: common.ErrSync, Err: err}
	}

	m, err := models.VerifyUserManifest(signed, author.VerifyKey, models.ManifestExpectations{
		ID:        id,
		Author:    res.Author,
		Timestamp: res.Timestamp,
		Version:   res.Version,
	})
	if err != nil {
		return models.UserManifest{}, &common.Error{Op: op, Workspace: string(id), Item: string(res.Author), Kind: common.ErrSync, Err: err}
	}
	return m, nil
}

func (u *UserFS) inboundSync(ctx context.Context) error {
	local, err := u.GetUserManifest(ctx)
	if err != nil {
		return err
	}

	remote, err := u.fetchRemoteUserManifest(ctx, 0)
	if errors.Is(err, errNoRemoteManifest) {
		return nil
	}
	if err != nil {
		return err
	}
	if remote.Version <= local.BaseVersion {
		return nil
	}
	return u.mergeRemote(ctx, remote)
}

// mergeRemote folds remote into the local manifest. A concurrent merge
// that already reached remote's version makes this a no-op.
func (u *UserFS) mergeRemote(ctx context.Context, remote models.UserManifest) error {
	if err := u.updateLock.Lock(ctx); err != nil {
		return err
	}
	defer u.updateLock.Unlock()

	local, err := u.GetUserManifest(ctx)
	if err != nil {
		return err
	}
	if remote.Version <= local.BaseVersion {
		return nil
	}

	merged := models.MergeLocalUserManifests(local, remote)
	if err := u.store.SetUserManifest(ctx, merged); err != nil {
		return &common.Error{Op: "userfs.inboundSync", Kind: common.ErrSync, Err: err}
	}

	u.logger.Debug(ctx, "user manifest merged", "version", remote.Version, "need_sync", merged.NeedSync)
	u.notifySharingDiff(ctx, local.Workspaces, merged.Workspaces)
	u.observer.Notify(Event{Type: EventManifestUpdated, ID: merged.ID})
	return nil
}

// notifySharingDiff reports every workspace present after the merge. An
// entry present on both sides is reported even if its role did not change,
// since roles may have changed and changed back while we were offline.
func (u *UserFS) notifySharingDiff(ctx context.Context, before, after []models.WorkspaceEntry) {
	previous := make(map[models.EntryID]models.WorkspaceEntry, len(before))
	for _, e := range before {
		previous[e.ID] = e
	}

	for _, e := range after {
		entry := e
		old, ok := previous[e.ID]
		delete(previous, e.ID)
		switch {
		case ok:
			u.observer.Notify(Event{Type: EventSharingUpdated, ID: e.ID, NewEntry: &entry, PreviousEntry: &old})
		case e.HasAccess():
			u.observer.Notify(Event{Type: EventSharingUpdated, ID: e.ID, NewEntry: &entry})
		}
	}

	for id, e := range previous {
		u.logger.Warn(ctx, "workspace vanished from user manifest", "workspace", id, "name", e.Name)
	}
}

// outboundSync publishes the local manifest. Losing the race against
// another device is resolved by merging its manifest and trying again;
// every retry starts from a strictly higher BaseVersion.
func (u *UserFS) outboundSync(ctx context.Context) error {
	for {
		before, err := u.GetUserManifest(ctx)
		if err != nil {
			return err
		}

		conflict := u.outboundSyncInner(ctx)
		if !errors.Is(conflict, client.ErrBadVersion) && !errors.Is(conflict, client.ErrAlreadyExists) {
			return conflict
		}
		u.logger.Debug(ctx, "user manifest publish conflict, merging remote", "error", conflict)
		if err := u.inboundSync(ctx); err != nil {
			return err
		}

		after, err := u.GetUserManifest(ctx)
		if err != nil {
			return err
		}
		if after.BaseVersion <= before.BaseVersion {
			return &common.Error{Op: "userfs.outboundSync", Kind: common.ErrSync, Err: conflict}
		}
	}
}

func (u *UserFS) outboundSyncInner(ctx context.Context) error {
	const op = "userfs.outboundSync"

	local, err := u.GetUserManifest(ctx)
	if err != nil {
		return err
	}
	if !local.NeedSync {
		return nil
	}

	if local.IsPlaceholder() {
		if err := u.createRealm(ctx, local.ID); err != nil {
			return backendError(op, local.ID, err)
		}
	}

	for _, w := range local.Workspaces {
		if err := u.workspaceMinimalSync(ctx, w); err != nil {
			return err
		}
	}

	ts := u.now()
	remote := local.ToRemote(u.device.DeviceID, ts)
	blob, err := remote.DumpSignAndEncrypt(u.device.SigningKey, u.device.UserManifestKey)
	if err != nil {
		return &common.Error{Op: op, Kind: common.ErrSync, Err: err}
	}

	if remote.Version == 1 {
		err = u.backend.VlobCreate(ctx, local.ID, userManifestEncryptionRevision, local.ID, ts, blob)
	} else {
		err = u.backend.VlobUpdate(ctx, userManifestEncryptionRevision, local.ID, remote.Version, ts, blob)
	}
	if err != nil {
		return backendError(op, local.ID, err)
	}

	if err := u.updateLock.Lock(ctx); err != nil {
		return err
	}
	defer u.updateLock.Unlock()

	current, err := u.GetUserManifest(ctx)
	if err != nil {
		return err
	}
	if current.BaseVersion >= remote.Version {
		return nil
	}
	merged := models.MergeLocalUserManifests(current, remote)
	if err := u.store.SetUserManifest(ctx, merged); err != nil {
		return &common.Error{Op: op, Kind: common.ErrSync, Err: err}
	}

	u.logger.Info(ctx, "user manifest published", "version", remote.Version)
	u.observer.Notify(Event{Type: EventManifestSynced, ID: merged.ID})
	return nil
}

// createRealm creates realm id owned by the local user. An existing realm
// means a previous attempt succeeded without us hearing back.
func (u *UserFS) createRealm(ctx context.Context, id models.EntryID) error {
	cert, err := models.BuildRealmRootCertificate(u.device.DeviceID, id, u.now()).DumpAndSign(u.device.SigningKey)
	if err != nil {
		return err
	}
	if err := u.backend.RealmCreate(ctx, cert); err != nil && !errors.Is(err, client.ErrAlreadyExists) {
		return err
	}
	return nil
}

// workspaceMinimalSync publishes the empty root manifest of a workspace
// created locally, so that its realm exists before it is referenced or
// shared.
func (u *UserFS) workspaceMinimalSync(ctx context.Context, entry models.WorkspaceEntry) error {
	const op = "userfs.workspaceMinimalSync"

	wm, err := u.store.GetWorkspaceManifest(ctx, entry.ID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return &common.Error{Op: op, Workspace: string(entry.ID), Kind: common.ErrSync, Err: err}
	}
	if !wm.IsPlaceholder() {
		return nil
	}

	if err := u.createRealm(ctx, entry.ID); err != nil {
		return backendError(op, entry.ID, err)
	}

	ts := u.now()
	blob, err := wm.ToRemote(u.device.DeviceID, ts).DumpSignAndEncrypt(u.device.SigningKey, entry.Key)
	if err != nil {
		return &common.Error{Op: op, Workspace: string(entry.ID), Kind: common.ErrSync, Err: err}
	}
	err = u.backend.VlobCreate(ctx, entry.ID, entry.EncryptionRevision, entry.ID, ts, blob)
	if err != nil && !errors.Is(err, client.ErrAlreadyExists) {
		return backendError(op, entry.ID, err)
	}

	wm.BaseVersion = 1
	wm.NeedSync = false
	wm.Updated = ts
	if err := u.store.SetWorkspaceManifest(ctx, wm); err != nil {
		return &common.Error{Op: op, Workspace: string(entry.ID), Kind: common.ErrSync, Err: err}
	}
	u.logger.Debug(ctx, "workspace minimally synced", "workspace", entry.ID)
	return nil
}
