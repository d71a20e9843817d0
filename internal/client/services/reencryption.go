package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/client/client"
	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/common"
	"github.com/gurjot03/parsec-cloud/internal/cryptox"
)

// ReencryptionJob moves the vlobs of a realm from Old's key to New's key,
// one batch at a time. It is not persisted; an interrupted job is rebuilt
// with WorkspaceContinueReencryption.
type ReencryptionJob struct {
	u   *UserFS
	Old models.WorkspaceEntry
	New models.WorkspaceEntry

	total    int
	finished bool
}

// WorkspaceStartReencryption rotates the key of a workspace and puts its
// realm in reencryption maintenance. Every participant, including
// ourselves, receives the new key in a Reencrypted message; the local
// manifest is updated when our own message is processed.
func (u *UserFS) WorkspaceStartReencryption(ctx context.Context, id models.EntryID) (*ReencryptionJob, error) {
	const op = "userfs.WorkspaceStartReencryption"

	old, err := u.GetWorkspaceEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	now := u.now()
	next := old.WithNewKey(cryptox.GenerateSecretKey(), now)

	// The backend rejects the request when the participants it knows
	// differ from ours. Participants are refreshed from the backend on
	// every attempt, so this only loops while membership keeps changing.
	for {
		perParticipant, err := u.reencryptionMessages(ctx, next, now)
		if err != nil {
			return nil, err
		}

		err = u.backend.RealmStartReencryptionMaintenance(ctx, id, next.EncryptionRevision, now, perParticipant)
		switch {
		case err == nil:
			u.logger.Info(ctx, "reencryption started", "workspace", id, "revision", next.EncryptionRevision, "participants", len(perParticipant))
			return &ReencryptionJob{u: u, Old: old, New: next}, nil
		case errors.Is(err, client.ErrParticipantsMismatch):
			u.logger.Info(ctx, "realm participants changed, restarting reencryption", "workspace", id)
			continue
		case errors.Is(err, client.ErrBadEncryptionRevision):
			return nil, &common.Error{Op: op, Workspace: string(id), Kind: common.ErrSync,
				Err: fmt.Errorf("local revision %d is stale: %w", old.EncryptionRevision, err)}
		}
		return nil, backendError(op, id, err)
	}
}

func (u *UserFS) reencryptionMessages(ctx context.Context, next models.WorkspaceEntry, now time.Time) (map[models.UserID][]byte, error) {
	roles, err := u.RealmCurrentRoles(ctx, next.ID)
	if err != nil {
		return nil, err
	}

	content := u.protocol.BuildReencrypted(next, now)
	out := make(map[models.UserID][]byte, len(roles))
	for userID := range roles {
		user, err := u.resolver.RefreshUser(ctx, userID)
		if err != nil {
			return nil, backendError("userfs.WorkspaceStartReencryption", next.ID, err)
		}
		if user.Revoked() {
			continue
		}
		sealed, err := u.protocol.SealFor(content, user.PublicKey)
		if err != nil {
			return nil, &common.Error{Op: "userfs.WorkspaceStartReencryption", Workspace: string(next.ID), Item: string(userID), Kind: common.ErrSync, Err: err}
		}
		out[userID] = sealed
	}
	return out, nil
}

// WorkspaceContinueReencryption rebuilds the job of a reencryption started
// elsewhere. The local entry must already hold the new revision R; the key
// of revision R-1 is recovered from the history of the user manifest.
func (u *UserFS) WorkspaceContinueReencryption(ctx context.Context, id models.EntryID) (*ReencryptionJob, error) {
	const op = "userfs.WorkspaceContinueReencryption"

	local, err := u.GetUserManifest(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := local.WorkspaceEntry(id)
	if !ok {
		return nil, &common.Error{Op: op, Workspace: string(id), Kind: common.ErrWorkspaceNotFound}
	}

	status, err := u.backend.RealmStatus(ctx, id)
	if err != nil {
		return nil, backendError(op, id, err)
	}
	if !status.InMaintenance || status.MaintenanceType != client.MaintenanceReencryption {
		return nil, &common.Error{Op: op, Workspace: string(id), Kind: common.ErrWorkspaceNotInMaintenance}
	}
	if status.EncryptionRevision != entry.EncryptionRevision {
		return nil, &common.Error{Op: op, Workspace: string(id), Kind: common.ErrSync,
			Err: fmt.Errorf("realm is at revision %d, local entry at %d", status.EncryptionRevision, entry.EncryptionRevision)}
	}

	previous, err := u.findPreviousEntry(ctx, local.BaseVersion, id, entry.EncryptionRevision-1)
	if err != nil {
		return nil, err
	}
	return &ReencryptionJob{u: u, Old: previous, New: entry}, nil
}

// findPreviousEntry walks the user manifest history back from version
// until the workspace shows up at the wanted revision.
func (u *UserFS) findPreviousEntry(ctx context.Context, version uint64, id models.EntryID, revision uint64) (models.WorkspaceEntry, error) {
	neverHad := &common.Error{Op: "userfs.WorkspaceContinueReencryption", Workspace: string(id), Kind: common.ErrNeverHadAccess}

	for ; version > 0; version-- {
		m, err := u.fetchRemoteUserManifest(ctx, version)
		if errors.Is(err, errNoRemoteManifest) {
			return models.WorkspaceEntry{}, neverHad
		}
		if err != nil {
			return models.WorkspaceEntry{}, err
		}

		e, ok := m.WorkspaceEntry(id)
		switch {
		case !ok || e.EncryptionRevision < revision:
			return models.WorkspaceEntry{}, neverHad
		case e.EncryptionRevision == revision:
			return e, nil
		}
	}
	return models.WorkspaceEntry{}, neverHad
}

func (j *ReencryptionJob) Finished() bool {
	return j.finished
}

// DoOneBatch reencrypts up to size vlobs (the configured default when size
// is not positive) and returns the realm-wide progress. Once everything is
// reencrypted the maintenance is finished. A realm that is no longer in
// maintenance, or already past this revision, means another process
// completed the job; that is reported as full progress.
func (j *ReencryptionJob) DoOneBatch(ctx context.Context, size int) (total, done int, err error) {
	const op = "userfs.ReencryptionJob.DoOneBatch"
	u, id, rev := j.u, j.New.ID, j.New.EncryptionRevision

	if j.finished {
		return j.total, j.total, nil
	}
	if size <= 0 {
		size = u.batchSize
	}

	batch, err := u.backend.VlobMaintenanceGetReencryptionBatch(ctx, id, rev, size)
	if err != nil {
		return j.fail(ctx, op, err)
	}

	out := make([]client.ReencryptionBatchEntry, 0, len(batch))
	for _, b := range batch {
		plain, err := j.Old.Key.Decrypt(b.Blob)
		if err != nil {
			return 0, 0, &common.Error{Op: op, Workspace: string(id), Item: fmt.Sprintf("%s@%d", b.VlobID, b.Version), Kind: common.ErrSync, Err: err}
		}
		out = append(out, client.ReencryptionBatchEntry{VlobID: b.VlobID, Version: b.Version, Blob: j.New.Key.Encrypt(plain)})
	}

	total, done, err = u.backend.VlobMaintenanceSaveReencryptionBatch(ctx, id, rev, out)
	if err != nil {
		return j.fail(ctx, op, err)
	}
	j.total = total

	if done >= total {
		err := u.backend.RealmFinishReencryptionMaintenance(ctx, id, rev)
		if err != nil && !benignCompletion(err) {
			return 0, 0, backendError(op, id, err)
		}
		j.finished = true
		u.logger.Info(ctx, "reencryption finished", "workspace", id, "revision", rev, "vlobs", total)
		return total, total, nil
	}
	return total, done, nil
}

func (j *ReencryptionJob) fail(ctx context.Context, op string, err error) (int, int, error) {
	if benignCompletion(err) {
		j.u.logger.Info(ctx, "reencryption already completed", "workspace", j.New.ID, "reason", err)
		j.finished = true
		return j.total, j.total, nil
	}
	return 0, 0, backendError(op, j.New.ID, err)
}

func benignCompletion(err error) bool {
	return errors.Is(err, client.ErrNotInMaintenance) || errors.Is(err, client.ErrBadEncryptionRevision)
}
