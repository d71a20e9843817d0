package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/gurjot03/parsec-cloud/internal/client/client"
	"github.com/gurjot03/parsec-cloud/internal/client/messages"
	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/common"
)

// MessageError records a mailbox message that could not be applied.
type MessageError struct {
	Offset uint64
	Sender models.DeviceID
	Err    error
}

func (e MessageError) Error() string {
	return fmt.Sprintf("message %d from %s: %v", e.Offset, e.Sender, e.Err)
}

func (e MessageError) Unwrap() error { return e.Err }

// ProcessLastMessages applies the mailbox messages received since the last
// processed one, strictly in order.
//
// A message that fails is recorded and skipped. Losing the backend stops
// the batch: the messages handled so far are acknowledged and
// common.ErrBackendOffline is returned along with the recorded failures.
func (u *UserFS) ProcessLastMessages(ctx context.Context) ([]MessageError, error) {
	const op = "userfs.ProcessLastMessages"

	if err := u.processLock.Lock(ctx); err != nil {
		return nil, err
	}
	defer u.processLock.Unlock()

	local, err := u.GetUserManifest(ctx)
	if err != nil {
		return nil, err
	}
	start := local.LastProcessedMessage

	msgs, err := u.backend.MessageGet(ctx, start)
	if err != nil {
		return nil, backendError(op, "", err)
	}
	// The remainder is picked up by the next call.
	if len(msgs) > common.MessageBatchLimit {
		msgs = msgs[:common.MessageBatchLimit]
	}

	var (
		failures  []MessageError
		stopErr   error
		watermark = start
	)
	for _, m := range msgs {
		err := u.processMessage(ctx, m)
		if err != nil && (isOffline(err) || isCanceled(err)) {
			stopErr = backendError(op, "", err)
			break
		}
		if err != nil {
			u.logger.Warn(ctx, "skipping mailbox message", "offset", m.Offset, "sender", m.Sender, "error", err)
			failures = append(failures, MessageError{Offset: m.Offset, Sender: m.Sender, Err: err})
		}
		watermark = m.Offset
	}

	if watermark > start {
		if err := u.acknowledgeMessages(ctx, watermark); err != nil {
			return failures, errors.Join(stopErr, err)
		}
	}
	return failures, stopErr
}

// acknowledgeMessages moves the watermark forward in a single manifest
// update. It runs after a cancelled batch too, so it does not use ctx for
// locking.
func (u *UserFS) acknowledgeMessages(ctx context.Context, watermark uint64) error {
	ctx = context.WithoutCancel(ctx)
	if err := u.updateLock.Lock(ctx); err != nil {
		return err
	}
	defer u.updateLock.Unlock()

	local, err := u.GetUserManifest(ctx)
	if err != nil {
		return err
	}
	if local.LastProcessedMessage >= watermark {
		return nil
	}
	updated := local.EvolveLastProcessedMessageAndMarkUpdated(watermark, u.now())
	if err := u.store.SetUserManifest(ctx, updated); err != nil {
		return &common.Error{Op: "userfs.ProcessLastMessages", Kind: common.ErrSync, Err: err}
	}
	return nil
}

func (u *UserFS) processMessage(ctx context.Context, m client.Message) error {
	c, err := u.protocol.Open(ctx, m.Sender, m.Timestamp, m.Body)
	if err != nil {
		return err
	}
	u.logger.Debug(ctx, "processing message", "offset", m.Offset, "kind", c.Kind, "workspace", c.WorkspaceID())

	switch c.Kind {
	case messages.KindGranted, messages.KindReencrypted:
		return u.processGranted(ctx, c)
	case messages.KindRevoked:
		return u.processRevoked(ctx, c)
	case messages.KindPing:
		u.observer.Notify(Event{Type: EventPingReceived, Ping: c.Ping})
		return nil
	}
	return fmt.Errorf("%w: unhandled kind %q", common.ErrInvalidMessage, c.Kind)
}

func (u *UserFS) processGranted(ctx context.Context, c messages.Content) error {
	const op = "userfs.processGranted"
	s := c.Sharing

	role, err := u.protocol.AuthorizeGrant(ctx, u, c)
	if errors.Is(err, common.ErrWorkspaceNoAccess) {
		u.logger.Info(ctx, "access lost before grant was processed", "workspace", s.ID, "author", c.Author)
		return nil
	}
	if err != nil {
		return err
	}

	now := u.now()
	incoming := models.WorkspaceEntry{
		ID:                 s.ID,
		Name:               fmt.Sprintf("%s (shared by %s)", s.Name, c.Author.UserID()),
		Key:                s.Key,
		EncryptionRevision: s.EncryptionRevision,
		EncryptedOn:        s.EncryptedOn,
		Role:               role,
		RoleCachedOn:       now,
	}

	if err := u.updateLock.Lock(ctx); err != nil {
		return err
	}
	defer u.updateLock.Unlock()

	local, err := u.GetUserManifest(ctx)
	if err != nil {
		return err
	}
	existing, known := local.WorkspaceEntry(s.ID)
	entry := incoming
	if known {
		entry = models.MergeWorkspaceEntry(nil, incoming, existing)
		if entry.Equal(existing) {
			return nil
		}
	}

	updated := local.EvolveWorkspacesAndMarkUpdated(now, entry)
	if err := u.store.SetUserManifest(ctx, updated); err != nil {
		return &common.Error{Op: op, Workspace: string(s.ID), Kind: common.ErrSync, Err: err}
	}

	u.logger.Info(ctx, "workspace access updated", "workspace", s.ID, "role", entry.Role, "revision", entry.EncryptionRevision)
	u.observer.Notify(Event{Type: EventManifestUpdated, ID: updated.ID})
	if known {
		u.observer.Notify(Event{Type: EventSharingUpdated, ID: s.ID, NewEntry: &entry, PreviousEntry: &existing})
	} else {
		u.observer.Notify(Event{Type: EventWorkspaceCreated, ID: s.ID, NewEntry: &entry})
		u.observer.Notify(Event{Type: EventSharingUpdated, ID: s.ID, NewEntry: &entry})
	}
	return nil
}

// processRevoked trusts no sender: it only asks the backend whether we
// still have access.
func (u *UserFS) processRevoked(ctx context.Context, c messages.Content) error {
	id := c.Revoked.ID

	roles, err := u.RealmCurrentRoles(ctx, id)
	switch {
	case err == nil && roles[u.device.UserID()] != models.RoleNone:
		return nil
	case err != nil && !errors.Is(err, common.ErrWorkspaceNoAccess):
		return err
	}

	if err := u.updateLock.Lock(ctx); err != nil {
		return err
	}
	defer u.updateLock.Unlock()

	local, err := u.GetUserManifest(ctx)
	if err != nil {
		return err
	}
	existing, ok := local.WorkspaceEntry(id)
	if !ok || existing.Role == models.RoleNone {
		return nil
	}

	now := u.now()
	entry := existing.WithRole(models.RoleNone, now)
	updated := local.EvolveWorkspacesAndMarkUpdated(now, entry)
	if err := u.store.SetUserManifest(ctx, updated); err != nil {
		return &common.Error{Op: "userfs.processRevoked", Workspace: string(id), Kind: common.ErrSync, Err: err}
	}

	u.logger.Info(ctx, "workspace access revoked", "workspace", id, "author", c.Author)
	u.observer.Notify(Event{Type: EventManifestUpdated, ID: updated.ID})
	u.observer.Notify(Event{Type: EventSharingUpdated, ID: id, NewEntry: &entry, PreviousEntry: &existing})
	return nil
}
