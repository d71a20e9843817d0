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

// WorkspaceShare gives recipient role on a workspace, or revokes their
// access when role is models.RoleNone. Granting a role the recipient
// already has is a no-op.
func (u *UserFS) WorkspaceShare(ctx context.Context, id models.EntryID, recipient models.UserID, role models.RealmRole) error {
	const op = "userfs.WorkspaceShare"
	fail := func(kind, err error) error {
		return &common.Error{Op: op, Workspace: string(id), Item: string(recipient), Kind: kind, Err: err}
	}

	if recipient == u.device.UserID() {
		return fail(common.ErrInvalidInput, errors.New("cannot share a workspace with oneself"))
	}
	if !role.Valid() {
		return fail(common.ErrInvalidInput, fmt.Errorf("unknown role %q", role))
	}

	entry, err := u.GetWorkspaceEntry(ctx, id)
	if err != nil {
		return err
	}
	if err := u.workspaceMinimalSync(ctx, entry); err != nil {
		return err
	}

	user, err := u.resolver.RefreshUser(ctx, recipient)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return fail(common.ErrInvalidInput, err)
	case err != nil:
		return backendError(op, id, err)
	case user.Revoked():
		return fail(common.ErrRecipientRevoked, nil)
	}

	now := u.now()
	var content messages.Content
	if role == models.RoleNone {
		content = u.protocol.BuildRevoked(id, now)
	} else {
		content = u.protocol.BuildGranted(entry, now)
	}
	msg, err := u.protocol.EncryptFor(ctx, recipient, content)
	if err != nil {
		return backendError(op, id, err)
	}

	cert, err := models.RealmRoleCertificate{
		Author:    u.device.DeviceID,
		Timestamp: now,
		RealmID:   id,
		UserID:    recipient,
		Role:      role,
	}.DumpAndSign(u.device.SigningKey)
	if err != nil {
		return fail(common.ErrSync, err)
	}

	err = u.backend.RealmUpdateRoles(ctx, cert, msg)
	switch {
	case err == nil:
		u.logger.Info(ctx, "workspace shared", "workspace", id, "recipient", recipient, "role", role)
		return nil
	case errors.Is(err, client.ErrRoleAlreadyGranted):
		return nil
	case errors.Is(err, client.ErrNotAllowed):
		return fail(common.ErrSharingNotAllowed, err)
	}
	return backendError(op, id, err)
}
