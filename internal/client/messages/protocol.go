package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/client/device"
	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/client/trust"
	"github.com/gurjot03/parsec-cloud/internal/common"
	"github.com/gurjot03/parsec-cloud/internal/cryptox"
)

// Resolver is the part of trust.Resolver the protocol needs.
type Resolver interface {
	ResolveUser(ctx context.Context, userID models.UserID) (trust.RemoteUser, error)
	ResolveDevice(ctx context.Context, deviceID models.DeviceID) (trust.RemoteDevice, error)
}

// RolesLoader returns the verified current roles of a realm. It fails with
// common.ErrWorkspaceNoAccess when the local user can no longer read them.
type RolesLoader interface {
	RealmCurrentRoles(ctx context.Context, realmID models.EntryID) (map[models.UserID]models.RealmRole, error)
}

// Protocol seals messages as the local device and opens the ones addressed
// to the local user.
type Protocol struct {
	device   *device.LocalDevice
	resolver Resolver
}

func NewProtocol(d *device.LocalDevice, resolver Resolver) *Protocol {
	return &Protocol{device: d, resolver: resolver}
}

func (p *Protocol) BuildGranted(entry models.WorkspaceEntry, now time.Time) Content {
	return Content{Kind: KindGranted, Author: p.device.DeviceID, Timestamp: now, Sharing: sharingPayload(entry)}
}

func (p *Protocol) BuildReencrypted(entry models.WorkspaceEntry, now time.Time) Content {
	return Content{Kind: KindReencrypted, Author: p.device.DeviceID, Timestamp: now, Sharing: sharingPayload(entry)}
}

func (p *Protocol) BuildRevoked(id models.EntryID, now time.Time) Content {
	return Content{Kind: KindRevoked, Author: p.device.DeviceID, Timestamp: now, Revoked: &RevokedPayload{ID: id}}
}

func (p *Protocol) BuildPing(ping string, now time.Time) Content {
	return Content{Kind: KindPing, Author: p.device.DeviceID, Timestamp: now, Ping: ping}
}

// SealFor signs c with the device key and encrypts it for pub.
func (p *Protocol) SealFor(c Content, pub cryptox.PublicKey) ([]byte, error) {
	if c.Author != p.device.DeviceID {
		return nil, fmt.Errorf("%w: message author %q is not the local device", common.ErrInvalidInput, c.Author)
	}
	body, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return cryptox.EncryptFor(pub, cryptox.Sign(p.device.SigningKey, string(c.Author), c.Timestamp, body))
}

// EncryptFor seals c for another user. Sending to oneself is rejected before
// any lookup.
func (p *Protocol) EncryptFor(ctx context.Context, recipient models.UserID, c Content) ([]byte, error) {
	if recipient == p.device.UserID() {
		return nil, &common.Error{Op: "messages.EncryptFor", Item: string(recipient), Kind: common.ErrInvalidInput,
			Err: errors.New("cannot send a message to oneself")}
	}
	u, err := p.resolver.ResolveUser(ctx, recipient)
	if err != nil {
		return nil, err
	}
	return p.SealFor(c, u.PublicKey)
}

// Open decrypts and authenticates a mailbox message. sender and timestamp
// are what the backend asserted; both must match the signed content.
//
// Any failure attributable to the message is reported as
// common.ErrInvalidMessage. Backend unavailability is returned as is so the
// caller can stop the batch.
func (p *Protocol) Open(ctx context.Context, sender models.DeviceID, timestamp time.Time, ciphered []byte) (Content, error) {
	invalid := func(err error) (Content, error) {
		return Content{}, &common.Error{Op: "messages.Open", Item: string(sender), Kind: common.ErrInvalidMessage, Err: err}
	}

	signed, err := cryptox.DecryptFor(p.device.PrivateKey, ciphered)
	if err != nil {
		return invalid(err)
	}
	claimed, err := cryptox.UnsecureUnwrap(signed)
	if err != nil {
		return invalid(err)
	}
	if claimed.Author != string(sender) {
		return invalid(fmt.Errorf("signed by %q", claimed.Author))
	}

	author, err := p.resolver.ResolveDevice(ctx, sender)
	switch {
	case errors.Is(err, common.ErrBackendOffline), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Content{}, err
	case err != nil:
		return invalid(err)
	}

	env, err := cryptox.Verify(author.VerifyKey, signed)
	if err != nil {
		return invalid(err)
	}
	if !env.Timestamp.Equal(timestamp) {
		return invalid(fmt.Errorf("signed at %s, delivered at %s", env.Timestamp, timestamp))
	}

	var c Content
	if err := json.Unmarshal(env.Body, &c); err != nil {
		return invalid(err)
	}
	if c.Author != sender || !c.Timestamp.Equal(timestamp) {
		return invalid(errors.New("content header does not match envelope"))
	}
	if err := c.Validate(); err != nil {
		return invalid(err)
	}
	return c, nil
}

// AuthorizeGrant checks that the author of a Granted or Reencrypted message
// currently holds OWNER or MANAGER on the realm and returns the role of the
// local user there.
func (p *Protocol) AuthorizeGrant(ctx context.Context, roles RolesLoader, c Content) (models.RealmRole, error) {
	if c.Sharing == nil {
		return models.RoleNone, fmt.Errorf("%w: %s message carries no grant", common.ErrInvalidInput, c.Kind)
	}

	current, err := roles.RealmCurrentRoles(ctx, c.Sharing.ID)
	if err != nil {
		return models.RoleNone, err
	}

	if !current[c.Author.UserID()].CanShare() {
		return models.RoleNone, &common.Error{
			Op:        "messages.AuthorizeGrant",
			Workspace: string(c.Sharing.ID),
			Item:      string(c.Author),
			Kind:      common.ErrSharingNotAllowed,
		}
	}

	self := current[p.device.UserID()]
	if self == models.RoleNone {
		return models.RoleNone, &common.Error{
			Op:        "messages.AuthorizeGrant",
			Workspace: string(c.Sharing.ID),
			Kind:      common.ErrWorkspaceNoAccess,
		}
	}
	return self, nil
}
