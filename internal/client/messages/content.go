// Package messages builds and opens the signed, encrypted sharing messages
// users exchange through their backend mailbox.
package messages

import (
	"fmt"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/cryptox"
)

type Kind string

const (
	KindGranted     Kind = "sharing.granted"
	KindReencrypted Kind = "sharing.reencrypted"
	KindRevoked     Kind = "sharing.revoked"
	KindPing        Kind = "ping"
)

// SharingPayload carries what a recipient needs to open a workspace at a
// given encryption revision.
type SharingPayload struct {
	ID                 models.EntryID    `json:"id"`
	Name               string            `json:"name"`
	Key                cryptox.SecretKey `json:"key"`
	EncryptionRevision uint64            `json:"encryption_revision"`
	EncryptedOn        time.Time         `json:"encrypted_on"`
}

type RevokedPayload struct {
	ID models.EntryID `json:"id"`
}

// Content is the decrypted body of a message. Exactly one payload field
// matching Kind is set, except for pings which carry Ping.
type Content struct {
	Kind      Kind            `json:"kind"`
	Author    models.DeviceID `json:"author"`
	Timestamp time.Time       `json:"timestamp"`
	Sharing   *SharingPayload `json:"sharing,omitempty"`
	Revoked   *RevokedPayload `json:"revoked,omitempty"`
	Ping      string          `json:"ping,omitempty"`
}

// Validate checks that the payload matches the kind.
func (c Content) Validate() error {
	switch c.Kind {
	case KindGranted, KindReencrypted:
		if c.Sharing == nil || c.Revoked != nil {
			return fmt.Errorf("%s message without sharing payload", c.Kind)
		}
		if c.Sharing.EncryptionRevision == 0 {
			return fmt.Errorf("%s message with encryption revision 0", c.Kind)
		}
	case KindRevoked:
		if c.Revoked == nil || c.Sharing != nil {
			return fmt.Errorf("%s message without revoked payload", c.Kind)
		}
	case KindPing:
		if c.Sharing != nil || c.Revoked != nil {
			return fmt.Errorf("ping message with payload")
		}
	default:
		return fmt.Errorf("unknown message kind %q", c.Kind)
	}
	return nil
}

// WorkspaceID returns the realm the message is about, if any.
func (c Content) WorkspaceID() models.EntryID {
	switch {
	case c.Sharing != nil:
		return c.Sharing.ID
	case c.Revoked != nil:
		return c.Revoked.ID
	}
	return ""
}

func sharingPayload(e models.WorkspaceEntry) *SharingPayload {
	return &SharingPayload{
		ID:                 e.ID,
		Name:               e.Name,
		Key:                e.Key,
		EncryptionRevision: e.EncryptionRevision,
		EncryptedOn:        e.EncryptedOn,
	}
}
