package models

import (
	"time"

	"github.com/gurjot03/parsec-cloud/internal/cryptox"
)

// WorkspaceEntry is the user manifest's view of one workspace: its name,
// the key for the current encryption revision, and the cached role.
//
// Entries are values; the With* helpers return modified copies.
type WorkspaceEntry struct {
	ID                 EntryID           `json:"id"`
	Name               string            `json:"name"`
	Key                cryptox.SecretKey `json:"key"`
	EncryptionRevision uint64            `json:"encryption_revision"`
	EncryptedOn        time.Time         `json:"encrypted_on"`
	Role               RealmRole         `json:"role"`
	RoleCachedOn       time.Time         `json:"role_cached_on"`
}

// NewWorkspaceEntry creates an entry for a workspace created locally: fresh
// key, revision 1, OWNER role.
func NewWorkspaceEntry(name string, now time.Time) WorkspaceEntry {
	return WorkspaceEntry{
		ID:                 NewEntryID(),
		Name:               name,
		Key:                cryptox.GenerateSecretKey(),
		EncryptionRevision: 1,
		EncryptedOn:        now,
		Role:               RoleOwner,
		RoleCachedOn:       now,
	}
}

func (e WorkspaceEntry) WithName(name string) WorkspaceEntry {
	e.Name = name
	return e
}

func (e WorkspaceEntry) WithRole(role RealmRole, cachedOn time.Time) WorkspaceEntry {
	e.Role = role
	e.RoleCachedOn = cachedOn
	return e
}

// WithNewKey returns the entry rotated to the next encryption revision.
func (e WorkspaceEntry) WithNewKey(key cryptox.SecretKey, encryptedOn time.Time) WorkspaceEntry {
	e.Key = key
	e.EncryptionRevision++
	e.EncryptedOn = encryptedOn
	return e
}

func (e WorkspaceEntry) HasAccess() bool {
	return e.Role != RoleNone
}

func (e WorkspaceEntry) Equal(o WorkspaceEntry) bool {
	return e.ID == o.ID &&
		e.Name == o.Name &&
		e.Key == o.Key &&
		e.EncryptionRevision == o.EncryptionRevision &&
		e.EncryptedOn.Equal(o.EncryptedOn) &&
		e.Role == o.Role &&
		e.RoleCachedOn.Equal(o.RoleCachedOn)
}
