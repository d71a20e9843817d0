package models

import (
	"slices"
	"time"
)

// UserManifest is the immutable remote copy of a user's workspace list, as
// published under a given version.
type UserManifest struct {
	ID                   EntryID          `json:"id"`
	Version              uint64           `json:"version"`
	Author               DeviceID         `json:"author"`
	Timestamp            time.Time        `json:"timestamp"`
	Created              time.Time        `json:"created"`
	Updated              time.Time        `json:"updated"`
	LastProcessedMessage uint64           `json:"last_processed_message"`
	Workspaces           []WorkspaceEntry `json:"workspaces"`
}

func (m UserManifest) WorkspaceEntry(id EntryID) (WorkspaceEntry, bool) {
	return findEntry(m.Workspaces, id)
}

// LocalUserManifest is the working copy of the user manifest. Base is the
// remote manifest it derives from (nil while a placeholder).
type LocalUserManifest struct {
	ID                   EntryID          `json:"id"`
	Base                 *UserManifest    `json:"base,omitempty"`
	BaseVersion          uint64           `json:"base_version"`
	NeedSync             bool             `json:"need_sync"`
	Created              time.Time        `json:"created"`
	Updated              time.Time        `json:"updated"`
	LastProcessedMessage uint64           `json:"last_processed_message"`
	Workspaces           []WorkspaceEntry `json:"workspaces"`
}

// NewPlaceholderUserManifest returns a never-synced manifest. A placeholder
// always needs sync so that the first outbound sync creates the realm.
func NewPlaceholderUserManifest(id EntryID, now time.Time) LocalUserManifest {
	return LocalUserManifest{
		ID:       id,
		NeedSync: true,
		Created:  now,
		Updated:  now,
	}
}

// LocalUserManifestFromRemote returns a working copy in sync with m.
func LocalUserManifestFromRemote(m UserManifest) LocalUserManifest {
	base := m.clone()
	return LocalUserManifest{
		ID:                   m.ID,
		Base:                 &base,
		BaseVersion:          m.Version,
		NeedSync:             false,
		Created:              m.Created,
		Updated:              m.Updated,
		LastProcessedMessage: m.LastProcessedMessage,
		Workspaces:           slices.Clone(m.Workspaces),
	}
}

func (m LocalUserManifest) IsPlaceholder() bool {
	return m.BaseVersion == 0
}

func (m LocalUserManifest) WorkspaceEntry(id EntryID) (WorkspaceEntry, bool) {
	return findEntry(m.Workspaces, id)
}

// EvolveWorkspacesAndMarkUpdated inserts or replaces entries by id.
func (m LocalUserManifest) EvolveWorkspacesAndMarkUpdated(now time.Time, entries ...WorkspaceEntry) LocalUserManifest {
	m.Workspaces = upsertEntries(m.Workspaces, entries...)
	m.NeedSync = true
	m.Updated = now
	return m
}

func (m LocalUserManifest) EvolveLastProcessedMessageAndMarkUpdated(offset uint64, now time.Time) LocalUserManifest {
	m.Workspaces = slices.Clone(m.Workspaces)
	m.LastProcessedMessage = offset
	m.NeedSync = true
	m.Updated = now
	return m
}

// ToRemote builds the manifest to publish as the next version.
func (m LocalUserManifest) ToRemote(author DeviceID, ts time.Time) UserManifest {
	return UserManifest{
		ID:                   m.ID,
		Version:              m.BaseVersion + 1,
		Author:               author,
		Timestamp:            ts,
		Created:              m.Created,
		Updated:              m.Updated,
		LastProcessedMessage: m.LastProcessedMessage,
		Workspaces:           slices.Clone(m.Workspaces),
	}
}

func (m UserManifest) clone() UserManifest {
	m.Workspaces = slices.Clone(m.Workspaces)
	return m
}

// WorkspaceManifest is the remote root manifest of a workspace. Only the
// empty root published by a minimal sync is produced here; folder content
// belongs to the workspace file system.
type WorkspaceManifest struct {
	ID        EntryID            `json:"id"`
	Version   uint64             `json:"version"`
	Author    DeviceID           `json:"author"`
	Timestamp time.Time          `json:"timestamp"`
	Created   time.Time          `json:"created"`
	Updated   time.Time          `json:"updated"`
	Children  map[string]EntryID `json:"children"`
}

// LocalWorkspaceManifest tracks whether a workspace root has been published.
type LocalWorkspaceManifest struct {
	ID          EntryID   `json:"id"`
	BaseVersion uint64    `json:"base_version"`
	NeedSync    bool      `json:"need_sync"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}

func NewPlaceholderWorkspaceManifest(id EntryID, now time.Time) LocalWorkspaceManifest {
	return LocalWorkspaceManifest{ID: id, NeedSync: true, Created: now, Updated: now}
}

func (m LocalWorkspaceManifest) IsPlaceholder() bool {
	return m.BaseVersion == 0
}

func (m LocalWorkspaceManifest) ToRemote(author DeviceID, ts time.Time) WorkspaceManifest {
	return WorkspaceManifest{
		ID:        m.ID,
		Version:   m.BaseVersion + 1,
		Author:    author,
		Timestamp: ts,
		Created:   m.Created,
		Updated:   m.Updated,
		Children:  map[string]EntryID{},
	}
}

func findEntry(entries []WorkspaceEntry, id EntryID) (WorkspaceEntry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return WorkspaceEntry{}, false
}

// upsertEntries returns a new slice sorted by id; the input is not modified.
func upsertEntries(entries []WorkspaceEntry, updates ...WorkspaceEntry) []WorkspaceEntry {
	out := slices.Clone(entries)
	for _, u := range updates {
		i := slices.IndexFunc(out, func(e WorkspaceEntry) bool { return e.ID == u.ID })
		if i >= 0 {
			out[i] = u
		} else {
			out = append(out, u)
		}
	}
	sortEntries(out)
	return out
}

func sortEntries(entries []WorkspaceEntry) {
	slices.SortFunc(entries, func(a, b WorkspaceEntry) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func entriesEqual(a, b []WorkspaceEntry) bool {
	return slices.EqualFunc(a, b, WorkspaceEntry.Equal)
}
