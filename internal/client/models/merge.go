package models

import "slices"

// MergeWorkspaceEntry merges a locally modified entry with its remote
// counterpart. base is the entry both sides derive from, or nil.
//
//   - name: a remote rename wins, otherwise a local rename is kept;
//   - key material: the higher encryption revision wins;
//   - role: the most recently cached role wins.
func MergeWorkspaceEntry(base *WorkspaceEntry, diverged, target WorkspaceEntry) WorkspaceEntry {
	merged := target

	switch {
	case base != nil && base.Name != target.Name:
		merged.Name = target.Name
	case base != nil && base.Name != diverged.Name:
		merged.Name = diverged.Name
	case base == nil:
		merged.Name = target.Name
	}

	if diverged.EncryptionRevision > target.EncryptionRevision {
		merged.Key = diverged.Key
		merged.EncryptionRevision = diverged.EncryptionRevision
		merged.EncryptedOn = diverged.EncryptedOn
	}

	if diverged.RoleCachedOn.After(target.RoleCachedOn) {
		merged.Role = diverged.Role
		merged.RoleCachedOn = diverged.RoleCachedOn
	}

	return merged
}

// MergeLocalUserManifests folds a newer remote manifest into the working
// copy. Without local changes this is a fast-forward; otherwise workspaces
// are merged by id against the common base and the result keeps NeedSync
// if it still differs from target.
func MergeLocalUserManifests(diverged LocalUserManifest, target UserManifest) LocalUserManifest {
	if target.Version <= diverged.BaseVersion {
		return diverged
	}
	if !diverged.NeedSync {
		return LocalUserManifestFromRemote(target)
	}

	var baseEntries []WorkspaceEntry
	if diverged.Base != nil {
		baseEntries = diverged.Base.Workspaces
	}

	merged := make([]WorkspaceEntry, 0, len(target.Workspaces)+len(diverged.Workspaces))
	for _, t := range target.Workspaces {
		d, ok := findEntry(diverged.Workspaces, t.ID)
		if !ok {
			merged = append(merged, t)
			continue
		}
		var basePtr *WorkspaceEntry
		if b, ok := findEntry(baseEntries, t.ID); ok {
			basePtr = &b
		}
		merged = append(merged, MergeWorkspaceEntry(basePtr, d, t))
	}
	for _, d := range diverged.Workspaces {
		if _, ok := findEntry(target.Workspaces, d.ID); !ok {
			merged = append(merged, d)
		}
	}
	sortEntries(merged)

	lastProcessed := max(diverged.LastProcessedMessage, target.LastProcessedMessage)

	targetEntries := slices.Clone(target.Workspaces)
	sortEntries(targetEntries)
	needSync := !entriesEqual(merged, targetEntries) || lastProcessed != target.LastProcessedMessage

	updated := target.Updated
	if diverged.Updated.After(updated) {
		updated = diverged.Updated
	}

	base := target.clone()
	return LocalUserManifest{
		ID:                   diverged.ID,
		Base:                 &base,
		BaseVersion:          target.Version,
		NeedSync:             needSync,
		Created:              diverged.Created,
		Updated:              updated,
		LastProcessedMessage: lastProcessed,
		Workspaces:           merged,
	}
}
