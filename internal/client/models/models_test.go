package models

import (
	"testing"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func TestParseDeviceID(t *testing.T) {
	d, err := ParseDeviceID("alice@laptop")
	require.NoError(t, err)
	assert.Equal(t, UserID("alice"), d.UserID())
	assert.Equal(t, DeviceName("laptop"), d.DeviceName())
	assert.Equal(t, d, NewDeviceID("alice", "laptop"))

	for _, bad := range []string{"", "alice", "@laptop", "alice@", "a b@c", "alice@lap@top"} {
		_, err := ParseDeviceID(bad)
		assert.Error(t, err, bad)
	}
}

func TestRealmRole(t *testing.T) {
	assert.True(t, RoleOwner.CanShare())
	assert.True(t, RoleManager.CanShare())
	assert.False(t, RoleContributor.CanShare())
	assert.False(t, RoleNone.CanShare())
	assert.True(t, RoleContributor.CanWrite())
	assert.False(t, RoleReader.CanWrite())
	assert.False(t, RealmRole("ADMIN").Valid())
}

func TestWorkspaceEntry_EvolveReturnsCopies(t *testing.T) {
	e := NewWorkspaceEntry("docs", t0)
	require.Equal(t, uint64(1), e.EncryptionRevision)
	require.Equal(t, RoleOwner, e.Role)

	renamed := e.WithName("papers")
	assert.Equal(t, "docs", e.Name)
	assert.Equal(t, "papers", renamed.Name)

	rotated := e.WithNewKey(cryptox.GenerateSecretKey(), t0.Add(time.Hour))
	assert.Equal(t, uint64(2), rotated.EncryptionRevision)
	assert.NotEqual(t, e.Key, rotated.Key)
	assert.Equal(t, uint64(1), e.EncryptionRevision)

	revoked := e.WithRole(RoleNone, t0.Add(time.Minute))
	assert.False(t, revoked.HasAccess())
	assert.True(t, e.HasAccess())
}

func TestLocalUserManifest_Lifecycle(t *testing.T) {
	id := NewEntryID()
	m := NewPlaceholderUserManifest(id, t0)
	require.True(t, m.IsPlaceholder())
	require.True(t, m.NeedSync)

	w1 := NewWorkspaceEntry("w1", t0)
	m2 := m.EvolveWorkspacesAndMarkUpdated(t0.Add(time.Second), w1)
	assert.Empty(t, m.Workspaces)
	require.Len(t, m2.Workspaces, 1)

	remote := m2.ToRemote("alice@laptop", t0.Add(2*time.Second))
	assert.Equal(t, uint64(1), remote.Version)
	assert.Equal(t, id, remote.ID)

	synced := LocalUserManifestFromRemote(remote)
	assert.False(t, synced.NeedSync)
	assert.False(t, synced.IsPlaceholder())
	got, ok := synced.WorkspaceEntry(w1.ID)
	require.True(t, ok)
	assert.True(t, got.Equal(w1))

	m3 := synced.EvolveWorkspacesAndMarkUpdated(t0.Add(3*time.Second), w1.WithName("renamed"))
	require.Len(t, m3.Workspaces, 1)
	assert.Equal(t, "renamed", m3.Workspaces[0].Name)
	assert.Equal(t, "w1", synced.Workspaces[0].Name)
}

func TestMergeWorkspaceEntry(t *testing.T) {
	base := NewWorkspaceEntry("base", t0)

	t.Run("local rename kept", func(t *testing.T) {
		got := MergeWorkspaceEntry(&base, base.WithName("local"), base)
		assert.Equal(t, "local", got.Name)
	})

	t.Run("remote rename wins", func(t *testing.T) {
		got := MergeWorkspaceEntry(&base, base.WithName("local"), base.WithName("remote"))
		assert.Equal(t, "remote", got.Name)
	})

	t.Run("no base keeps target name", func(t *testing.T) {
		got := MergeWorkspaceEntry(nil, base.WithName("shared by bob"), base.WithName("mine"))
		assert.Equal(t, "mine", got.Name)
	})

	t.Run("higher revision wins both ways", func(t *testing.T) {
		rotated := base.WithNewKey(cryptox.GenerateSecretKey(), t0.Add(time.Hour))

		got := MergeWorkspaceEntry(&base, rotated, base)
		assert.Equal(t, rotated.Key, got.Key)
		assert.Equal(t, uint64(2), got.EncryptionRevision)

		got = MergeWorkspaceEntry(&base, base, rotated)
		assert.Equal(t, rotated.Key, got.Key)
		assert.Equal(t, uint64(2), got.EncryptionRevision)
	})

	t.Run("most recent role wins", func(t *testing.T) {
		revoked := base.WithRole(RoleNone, t0.Add(time.Hour))
		assert.Equal(t, RoleNone, MergeWorkspaceEntry(&base, revoked, base).Role)
		assert.Equal(t, RoleNone, MergeWorkspaceEntry(&base, base, revoked).Role)
	})
}

func TestMergeLocalUserManifests(t *testing.T) {
	id := NewEntryID()
	wA := NewWorkspaceEntry("a", t0)
	wB := NewWorkspaceEntry("b", t0)

	v1 := UserManifest{ID: id, Version: 1, Author: "alice@one", Timestamp: t0, Workspaces: []WorkspaceEntry{wA}}
	sortEntries(v1.Workspaces)

	t.Run("older target is ignored", func(t *testing.T) {
		local := LocalUserManifestFromRemote(v1)
		got := MergeLocalUserManifests(local, v1)
		assert.Equal(t, local, got)
	})

	t.Run("fast forward without local changes", func(t *testing.T) {
		local := LocalUserManifestFromRemote(v1)
		v2 := v1
		v2.Version = 2
		v2.Workspaces = []WorkspaceEntry{wA, wB}
		sortEntries(v2.Workspaces)

		got := MergeLocalUserManifests(local, v2)
		assert.Equal(t, uint64(2), got.BaseVersion)
		assert.False(t, got.NeedSync)
		assert.Len(t, got.Workspaces, 2)
	})

	t.Run("placeholder merges into remote", func(t *testing.T) {
		local := NewPlaceholderUserManifest(id, t0).EvolveWorkspacesAndMarkUpdated(t0, wB)

		got := MergeLocalUserManifests(local, v1)
		assert.Equal(t, uint64(1), got.BaseVersion)
		assert.True(t, got.NeedSync)
		require.Len(t, got.Workspaces, 2)
		_, okA := got.WorkspaceEntry(wA.ID)
		_, okB := got.WorkspaceEntry(wB.ID)
		assert.True(t, okA && okB)
	})

	t.Run("identical change clears need sync", func(t *testing.T) {
		local := NewPlaceholderUserManifest(id, t0).EvolveWorkspacesAndMarkUpdated(t0, wA)
		got := MergeLocalUserManifests(local, v1)
		assert.False(t, got.NeedSync)
	})

	t.Run("last processed message takes max", func(t *testing.T) {
		local := LocalUserManifestFromRemote(v1).EvolveLastProcessedMessageAndMarkUpdated(7, t0)
		v2 := v1
		v2.Version = 2
		v2.LastProcessedMessage = 3

		got := MergeLocalUserManifests(local, v2)
		assert.Equal(t, uint64(7), got.LastProcessedMessage)
		assert.True(t, got.NeedSync)
	})
}

func TestUserManifest_SignedRoundTrip(t *testing.T) {
	sk, err := cryptox.GenerateSigningKey()
	require.NoError(t, err)
	key := cryptox.GenerateSecretKey()

	m := NewPlaceholderUserManifest(NewEntryID(), t0).
		EvolveWorkspacesAndMarkUpdated(t0, NewWorkspaceEntry("w", t0)).
		ToRemote("alice@laptop", t0.Add(time.Second))

	blob, err := m.DumpSignAndEncrypt(sk, key)
	require.NoError(t, err)

	signed, err := key.Decrypt(blob)
	require.NoError(t, err)

	exp := ManifestExpectations{ID: m.ID, Author: m.Author, Timestamp: m.Timestamp, Version: 1}
	got, err := VerifyUserManifest(signed, sk.VerifyKey(), exp)
	require.NoError(t, err)
	assert.Equal(t, m.Version, got.Version)
	require.Len(t, got.Workspaces, 1)
	assert.True(t, got.Workspaces[0].Equal(m.Workspaces[0]))

	bad := exp
	bad.Version = 2
	_, err = VerifyUserManifest(signed, sk.VerifyKey(), bad)
	require.ErrorIs(t, err, ErrDataValidation)

	bad = exp
	bad.Author = "mallory@laptop"
	_, err = VerifyUserManifest(signed, sk.VerifyKey(), bad)
	require.ErrorIs(t, err, ErrDataValidation)

	bad = exp
	bad.Timestamp = t0
	_, err = VerifyUserManifest(signed, sk.VerifyKey(), bad)
	require.ErrorIs(t, err, ErrDataValidation)
}

func TestRealmRoleCertificate_SignVerify(t *testing.T) {
	sk, err := cryptox.GenerateSigningKey()
	require.NoError(t, err)

	c := BuildRealmRootCertificate("alice@laptop", NewEntryID(), t0)
	signed, err := c.DumpAndSign(sk)
	require.NoError(t, err)

	got, err := VerifyRealmRoleCertificate(signed, sk.VerifyKey(), "alice@laptop")
	require.NoError(t, err)
	assert.Equal(t, UserID("alice"), got.UserID)
	assert.Equal(t, RoleOwner, got.Role)

	_, err = VerifyRealmRoleCertificate(signed, sk.VerifyKey(), "bob@phone")
	require.ErrorIs(t, err, ErrDataValidation)

	unsafe, err := UnsecureLoadRealmRoleCertificate(signed)
	require.NoError(t, err)
	assert.Equal(t, c.RealmID, unsafe.RealmID)
}
