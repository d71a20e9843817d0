package services

import (
	"context"
	"testing"

	"github.com/gurjot03/parsec-cloud/internal/client/client"
	"github.com/gurjot03/parsec-cloud/internal/client/messages"
	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// send seals c from p for recipient and drops it in their mailbox.
func send(t *testing.T, e *env, from *peer, to models.UserID, c messages.Content) {
	t.Helper()
	u, err := from.resolver.ResolveUser(context.Background(), to)
	require.NoError(t, err)
	body, err := messages.NewProtocol(from.device, from.resolver).SealFor(c, u.PublicKey)
	require.NoError(t, err)
	e.server.PushMessage(to, from.device.DeviceID, c.Timestamp, body)
}

func TestProcess_InvalidMessageIsSkipped(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.newPeer("alice"), e.newPeer("bob")
	p := messages.NewProtocol(alice.device, alice.resolver)

	e.server.PushMessage("bob", alice.device.DeviceID, e.clock.Now(), []byte("garbage"))
	send(t, e, alice, "bob", p.BuildPing("hello", e.clock.Now()))

	failures := bob.process(t)
	require.Len(t, failures, 1)
	assert.Equal(t, uint64(1), failures[0].Offset)
	assert.ErrorIs(t, failures[0], common.ErrInvalidMessage)

	pings := bob.events.ofType(EventPingReceived)
	require.Len(t, pings, 1)
	assert.Equal(t, "hello", pings[0].Ping)
	assert.Equal(t, uint64(2), bob.manifest(t).LastProcessedMessage)

	// Already processed messages are not replayed.
	assert.Empty(t, bob.process(t))
	assert.Len(t, bob.events.ofType(EventPingReceived), 1)
}

func TestProcess_MismatchedMailboxTimestampIsRejected(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.newPeer("alice"), e.newPeer("bob")
	p := messages.NewProtocol(alice.device, alice.resolver)

	c := p.BuildPing("hello", e.clock.Now())
	u, err := alice.resolver.ResolveUser(context.Background(), "bob")
	require.NoError(t, err)
	body, err := p.SealFor(c, u.PublicKey)
	require.NoError(t, err)
	e.server.PushMessage("bob", alice.device.DeviceID, e.clock.Now(), body)

	failures := bob.process(t)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], common.ErrInvalidMessage)
	assert.Empty(t, bob.events.ofType(EventPingReceived))
}

func TestProcess_GrantFromNonManagerIsRejected(t *testing.T) {
	e := newEnv(t)
	alice, bob, carol := e.newPeer("alice"), e.newPeer("bob"), e.newPeer("carol")
	ctx := context.Background()

	wid := alice.createWorkspace(t, "W")
	require.NoError(t, alice.fs.WorkspaceShare(ctx, wid, "bob", models.RoleContributor))
	require.NoError(t, alice.fs.WorkspaceShare(ctx, wid, "carol", models.RoleReader))
	bob.process(t)

	// bob is only a contributor, yet claims to grant the workspace.
	forged := bob.entry(t, wid).WithName("W")
	send(t, e, bob, "carol", messages.NewProtocol(bob.device, bob.resolver).BuildGranted(forged, e.clock.Now()))

	failures := carol.process(t)
	require.Len(t, failures, 1)
	assert.Equal(t, uint64(2), failures[0].Offset)
	assert.ErrorIs(t, failures[0], common.ErrSharingNotAllowed)

	got := carol.entry(t, wid)
	assert.Equal(t, "W (shared by alice)", got.Name)
	assert.Equal(t, models.RoleReader, got.Role)
	assert.Equal(t, uint64(2), carol.manifest(t).LastProcessedMessage)
}

func TestProcess_GrantAfterAccessLostIsIgnored(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.newPeer("alice"), e.newPeer("bob")
	ctx := context.Background()

	wid := alice.createWorkspace(t, "W")
	require.NoError(t, alice.fs.WorkspaceShare(ctx, wid, "bob", models.RoleReader))
	require.NoError(t, alice.fs.WorkspaceShare(ctx, wid, "bob", models.RoleNone))

	assert.Empty(t, bob.process(t))
	_, err := bob.fs.GetWorkspaceEntry(ctx, wid)
	require.ErrorIs(t, err, common.ErrWorkspaceNotFound)
	assert.Equal(t, uint64(2), bob.manifest(t).LastProcessedMessage)
}

func TestProcess_RevokeFromAnyoneOnlyAppliesWithoutAccess(t *testing.T) {
	e := newEnv(t)
	alice, bob, carol := e.newPeer("alice"), e.newPeer("bob"), e.newPeer("carol")
	ctx := context.Background()

	wid := alice.createWorkspace(t, "W")
	require.NoError(t, alice.fs.WorkspaceShare(ctx, wid, "bob", models.RoleReader))
	bob.process(t)

	// A revoke from someone else is harmless while bob still has access.
	send(t, e, carol, "bob", messages.NewProtocol(carol.device, carol.resolver).BuildRevoked(wid, e.clock.Now()))
	assert.Empty(t, bob.process(t))
	assert.Equal(t, models.RoleReader, bob.entry(t, wid).Role)

	// Replaying a revoke once access is gone is idempotent.
	require.NoError(t, alice.fs.WorkspaceShare(ctx, wid, "bob", models.RoleNone))
	send(t, e, carol, "bob", messages.NewProtocol(carol.device, carol.resolver).BuildRevoked(wid, e.clock.Now()))
	assert.Empty(t, bob.process(t))
	assert.Equal(t, models.RoleNone, bob.entry(t, wid).Role)
	assert.Equal(t, uint64(4), bob.manifest(t).LastProcessedMessage)
}

// offlineAfterFetch takes the server offline once the mailbox was read.
type offlineAfterFetch struct {
	client.Backend
	e *env
}

func (b offlineAfterFetch) MessageGet(ctx context.Context, offset uint64) ([]client.Message, error) {
	msgs, err := b.Backend.MessageGet(ctx, offset)
	b.e.server.SetOffline(true)
	return msgs, err
}

func TestProcess_OfflineMidBatchKeepsProgress(t *testing.T) {
	e := newEnv(t)
	alice, bob, carol := e.newPeer("alice"), e.newPeer("bob"), e.newPeer("carol")
	ctx := context.Background()

	// bob already knows alice, but will need the backend to check carol.
	_, err := bob.resolver.ResolveDevice(ctx, alice.device.DeviceID)
	require.NoError(t, err)

	send(t, e, alice, "bob", messages.NewProtocol(alice.device, alice.resolver).BuildPing("one", e.clock.Now()))
	send(t, e, carol, "bob", messages.NewProtocol(carol.device, carol.resolver).BuildPing("two", e.clock.Now()))

	bob.fs.backend = offlineAfterFetch{Backend: bob.fs.backend, e: e}
	failures, err := bob.fs.ProcessLastMessages(ctx)
	require.ErrorIs(t, err, common.ErrBackendOffline)
	assert.Empty(t, failures)
	assert.Equal(t, uint64(1), bob.manifest(t).LastProcessedMessage)

	e.server.SetOffline(false)
	bob.fs.backend = e.server.Client(bob.device.DeviceID)
	assert.Empty(t, bob.process(t))
	assert.Equal(t, uint64(2), bob.manifest(t).LastProcessedMessage)
	assert.Len(t, bob.events.ofType(EventPingReceived), 2)
}
