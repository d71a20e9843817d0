package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/client/client/inmemory"
	"github.com/gurjot03/parsec-cloud/internal/client/device"
	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/client/repositories"
	"github.com/gurjot03/parsec-cloud/internal/client/repositories/manifests"
	"github.com/gurjot03/parsec-cloud/internal/client/repositories/usercache"
	"github.com/gurjot03/parsec-cloud/internal/client/trust"
	"github.com/gurjot03/parsec-cloud/internal/logging"
	"github.com/stretchr/testify/require"
)

// clock hands out strictly increasing instants shared by all devices of a
// test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type env struct {
	t      *testing.T
	server *inmemory.Server
	clock  *clock
}

type peer struct {
	device   *device.LocalDevice
	fs       *UserFS
	resolver *trust.Resolver
	events   *recorder
}

func newEnv(t *testing.T) *env {
	return &env{
		t:      t,
		server: inmemory.NewServer(),
		clock:  &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
}

func (e *env) newUser(user models.UserID) device.UserKeys {
	e.t.Helper()
	keys, err := device.GenerateUser(user)
	require.NoError(e.t, err)
	return keys
}

func (e *env) newDevice(keys device.UserKeys, name models.DeviceName) *peer {
	e.t.Helper()
	d, err := keys.NewDevice(name)
	require.NoError(e.t, err)
	e.server.RegisterDevice(d)

	db, err := repositories.InitDatabase(context.Background(), ":memory:")
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = db.Close() })

	backend := e.server.Client(d.DeviceID)
	resolver := trust.NewResolver(d, backend, usercache.NewSQLiteRepository(db), logging.Discard())
	rec := &recorder{}
	fs := NewUserFS(d, backend, manifests.NewInMemoryRepository(), resolver,
		WithClock(e.clock.Now),
		WithObserver(rec),
		WithBatchSize(2),
	)
	return &peer{device: d, fs: fs, resolver: resolver, events: rec}
}

// newPeer creates a user with a single device.
func (e *env) newPeer(user models.UserID) *peer {
	return e.newDevice(e.newUser(user), "laptop")
}

func (p *peer) manifest(t *testing.T) models.LocalUserManifest {
	t.Helper()
	m, err := p.fs.GetUserManifest(context.Background())
	require.NoError(t, err)
	return m
}

func (p *peer) entry(t *testing.T, id models.EntryID) models.WorkspaceEntry {
	t.Helper()
	e, err := p.fs.GetWorkspaceEntry(context.Background(), id)
	require.NoError(t, err)
	return e
}

func (p *peer) process(t *testing.T) []MessageError {
	t.Helper()
	failures, err := p.fs.ProcessLastMessages(context.Background())
	require.NoError(t, err)
	return failures
}

func (p *peer) createWorkspace(t *testing.T, name string) models.EntryID {
	t.Helper()
	id, err := p.fs.WorkspaceCreate(context.Background(), name)
	require.NoError(t, err)
	return id
}

func TestCtxLock_WaitHonoursCancellation(t *testing.T) {
	l := newCtxLock()
	require.NoError(t, l.Lock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.Lock(ctx), context.DeadlineExceeded)

	l.Unlock()
	require.NoError(t, l.Lock(context.Background()))
	l.Unlock()
}

func TestChannelObserver_DropsWhenFull(t *testing.T) {
	ch := make(ChannelObserver, 1)
	ch.Notify(Event{Type: EventPingReceived, Ping: "a"})
	ch.Notify(Event{Type: EventPingReceived, Ping: "b"})

	require.Len(t, ch, 1)
	require.Equal(t, "a", (<-ch).Ping)
}
