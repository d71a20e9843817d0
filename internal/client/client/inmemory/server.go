// Package inmemory is an in-process backend honouring the protocol rules
// the sync engine relies on: vlob versioning, realm roles, reencryption
// maintenance and per-user mailboxes. Several devices share one Server,
// each talking to it through a Client bound to its identity.
package inmemory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/client/client"
	"github.com/gurjot03/parsec-cloud/internal/client/device"
	"github.com/gurjot03/parsec-cloud/internal/client/models"
)

type Server struct {
	mu        sync.Mutex
	offline   bool
	users     map[models.UserID]*client.UserRecord
	realms    map[models.EntryID]*realm
	vlobs     map[models.EntryID]*vlob
	mailboxes map[models.UserID][]client.Message
	calls     map[string]int

	// BeforeStartReencryption runs before each reencryption start request
	// is evaluated, outside of the server lock.
	BeforeStartReencryption func(realmID models.EntryID)
}

type realm struct {
	roles              map[models.UserID]models.RealmRole
	certificates       [][]byte
	encryptionRevision uint64
	maintenance        *maintenance
}

type maintenance struct {
	kind      client.MaintenanceType
	revision  uint64
	startedOn time.Time
	startedBy models.DeviceID
}

type vlob struct {
	realmID  models.EntryID
	versions []*vlobVersion
}

type vlobVersion struct {
	author    models.DeviceID
	timestamp time.Time
	blobs     map[uint64][]byte
}

func NewServer() *Server {
	return &Server{
		users:     make(map[models.UserID]*client.UserRecord),
		realms:    make(map[models.EntryID]*realm),
		vlobs:     make(map[models.EntryID]*vlob),
		mailboxes: make(map[models.UserID][]client.Message),
		calls:     make(map[string]int),
	}
}

// RegisterDevice publishes the device (and its user on first call).
func (s *Server) RegisterDevice(d *device.LocalDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[d.UserID()]
	if !ok {
		pub := d.PublicKey()
		u = &client.UserRecord{UserID: d.UserID(), PublicKey: pub[:]}
		s.users[d.UserID()] = u
	}
	u.Devices = append(u.Devices, client.DeviceRecord{DeviceID: d.DeviceID, VerifyKey: []byte(d.VerifyKey())})
}

// PutUserRecord stores a raw record, bypassing any validation.
func (s *Server) PutUserRecord(rec client.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[rec.UserID] = &rec
}

func (s *Server) RevokeUser(userID models.UserID, when time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.RevokedOn = &when
		for i := range u.Devices {
			u.Devices[i].RevokedOn = &when
		}
	}
}

func (s *Server) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// Calls returns how many times a command was received.
func (s *Server) Calls(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[command]
}

func (s *Server) RoleCertificates(realmID models.EntryID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.realms[realmID]; ok {
		return len(r.certificates)
	}
	return 0
}

func (s *Server) Role(realmID models.EntryID, userID models.UserID) models.RealmRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.realms[realmID]; ok {
		return r.roles[userID]
	}
	return models.RoleNone
}

func (s *Server) EncryptionRevision(realmID models.EntryID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.realms[realmID]; ok {
		return r.encryptionRevision
	}
	return 0
}

func (s *Server) VlobVersion(vlobID models.EntryID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.vlobs[vlobID]; ok {
		return uint64(len(v.versions))
	}
	return 0
}

// PushMessage appends a raw message to a user's mailbox.
func (s *Server) PushMessage(recipient models.UserID, sender models.DeviceID, ts time.Time, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushMessage(recipient, sender, ts, body)
}

func (s *Server) pushMessage(recipient models.UserID, sender models.DeviceID, ts time.Time, body []byte) {
	box := s.mailboxes[recipient]
	s.mailboxes[recipient] = append(box, client.Message{
		Offset:    uint64(len(box) + 1),
		Sender:    sender,
		Timestamp: ts,
		Body:      slices.Clone(body),
	})
}

// Client returns a Backend acting as the given device.
func (s *Server) Client(deviceID models.DeviceID) client.Backend {
	return &conn{s: s, device: deviceID}
}

func (s *Server) isRevoked(userID models.UserID) bool {
	u, ok := s.users[userID]
	return ok && u.RevokedOn != nil
}

func (s *Server) participants(r *realm) []models.UserID {
	out := make([]models.UserID, 0, len(r.roles))
	for userID, role := range r.roles {
		if role != models.RoleNone && !s.isRevoked(userID) {
			out = append(out, userID)
		}
	}
	slices.Sort(out)
	return out
}

// enter locks the server and counts the command. On error the lock is
// not held.
func (s *Server) enter(ctx context.Context, command string) error {
	s.mu.Lock()
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.offline {
		s.mu.Unlock()
		return client.ErrUnavailable
	}
	s.calls[command]++
	return nil
}

func cloneCertificates(certs [][]byte) [][]byte {
	out := make([][]byte, len(certs))
	for i, c := range certs {
		out[i] = slices.Clone(c)
	}
	return out
}

func sortedKeys(m map[models.UserID][]byte) []models.UserID {
	return slices.Sorted(maps.Keys(m))
}
