package inmemory

import (
	"context"
	"slices"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/client/client"
	"github.com/gurjot03/parsec-cloud/internal/client/models"
)

type conn struct {
	s      *Server
	device models.DeviceID
}

var _ client.Backend = (*conn)(nil)

func (c *conn) user() models.UserID {
	return c.device.UserID()
}

func (c *conn) Ping(ctx context.Context) error {
	if err := c.s.enter(ctx, "ping"); err != nil {
		return err
	}
	c.s.mu.Unlock()
	return nil
}

// readableRealm checks the realm exists, the caller has a role on it and it
// is usable at the given encryption revision.
func (c *conn) readableRealm(realmID models.EntryID, encryptionRevision uint64) (*realm, error) {
	r, ok := c.s.realms[realmID]
	if !ok {
		return nil, client.ErrNotFound
	}
	if r.roles[c.user()] == models.RoleNone {
		return nil, client.ErrNotAllowed
	}
	if r.maintenance != nil {
		return nil, client.ErrInMaintenance
	}
	if encryptionRevision != r.encryptionRevision {
		return nil, client.ErrBadEncryptionRevision
	}
	return r, nil
}

func (c *conn) VlobRead(ctx context.Context, encryptionRevision uint64, vlobID models.EntryID, version uint64) (client.VlobReadResult, error) {
	if err := c.s.enter(ctx, "vlob_read"); err != nil {
		return client.VlobReadResult{}, err
	}
	defer c.s.mu.Unlock()

	v, ok := c.s.vlobs[vlobID]
	if !ok {
		return client.VlobReadResult{}, client.ErrNotFound
	}
	if _, err := c.readableRealm(v.realmID, encryptionRevision); err != nil {
		return client.VlobReadResult{}, err
	}
	if version == 0 {
		version = uint64(len(v.versions))
	}
	if version > uint64(len(v.versions)) {
		return client.VlobReadResult{}, client.ErrBadVersion
	}
	vv := v.versions[version-1]
	return client.VlobReadResult{
		Version:   version,
		Blob:      slices.Clone(vv.blobs[encryptionRevision]),
		Author:    vv.author,
		Timestamp: vv.timestamp,
	}, nil
}

func (c *conn) VlobCreate(ctx context.Context, realmID models.EntryID, encryptionRevision uint64, vlobID models.EntryID, timestamp time.Time, blob []byte) error {
	if err := c.s.enter(ctx, "vlob_create"); err != nil {
		return err
	}
	defer c.s.mu.Unlock()

	r, err := c.readableRealm(realmID, encryptionRevision)
	if err != nil {
		return err
	}
	if !r.roles[c.user()].CanWrite() {
		return client.ErrNotAllowed
	}
	if _, exists := c.s.vlobs[vlobID]; exists {
		return client.ErrAlreadyExists
	}
	c.s.vlobs[vlobID] = &vlob{
		realmID: realmID,
		versions: []*vlobVersion{{
			author:    c.device,
			timestamp: timestamp,
			blobs:     map[uint64][]byte{encryptionRevision: slices.Clone(blob)},
		}},
	}
	return nil
}

func (c *conn) VlobUpdate(ctx context.Context, encryptionRevision uint64, vlobID models.EntryID, version uint64, timestamp time.Time, blob []byte) error {
	if err := c.s.enter(ctx, "vlob_update"); err != nil {
		return err
	}
	defer c.s.mu.Unlock()

	v, ok := c.s.vlobs[vlobID]
	if !ok {
		return client.ErrNotFound
	}
	r, err := c.readableRealm(v.realmID, encryptionRevision)
	if err != nil {
		return err
	}
	if !r.roles[c.user()].CanWrite() {
		return client.ErrNotAllowed
	}
	if version != uint64(len(v.versions))+1 {
		return client.ErrBadVersion
	}
	v.versions = append(v.versions, &vlobVersion{
		author:    c.device,
		timestamp: timestamp,
		blobs:     map[uint64][]byte{encryptionRevision: slices.Clone(blob)},
	})
	return nil
}

func (c *conn) RealmCreate(ctx context.Context, roleCertificate []byte) error {
	cert, err := models.UnsecureLoadRealmRoleCertificate(roleCertificate)
	if err != nil {
		return client.ErrBadResponse
	}
	if err := c.s.enter(ctx, "realm_create"); err != nil {
		return err
	}
	defer c.s.mu.Unlock()

	if cert.Author != c.device || cert.UserID != c.user() || cert.Role != models.RoleOwner {
		return client.ErrNotAllowed
	}
	if _, exists := c.s.realms[cert.RealmID]; exists {
		return client.ErrAlreadyExists
	}
	c.s.realms[cert.RealmID] = &realm{
		roles:              map[models.UserID]models.RealmRole{cert.UserID: models.RoleOwner},
		certificates:       [][]byte{slices.Clone(roleCertificate)},
		encryptionRevision: 1,
	}
	return nil
}

func (c *conn) RealmUpdateRoles(ctx context.Context, roleCertificate []byte, recipientMessage []byte) error {
	cert, err := models.UnsecureLoadRealmRoleCertificate(roleCertificate)
	if err != nil {
		return client.ErrBadResponse
	}
	if err := c.s.enter(ctx, "realm_update_roles"); err != nil {
		return err
	}
	defer c.s.mu.Unlock()

	r, ok := c.s.realms[cert.RealmID]
	if !ok {
		return client.ErrNotFound
	}
	callerRole := r.roles[c.user()]
	if cert.Author != c.device || cert.UserID == c.user() || !callerRole.CanShare() {
		return client.ErrNotAllowed
	}
	existing := r.roles[cert.UserID]
	if callerRole == models.RoleManager && (cert.Role.CanShare() || existing.CanShare()) {
		return client.ErrNotAllowed
	}
	if r.maintenance != nil {
		return client.ErrInMaintenance
	}
	if existing == cert.Role {
		return client.ErrRoleAlreadyGranted
	}

	if cert.Role == models.RoleNone {
		delete(r.roles, cert.UserID)
	} else {
		r.roles[cert.UserID] = cert.Role
	}
	r.certificates = append(r.certificates, slices.Clone(roleCertificate))
	if recipientMessage != nil {
		c.s.pushMessage(cert.UserID, c.device, cert.Timestamp, recipientMessage)
	}
	return nil
}

func (c *conn) RealmStatus(ctx context.Context, realmID models.EntryID) (client.RealmStatus, error) {
	if err := c.s.enter(ctx, "realm_status"); err != nil {
		return client.RealmStatus{}, err
	}
	defer c.s.mu.Unlock()

	r, ok := c.s.realms[realmID]
	if !ok {
		return client.RealmStatus{}, client.ErrNotFound
	}
	if r.roles[c.user()] == models.RoleNone {
		return client.RealmStatus{}, client.ErrNotAllowed
	}
	st := client.RealmStatus{EncryptionRevision: r.encryptionRevision}
	if m := r.maintenance; m != nil {
		startedOn := m.startedOn
		st.InMaintenance = true
		st.MaintenanceType = m.kind
		st.MaintenanceStartedOn = &startedOn
		st.MaintenanceStartedBy = m.startedBy
		st.EncryptionRevision = m.revision
	}
	return st, nil
}

func (c *conn) RealmGetRoleCertificates(ctx context.Context, realmID models.EntryID) ([][]byte, error) {
	if err := c.s.enter(ctx, "realm_get_role_certificates"); err != nil {
		return nil, err
	}
	defer c.s.mu.Unlock()

	r, ok := c.s.realms[realmID]
	if !ok {
		return nil, client.ErrNotFound
	}
	if r.roles[c.user()] == models.RoleNone {
		return nil, client.ErrNotAllowed
	}
	return cloneCertificates(r.certificates), nil
}

func (c *conn) RealmStartReencryptionMaintenance(ctx context.Context, realmID models.EntryID, encryptionRevision uint64, timestamp time.Time, perParticipantMessage map[models.UserID][]byte) error {
	if hook := c.s.BeforeStartReencryption; hook != nil {
		hook(realmID)
	}
	if err := c.s.enter(ctx, "realm_start_reencryption_maintenance"); err != nil {
		return err
	}
	defer c.s.mu.Unlock()

	r, ok := c.s.realms[realmID]
	if !ok {
		return client.ErrNotFound
	}
	if r.roles[c.user()] != models.RoleOwner {
		return client.ErrNotAllowed
	}
	if r.maintenance != nil {
		return client.ErrInMaintenance
	}
	if encryptionRevision != r.encryptionRevision+1 {
		return client.ErrBadEncryptionRevision
	}
	if !slices.Equal(c.s.participants(r), sortedKeys(perParticipantMessage)) {
		return client.ErrParticipantsMismatch
	}

	r.maintenance = &maintenance{
		kind:      client.MaintenanceReencryption,
		revision:  encryptionRevision,
		startedOn: timestamp,
		startedBy: c.device,
	}
	for _, userID := range sortedKeys(perParticipantMessage) {
		c.s.pushMessage(userID, c.device, timestamp, perParticipantMessage[userID])
	}
	return nil
}

// maintainedRealm checks the caller may drive the reencryption of the realm
// at the given revision.
func (c *conn) maintainedRealm(realmID models.EntryID, encryptionRevision uint64) (*realm, error) {
	r, ok := c.s.realms[realmID]
	if !ok {
		return nil, client.ErrNotFound
	}
	if r.roles[c.user()] != models.RoleOwner {
		return nil, client.ErrNotAllowed
	}
	if r.maintenance == nil || r.maintenance.kind != client.MaintenanceReencryption {
		return nil, client.ErrNotInMaintenance
	}
	if r.maintenance.revision != encryptionRevision {
		return nil, client.ErrBadEncryptionRevision
	}
	return r, nil
}

func (c *conn) realmVersions(realmID models.EntryID) (map[models.EntryID]*vlob, []models.EntryID) {
	vlobs := make(map[models.EntryID]*vlob)
	ids := make([]models.EntryID, 0)
	for id, v := range c.s.vlobs {
		if v.realmID == realmID {
			vlobs[id] = v
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return vlobs, ids
}

func (c *conn) progress(realmID models.EntryID, revision uint64) (total, done int) {
	vlobs, _ := c.realmVersions(realmID)
	for _, v := range vlobs {
		for _, vv := range v.versions {
			total++
			if _, ok := vv.blobs[revision]; ok {
				done++
			}
		}
	}
	return total, done
}

func (c *conn) RealmFinishReencryptionMaintenance(ctx context.Context, realmID models.EntryID, encryptionRevision uint64) error {
	if err := c.s.enter(ctx, "realm_finish_reencryption_maintenance"); err != nil {
		return err
	}
	defer c.s.mu.Unlock()

	r, err := c.maintainedRealm(realmID, encryptionRevision)
	if err != nil {
		return err
	}
	if total, done := c.progress(realmID, encryptionRevision); total != done {
		return client.ErrBadResponse
	}
	r.encryptionRevision = encryptionRevision
	r.maintenance = nil
	return nil
}

func (c *conn) VlobMaintenanceGetReencryptionBatch(ctx context.Context, realmID models.EntryID, encryptionRevision uint64, size int) ([]client.ReencryptionBatchEntry, error) {
	if err := c.s.enter(ctx, "vlob_maintenance_get_reencryption_batch"); err != nil {
		return nil, err
	}
	defer c.s.mu.Unlock()

	r, err := c.maintainedRealm(realmID, encryptionRevision)
	if err != nil {
		return nil, err
	}
	vlobs, ids := c.realmVersions(realmID)
	batch := make([]client.ReencryptionBatchEntry, 0, size)
	for _, id := range ids {
		for i, vv := range vlobs[id].versions {
			if len(batch) == size {
				return batch, nil
			}
			if _, done := vv.blobs[encryptionRevision]; done {
				continue
			}
			batch = append(batch, client.ReencryptionBatchEntry{
				VlobID:  id,
				Version: uint64(i + 1),
				Blob:    slices.Clone(vv.blobs[r.encryptionRevision]),
			})
		}
	}
	return batch, nil
}

func (c *conn) VlobMaintenanceSaveReencryptionBatch(ctx context.Context, realmID models.EntryID, encryptionRevision uint64, batch []client.ReencryptionBatchEntry) (int, int, error) {
	if err := c.s.enter(ctx, "vlob_maintenance_save_reencryption_batch"); err != nil {
		return 0, 0, err
	}
	defer c.s.mu.Unlock()

	if _, err := c.maintainedRealm(realmID, encryptionRevision); err != nil {
		return 0, 0, err
	}
	for _, item := range batch {
		v, ok := c.s.vlobs[item.VlobID]
		if !ok || v.realmID != realmID || item.Version == 0 || item.Version > uint64(len(v.versions)) {
			continue
		}
		v.versions[item.Version-1].blobs[encryptionRevision] = slices.Clone(item.Blob)
	}
	total, done := c.progress(realmID, encryptionRevision)
	return total, done, nil
}

func (c *conn) MessageGet(ctx context.Context, offset uint64) ([]client.Message, error) {
	if err := c.s.enter(ctx, "message_get"); err != nil {
		return nil, err
	}
	defer c.s.mu.Unlock()

	box := c.s.mailboxes[c.user()]
	if offset >= uint64(len(box)) {
		return nil, nil
	}
	out := make([]client.Message, 0, uint64(len(box))-offset)
	for _, m := range box[offset:] {
		m.Body = slices.Clone(m.Body)
		out = append(out, m)
	}
	return out, nil
}

func (c *conn) UserGet(ctx context.Context, userID models.UserID) (client.UserRecord, error) {
	if err := c.s.enter(ctx, "user_get"); err != nil {
		return client.UserRecord{}, err
	}
	defer c.s.mu.Unlock()

	u, ok := c.s.users[userID]
	if !ok {
		return client.UserRecord{}, client.ErrNotFound
	}
	out := *u
	out.PublicKey = slices.Clone(u.PublicKey)
	out.Devices = slices.Clone(u.Devices)
	return out, nil
}
