package client

import (
	"context"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/client/models"
)

// Backend is the set of commands the sync engine sends to the server.
// Every call is made on behalf of the authenticated device.
type Backend interface {
	Ping(ctx context.Context) error

	// VlobRead returns the given version of a vlob, or the latest one when
	// version is 0.
	VlobRead(ctx context.Context, encryptionRevision uint64, vlobID models.EntryID, version uint64) (VlobReadResult, error)
	VlobCreate(ctx context.Context, realmID models.EntryID, encryptionRevision uint64, vlobID models.EntryID, timestamp time.Time, blob []byte) error
	VlobUpdate(ctx context.Context, encryptionRevision uint64, vlobID models.EntryID, version uint64, timestamp time.Time, blob []byte) error

	RealmCreate(ctx context.Context, roleCertificate []byte) error
	// RealmUpdateRoles stores a role certificate and, when recipientMessage
	// is non-nil, delivers it to the certificate's user mailbox.
	RealmUpdateRoles(ctx context.Context, roleCertificate []byte, recipientMessage []byte) error
	RealmStatus(ctx context.Context, realmID models.EntryID) (RealmStatus, error)
	RealmGetRoleCertificates(ctx context.Context, realmID models.EntryID) ([][]byte, error)

	RealmStartReencryptionMaintenance(ctx context.Context, realmID models.EntryID, encryptionRevision uint64, timestamp time.Time, perParticipantMessage map[models.UserID][]byte) error
	RealmFinishReencryptionMaintenance(ctx context.Context, realmID models.EntryID, encryptionRevision uint64) error
	VlobMaintenanceGetReencryptionBatch(ctx context.Context, realmID models.EntryID, encryptionRevision uint64, size int) ([]ReencryptionBatchEntry, error)
	VlobMaintenanceSaveReencryptionBatch(ctx context.Context, realmID models.EntryID, encryptionRevision uint64, batch []ReencryptionBatchEntry) (total, done int, err error)

	// MessageGet returns the mailbox messages with an offset greater than
	// offset, in order.
	MessageGet(ctx context.Context, offset uint64) ([]Message, error)
	UserGet(ctx context.Context, userID models.UserID) (UserRecord, error)
}

type VlobReadResult struct {
	Version   uint64          `json:"version"`
	Blob      []byte          `json:"blob"`
	Author    models.DeviceID `json:"author"`
	Timestamp time.Time       `json:"timestamp"`
}

type MaintenanceType string

const (
	MaintenanceReencryption      MaintenanceType = "REENCRYPTION"
	MaintenanceGarbageCollection MaintenanceType = "GARBAGE_COLLECTION"
)

type RealmStatus struct {
	InMaintenance        bool            `json:"in_maintenance"`
	MaintenanceType      MaintenanceType `json:"maintenance_type,omitempty"`
	MaintenanceStartedOn *time.Time      `json:"maintenance_started_on,omitempty"`
	MaintenanceStartedBy models.DeviceID `json:"maintenance_started_by,omitempty"`
	EncryptionRevision   uint64          `json:"encryption_revision"`
}

type ReencryptionBatchEntry struct {
	VlobID  models.EntryID `json:"vlob_id"`
	Version uint64         `json:"version"`
	Blob    []byte         `json:"blob"`
}

// Message is one mailbox entry. Timestamp is asserted by the backend and
// must match the timestamp signed inside Body.
type Message struct {
	Offset    uint64          `json:"offset"`
	Sender    models.DeviceID `json:"sender"`
	Timestamp time.Time       `json:"timestamp"`
	Body      []byte          `json:"body"`
}

// UserRecord is the backend's unverified view of a user. Keys are raw so
// that the trust layer can reject malformed records.
type UserRecord struct {
	UserID    models.UserID  `json:"user_id"`
	PublicKey []byte         `json:"public_key"`
	RevokedOn *time.Time     `json:"revoked_on,omitempty"`
	Devices   []DeviceRecord `json:"devices"`
}

type DeviceRecord struct {
	DeviceID  models.DeviceID `json:"device_id"`
	VerifyKey []byte          `json:"verify_key"`
	RevokedOn *time.Time      `json:"revoked_on,omitempty"`
}
