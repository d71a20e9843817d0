package client

import (
	"time"

	"github.com/gurjot03/parsec-cloud/internal/client/models"
)

const servicePrefix = "/parsec.backend.v1.Backend/"

const (
	methodPing                      = servicePrefix + "Ping"
	methodVlobRead                  = servicePrefix + "VlobRead"
	methodVlobCreate                = servicePrefix + "VlobCreate"
	methodVlobUpdate                = servicePrefix + "VlobUpdate"
	methodRealmCreate               = servicePrefix + "RealmCreate"
	methodRealmUpdateRoles          = servicePrefix + "RealmUpdateRoles"
	methodRealmStatus               = servicePrefix + "RealmStatus"
	methodRealmGetRoleCertificates  = servicePrefix + "RealmGetRoleCertificates"
	methodRealmStartReencryption    = servicePrefix + "RealmStartReencryptionMaintenance"
	methodRealmFinishReencryption   = servicePrefix + "RealmFinishReencryptionMaintenance"
	methodVlobGetReencryptionBatch  = servicePrefix + "VlobMaintenanceGetReencryptionBatch"
	methodVlobSaveReencryptionBatch = servicePrefix + "VlobMaintenanceSaveReencryptionBatch"
	methodMessageGet                = servicePrefix + "MessageGet"
	methodUserGet                   = servicePrefix + "UserGet"
)

type empty struct{}

type pingResponse struct {
	Status string `json:"status"`
}

type vlobReadRequest struct {
	EncryptionRevision uint64         `json:"encryption_revision"`
	VlobID             models.EntryID `json:"vlob_id"`
	Version            uint64         `json:"version,omitempty"`
}

type vlobCreateRequest struct {
	RealmID            models.EntryID `json:"realm_id"`
	EncryptionRevision uint64         `json:"encryption_revision"`
	VlobID             models.EntryID `json:"vlob_id"`
	Timestamp          time.Time      `json:"timestamp"`
	Blob               []byte         `json:"blob"`
}

type vlobUpdateRequest struct {
	EncryptionRevision uint64         `json:"encryption_revision"`
	VlobID             models.EntryID `json:"vlob_id"`
	Version            uint64         `json:"version"`
	Timestamp          time.Time      `json:"timestamp"`
	Blob               []byte         `json:"blob"`
}

type realmCreateRequest struct {
	RoleCertificate []byte `json:"role_certificate"`
}

type realmUpdateRolesRequest struct {
	RoleCertificate  []byte `json:"role_certificate"`
	RecipientMessage []byte `json:"recipient_message,omitempty"`
}

type realmRequest struct {
	RealmID models.EntryID `json:"realm_id"`
}

type roleCertificatesResponse struct {
	Certificates [][]byte `json:"certificates"`
}

type startReencryptionRequest struct {
	RealmID               models.EntryID           `json:"realm_id"`
	EncryptionRevision    uint64                   `json:"encryption_revision"`
	Timestamp             time.Time                `json:"timestamp"`
	PerParticipantMessage map[models.UserID][]byte `json:"per_participant_message"`
}

type finishReencryptionRequest struct {
	RealmID            models.EntryID `json:"realm_id"`
	EncryptionRevision uint64         `json:"encryption_revision"`
}

type getReencryptionBatchRequest struct {
	RealmID            models.EntryID `json:"realm_id"`
	EncryptionRevision uint64         `json:"encryption_revision"`
	Size               int            `json:"size"`
}

type reencryptionBatchResponse struct {
	Batch []ReencryptionBatchEntry `json:"batch"`
}

type saveReencryptionBatchRequest struct {
	RealmID            models.EntryID           `json:"realm_id"`
	EncryptionRevision uint64                   `json:"encryption_revision"`
	Batch              []ReencryptionBatchEntry `json:"batch"`
}

type saveReencryptionBatchResponse struct {
	Total int `json:"total"`
	Done  int `json:"done"`
}

type messageGetRequest struct {
	Offset uint64 `json:"offset"`
}

type messageGetResponse struct {
	Messages []Message `json:"messages"`
}

type userGetRequest struct {
	UserID models.UserID `json:"user_id"`
}
