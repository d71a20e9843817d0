// Package device holds the local device identity: the keys this device
// signs with, the user keys shared by all of the user's devices, and the
// passphrase-protected key file they are stored in.
package device

import (
	"fmt"

	"github.com/gurjot03/parsec-cloud/internal/client/models"
	"github.com/gurjot03/parsec-cloud/internal/cryptox"
)

// LocalDevice is the identity of the running device.
type LocalDevice struct {
	DeviceID   models.DeviceID    `json:"device_id"`
	SigningKey cryptox.SigningKey `json:"signing_key"`
	PrivateKey cryptox.PrivateKey `json:"private_key"`

	// UserManifestID and UserManifestKey are shared by every device of the
	// user so that they all read and write the same user manifest.
	UserManifestID  models.EntryID    `json:"user_manifest_id"`
	UserManifestKey cryptox.SecretKey `json:"user_manifest_key"`

	// LocalSymkey encrypts this device's local caches.
	LocalSymkey cryptox.SecretKey `json:"local_symkey"`
}

func (d *LocalDevice) UserID() models.UserID {
	return d.DeviceID.UserID()
}

func (d *LocalDevice) VerifyKey() cryptox.VerifyKey {
	return d.SigningKey.VerifyKey()
}

func (d *LocalDevice) PublicKey() cryptox.PublicKey {
	return d.PrivateKey.PublicKey()
}

// UserKeys is the material common to all devices of one user.
type UserKeys struct {
	UserID          models.UserID
	PrivateKey      cryptox.PrivateKey
	UserManifestID  models.EntryID
	UserManifestKey cryptox.SecretKey
}

// GenerateUser creates fresh keys for a new user.
func GenerateUser(userID models.UserID) (UserKeys, error) {
	if !models.ValidUserID(userID) {
		return UserKeys{}, fmt.Errorf("invalid user id %q", userID)
	}
	priv, err := cryptox.GeneratePrivateKey()
	if err != nil {
		return UserKeys{}, err
	}
	return UserKeys{
		UserID:          userID,
		PrivateKey:      priv,
		UserManifestID:  models.NewEntryID(),
		UserManifestKey: cryptox.GenerateSecretKey(),
	}, nil
}

// NewDevice creates a device of the user with its own signing key.
func (u UserKeys) NewDevice(name models.DeviceName) (*LocalDevice, error) {
	id, err := models.ParseDeviceID(string(models.NewDeviceID(u.UserID, name)))
	if err != nil {
		return nil, err
	}
	sk, err := cryptox.GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	return &LocalDevice{
		DeviceID:        id,
		SigningKey:      sk,
		PrivateKey:      u.PrivateKey,
		UserManifestID:  u.UserManifestID,
		UserManifestKey: u.UserManifestKey,
		LocalSymkey:     cryptox.GenerateSecretKey(),
	}, nil
}
