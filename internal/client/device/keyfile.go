package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gurjot03/parsec-cloud/internal/common"
	"github.com/gurjot03/parsec-cloud/internal/cryptox"
	"github.com/gurjot03/parsec-cloud/internal/filex"
)

const saltSize = 16

// ErrBadPassphrase is returned when the key file cannot be opened with the
// given passphrase.
var ErrBadPassphrase = errors.New("bad passphrase or corrupted key file")

type keyFile struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Ciphertext []byte `json:"ciphertext"`
}

// SaveKeyFile writes d to path, encrypted with a key derived from password.
func SaveKeyFile(path string, d *LocalDevice, password []byte) error {
	salt := common.GenerateRandByteArray(saltSize)
	key := cryptox.DeriveKey(password, salt)

	ciphertext, err := cryptox.EncryptJSON(d, key)
	if err != nil {
		return fmt.Errorf("encrypt device: %w", err)
	}

	data, err := json.Marshal(keyFile{Version: 1, Salt: salt, Ciphertext: ciphertext})
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(path, data, 0o600)
}

// LoadKeyFile reads a key file written by SaveKeyFile.
func LoadKeyFile(path string, password []byte) (*LocalDevice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	if kf.Version != 1 {
		return nil, fmt.Errorf("unsupported key file version %d", kf.Version)
	}

	var d LocalDevice
	if err := cryptox.DecryptJSON(kf.Ciphertext, cryptox.DeriveKey(password, kf.Salt), &d); err != nil {
		if errors.Is(err, cryptox.ErrDecryption) {
			return nil, ErrBadPassphrase
		}
		return nil, err
	}
	return &d, nil
}
