package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/cryptox"
)

// ErrDataValidation reports a payload whose signature is valid but whose
// content disagrees with what the backend asserted about it.
var ErrDataValidation = errors.New("data validation error")

func verifyAndUnmarshal(signed []byte, vk cryptox.VerifyKey, author DeviceID, ts time.Time, v any) (cryptox.Envelope, error) {
	env, err := cryptox.Verify(vk, signed)
	if err != nil {
		return cryptox.Envelope{}, err
	}
	if env.Author != string(author) {
		return cryptox.Envelope{}, fmt.Errorf("%w: author %q, expected %q", ErrDataValidation, env.Author, author)
	}
	if !ts.IsZero() && !env.Timestamp.Equal(ts) {
		return cryptox.Envelope{}, fmt.Errorf("%w: timestamp %s, expected %s", ErrDataValidation, env.Timestamp, ts)
	}
	if err := json.Unmarshal(env.Body, v); err != nil {
		return cryptox.Envelope{}, fmt.Errorf("%w: %v", ErrDataValidation, err)
	}
	return env, nil
}

// DumpSignAndEncrypt serializes the manifest, signs it as its author and
// encrypts it with key.
func (m UserManifest) DumpSignAndEncrypt(sk cryptox.SigningKey, key cryptox.SecretKey) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return key.Encrypt(cryptox.Sign(sk, string(m.Author), m.Timestamp, body)), nil
}

func (m WorkspaceManifest) DumpSignAndEncrypt(sk cryptox.SigningKey, key cryptox.SecretKey) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return key.Encrypt(cryptox.Sign(sk, string(m.Author), m.Timestamp, body)), nil
}

// ManifestExpectations are the facts the backend asserted about a vlob.
// A zero Version skips the version check.
type ManifestExpectations struct {
	ID        EntryID
	Author    DeviceID
	Timestamp time.Time
	Version   uint64
}

// VerifyUserManifest checks a decrypted manifest against its author's
// verify key and the backend's assertions.
func VerifyUserManifest(signed []byte, vk cryptox.VerifyKey, expected ManifestExpectations) (UserManifest, error) {
	var m UserManifest
	if _, err := verifyAndUnmarshal(signed, vk, expected.Author, expected.Timestamp, &m); err != nil {
		return UserManifest{}, err
	}
	if m.ID != expected.ID || m.Author != expected.Author || !m.Timestamp.Equal(expected.Timestamp) {
		return UserManifest{}, fmt.Errorf("%w: manifest header mismatch", ErrDataValidation)
	}
	if expected.Version != 0 && m.Version != expected.Version {
		return UserManifest{}, fmt.Errorf("%w: version %d, expected %d", ErrDataValidation, m.Version, expected.Version)
	}
	sortEntries(m.Workspaces)
	return m, nil
}
