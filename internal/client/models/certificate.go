package models

import (
	"encoding/json"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/cryptox"
)

// RealmRoleCertificate records that Author gave Role on RealmID to UserID.
// A realm's first certificate is self-signed by its creator (OWNER).
type RealmRoleCertificate struct {
	Author    DeviceID  `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	RealmID   EntryID   `json:"realm_id"`
	UserID    UserID    `json:"user_id"`
	Role      RealmRole `json:"role"`
}

func BuildRealmRootCertificate(author DeviceID, realmID EntryID, now time.Time) RealmRoleCertificate {
	return RealmRoleCertificate{
		Author:    author,
		Timestamp: now,
		RealmID:   realmID,
		UserID:    author.UserID(),
		Role:      RoleOwner,
	}
}

func (c RealmRoleCertificate) DumpAndSign(sk cryptox.SigningKey) ([]byte, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return cryptox.Sign(sk, string(c.Author), c.Timestamp, body), nil
}

// VerifyRealmRoleCertificate checks the signature with the author's verify
// key and that the certificate is consistent with its envelope.
func VerifyRealmRoleCertificate(signed []byte, vk cryptox.VerifyKey, expectedAuthor DeviceID) (RealmRoleCertificate, error) {
	var c RealmRoleCertificate
	env, err := verifyAndUnmarshal(signed, vk, expectedAuthor, time.Time{}, &c)
	if err != nil {
		return RealmRoleCertificate{}, err
	}
	if c.Author != expectedAuthor || !c.Timestamp.Equal(env.Timestamp) || !c.Role.Valid() {
		return RealmRoleCertificate{}, ErrDataValidation
	}
	return c, nil
}

// UnsecureLoadRealmRoleCertificate decodes a certificate without checking
// its signature.
func UnsecureLoadRealmRoleCertificate(signed []byte) (RealmRoleCertificate, error) {
	env, err := cryptox.UnsecureUnwrap(signed)
	if err != nil {
		return RealmRoleCertificate{}, err
	}
	var c RealmRoleCertificate
	if err := json.Unmarshal(env.Body, &c); err != nil {
		return RealmRoleCertificate{}, err
	}
	return c, nil
}
