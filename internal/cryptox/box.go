package cryptox

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// EncryptFor seals data so that only the owner of the private key matching
// pub can open it. The sender stays anonymous; authentication comes from
// the signature carried inside data.
func EncryptFor(pub PublicKey, data []byte) ([]byte, error) {
	p := [KeySize]byte(pub)
	return box.SealAnonymous(nil, data, &p, rand.Reader)
}

// DecryptFor opens a box produced by EncryptFor.
func DecryptFor(priv PrivateKey, ciphered []byte) ([]byte, error) {
	pub := [KeySize]byte(priv.PublicKey())
	pk := [KeySize]byte(priv)
	out, ok := box.OpenAnonymous(nil, ciphered, &pub, &pk)
	if !ok {
		return nil, ErrDecryption
	}
	return out, nil
}

// Encrypt seals data with a random nonce, returned as a prefix of the
// ciphertext.
func (k SecretKey) Encrypt(data []byte) []byte {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		panic(err)
	}
	key := [KeySize]byte(k)
	return secretbox.Seal(nonce[:], data, &nonce, &key)
}

func (k SecretKey) Decrypt(ciphered []byte) ([]byte, error) {
	if len(ciphered) < nonceSize+secretbox.Overhead {
		return nil, ErrDecryption
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphered[:nonceSize])
	key := [KeySize]byte(k)
	out, ok := secretbox.Open(nil, ciphered[nonceSize:], &nonce, &key)
	if !ok {
		return nil, ErrDecryption
	}
	return out, nil
}

// EncryptJSON serializes v to JSON and seals it with key.
//
// Example:
//
//	blob, err := cryptox.EncryptJSON(remoteUser, device.LocalSymkey)
//	...
//	var u trust.RemoteUser
//	err = cryptox.DecryptJSON(blob, device.LocalSymkey, &u)
func EncryptJSON(v any, key SecretKey) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return key.Encrypt(plaintext), nil
}

// DecryptJSON opens a blob produced by EncryptJSON and unmarshals it into v.
func DecryptJSON(ciphered []byte, key SecretKey, v any) error {
	plaintext, err := key.Decrypt(ciphered)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
