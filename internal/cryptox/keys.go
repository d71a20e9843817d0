package cryptox

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// KeySize is the size of Curve25519 and secretbox keys.
const KeySize = 32

type (
	// SigningKey is a device Ed25519 private key.
	SigningKey ed25519.PrivateKey
	// VerifyKey is the public half of a SigningKey.
	VerifyKey ed25519.PublicKey
	// PrivateKey is a user Curve25519 private key used to open messages.
	PrivateKey [KeySize]byte
	// PublicKey is the public half of a PrivateKey.
	PublicKey [KeySize]byte
	// SecretKey is a symmetric secretbox key.
	SecretKey [KeySize]byte
)

func GenerateSigningKey() (SigningKey, error) {
	_, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return SigningKey(sk), nil
}

func (k SigningKey) VerifyKey() VerifyKey {
	return VerifyKey(ed25519.PrivateKey(k).Public().(ed25519.PublicKey))
}

// ParseVerifyKey validates raw bytes as an Ed25519 public key.
func ParseVerifyKey(b []byte) (VerifyKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("verify key: %w", ErrKeySize)
	}
	return VerifyKey(append([]byte(nil), b...)), nil
}

func GeneratePrivateKey() (PrivateKey, error) {
	_, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return PrivateKey{}, err
	}
	return PrivateKey(*priv), nil
}

func (k PrivateKey) PublicKey() PublicKey {
	pub, err := curve25519.X25519(k[:], curve25519.Basepoint)
	if err != nil {
		// Only fails for low-order points, which clamped scalars never produce.
		panic(err)
	}
	var out PublicKey
	copy(out[:], pub)
	return out
}

func GenerateSecretKey() SecretKey {
	var k SecretKey
	if _, err := rand.Read(k[:]); err != nil {
		panic(err)
	}
	return k
}

func (k PrivateKey) MarshalText() ([]byte, error)  { return marshalKey(k[:]) }
func (k *PrivateKey) UnmarshalText(b []byte) error { return unmarshalKey(b, k[:]) }
func (k PublicKey) MarshalText() ([]byte, error)   { return marshalKey(k[:]) }
func (k *PublicKey) UnmarshalText(b []byte) error  { return unmarshalKey(b, k[:]) }
func (k SecretKey) MarshalText() ([]byte, error)   { return marshalKey(k[:]) }
func (k *SecretKey) UnmarshalText(b []byte) error  { return unmarshalKey(b, k[:]) }

func marshalKey(k []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(k)))
	base64.StdEncoding.Encode(out, k)
	return out, nil
}

func unmarshalKey(text []byte, dst []byte) error {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(raw, text)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return ErrKeySize
	}
	copy(dst, raw[:n])
	return nil
}
