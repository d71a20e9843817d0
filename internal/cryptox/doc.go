// Package cryptox implements the cryptographic envelope used by the sync
// engine: Ed25519 signatures over a small protowire record, anonymous NaCl
// sealed boxes for messages addressed to a user, NaCl secretbox for
// manifests and local storage, and argon2id for passphrase-derived keys.
//
// Every function is stateless; keys are plain values.
package cryptox

import "errors"

var (
	ErrSignature  = errors.New("invalid signature")
	ErrDecryption = errors.New("decryption failed")
	ErrEnvelope   = errors.New("malformed envelope")
	ErrKeySize    = errors.New("invalid key size")
)
