package cryptox

import "golang.org/x/crypto/argon2"

// DeriveKey stretches a passphrase into a SecretKey with argon2id.
func DeriveKey(password []byte, salt []byte) SecretKey {
	var k SecretKey
	copy(k[:], argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize))
	return k
}
