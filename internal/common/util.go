package common

import "crypto/rand"

// GenerateRandByteArray returns n cryptographically random bytes.
// It panics if the system random source fails, which only happens on a
// broken platform.
func GenerateRandByteArray(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// It is used to drop passphrases from memory once a key has been derived.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
