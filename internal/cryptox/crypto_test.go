package cryptox

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(password, salt)
	key2 := DeriveKey(password, salt)

	if key1 != key2 {
		t.Errorf("expected same result for same inputs, got different")
	}
}

func TestDeriveKey_DifferentInputs(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveKey(password, []byte("salt-1"))
	key2 := DeriveKey(password, []byte("salt-2"))

	if key1 == key2 {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	sk, err := GenerateSigningKey()
	require.NoError(t, err)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

	signed := Sign(sk, "alice@laptop", ts, []byte("payload"))

	env, err := Verify(sk.VerifyKey(), signed)
	require.NoError(t, err)
	assert.Equal(t, "alice@laptop", env.Author)
	assert.True(t, env.Timestamp.Equal(ts))
	assert.Equal(t, []byte("payload"), env.Body)
}

func TestVerify_RejectsAnyByteFlip(t *testing.T) {
	sk, err := GenerateSigningKey()
	require.NoError(t, err)
	signed := Sign(sk, "alice@laptop", time.Now(), []byte("payload"))

	for i := range signed {
		tampered := bytes.Clone(signed)
		tampered[i] ^= 0x01
		_, err := Verify(sk.VerifyKey(), tampered)
		require.ErrorIs(t, err, ErrSignature, "byte %d", i)
	}
}

func TestVerify_WrongKey(t *testing.T) {
	sk, err := GenerateSigningKey()
	require.NoError(t, err)
	other, err := GenerateSigningKey()
	require.NoError(t, err)

	signed := Sign(sk, "alice@laptop", time.Now(), []byte("payload"))
	_, err = Verify(other.VerifyKey(), signed)
	require.ErrorIs(t, err, ErrSignature)

	_, err = Verify(sk.VerifyKey(), []byte("short"))
	require.ErrorIs(t, err, ErrSignature)
}

func TestUnsecureUnwrap_ExposesAuthor(t *testing.T) {
	sk, err := GenerateSigningKey()
	require.NoError(t, err)

	env, err := UnsecureUnwrap(Sign(sk, "bob@phone", time.Now(), nil))
	require.NoError(t, err)
	assert.Equal(t, "bob@phone", env.Author)

	_, err = UnsecureUnwrap(make([]byte, 10))
	require.ErrorIs(t, err, ErrEnvelope)

	_, err = UnsecureUnwrap(make([]byte, 64))
	require.ErrorIs(t, err, ErrEnvelope)
}

func TestEncryptFor_RoundTripAndTamper(t *testing.T) {
	priv, err := GeneratePrivateKey()
	require.NoError(t, err)

	ciphered, err := EncryptFor(priv.PublicKey(), []byte("hello"))
	require.NoError(t, err)

	out, err := DecryptFor(priv, ciphered)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), out)

	for i := range ciphered {
		tampered := bytes.Clone(ciphered)
		tampered[i] ^= 0x80
		_, err := DecryptFor(priv, tampered)
		require.ErrorIs(t, err, ErrDecryption, "byte %d", i)
	}

	other, err := GeneratePrivateKey()
	require.NoError(t, err)
	_, err = DecryptFor(other, ciphered)
	require.ErrorIs(t, err, ErrDecryption)
}

func TestSecretKey_RoundTripAndTamper(t *testing.T) {
	key := GenerateSecretKey()

	ciphered := key.Encrypt([]byte("manifest"))
	out, err := key.Decrypt(ciphered)
	require.NoError(t, err)
	assert.Equal(t, []byte("manifest"), out)

	for i := range ciphered {
		tampered := bytes.Clone(ciphered)
		tampered[i] ^= 0x01
		_, err := key.Decrypt(tampered)
		require.ErrorIs(t, err, ErrDecryption, "byte %d", i)
	}

	_, err = GenerateSecretKey().Decrypt(ciphered)
	require.ErrorIs(t, err, ErrDecryption)

	_, err = key.Decrypt([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrDecryption)
}

func TestEncryptJSON_RoundTrip(t *testing.T) {
	type item struct {
		ID   int       `json:"id"`
		Key  SecretKey `json:"key"`
		Name string    `json:"name"`
	}
	key := GenerateSecretKey()
	in := item{ID: 1, Key: GenerateSecretKey(), Name: "Alice"}

	blob, err := EncryptJSON(in, key)
	require.NoError(t, err)

	var out item
	require.NoError(t, DecryptJSON(blob, key, &out))
	assert.Equal(t, in, out)
}

func TestKeyText_RejectsWrongSize(t *testing.T) {
	var k SecretKey
	require.ErrorIs(t, k.UnmarshalText([]byte("AAAA")), ErrKeySize)

	priv, err := GeneratePrivateKey()
	require.NoError(t, err)
	text, err := priv.PublicKey().MarshalText()
	require.NoError(t, err)

	var pub PublicKey
	require.NoError(t, pub.UnmarshalText(text))
	assert.Equal(t, priv.PublicKey(), pub)
}
