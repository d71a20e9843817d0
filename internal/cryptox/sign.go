package cryptox

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldAuthor    protowire.Number = 1
	fieldTimestamp protowire.Number = 2
	fieldBody      protowire.Number = 3
)

// Envelope is the signed part of every manifest, certificate and message:
// who wrote it, when, and the opaque body.
type Envelope struct {
	Author    string
	Timestamp time.Time
	Body      []byte
}

// Sign produces signature || envelope, the envelope being encoded as a
// protobuf record so that signed payloads stay stable across releases.
func Sign(sk SigningKey, author string, ts time.Time, body []byte) []byte {
	var env []byte
	env = protowire.AppendTag(env, fieldAuthor, protowire.BytesType)
	env = protowire.AppendString(env, author)
	env = protowire.AppendTag(env, fieldTimestamp, protowire.VarintType)
	env = protowire.AppendVarint(env, uint64(ts.UnixNano()))
	env = protowire.AppendTag(env, fieldBody, protowire.BytesType)
	env = protowire.AppendBytes(env, body)

	sig := ed25519.Sign(ed25519.PrivateKey(sk), env)
	return append(sig, env...)
}

// Verify checks the signature with vk and returns the decoded envelope.
func Verify(vk VerifyKey, signed []byte) (Envelope, error) {
	if len(signed) < ed25519.SignatureSize || len(vk) != ed25519.PublicKeySize {
		return Envelope{}, ErrSignature
	}
	sig, env := signed[:ed25519.SignatureSize], signed[ed25519.SignatureSize:]
	if !ed25519.Verify(ed25519.PublicKey(vk), env, sig) {
		return Envelope{}, ErrSignature
	}
	return decodeEnvelope(env)
}

// UnsecureUnwrap decodes the envelope without checking the signature. It is
// only meant to learn the claimed author before resolving its verify key.
func UnsecureUnwrap(signed []byte) (Envelope, error) {
	if len(signed) < ed25519.SignatureSize {
		return Envelope{}, ErrEnvelope
	}
	return decodeEnvelope(signed[ed25519.SignatureSize:])
}

func decodeEnvelope(b []byte) (Envelope, error) {
	var (
		env                     Envelope
		hasAuthor, hasTimestamp bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Envelope{}, fmt.Errorf("%w: %v", ErrEnvelope, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldAuthor && typ == protowire.BytesType:
			var v string
			v, n = protowire.ConsumeString(b)
			env.Author, hasAuthor = v, true
		case num == fieldTimestamp && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			env.Timestamp, hasTimestamp = time.Unix(0, int64(v)).UTC(), true
		case num == fieldBody && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			env.Body = append([]byte(nil), v...)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return Envelope{}, fmt.Errorf("%w: %v", ErrEnvelope, protowire.ParseError(n))
		}
		b = b[n:]
	}
	if !hasAuthor || !hasTimestamp {
		return Envelope{}, ErrEnvelope
	}
	return env, nil
}
