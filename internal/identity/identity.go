// Package identity implements the signing scheme for metadata records.
//
// A node identity is an ed25519 key pair. On the wire a record names its
// originator by a 20-byte fingerprint (BLAKE2b-160 of the ed25519 public
// key), and the signature field carries the 64-byte ed25519 signature
// followed by the 32-byte public key. Verification checks the fingerprint
// binding first, then the signature.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"tms-go/internal/model"
)

// SignatureLen is the width of a wire signature: ed25519 sig + public key.
const SignatureLen = ed25519.SignatureSize + ed25519.PublicKeySize

// Key is a node's signing identity.
type Key struct {
	priv ed25519.PrivateKey
	fp   []byte
}

// Generate creates a fresh random identity.
func Generate() (*Key, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}
	return fromPrivate(priv), nil
}

// FromSeed reconstructs an identity from a 32-byte ed25519 seed.
func FromSeed(seed []byte) (*Key, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return fromPrivate(ed25519.NewKeyFromSeed(seed)), nil
}

func fromPrivate(priv ed25519.PrivateKey) *Key {
	pub := priv.Public().(ed25519.PublicKey)
	return &Key{priv: priv, fp: Fingerprint(pub)}
}

// Fingerprint returns the 20-byte BLAKE2b-160 digest of an ed25519 public key.
func Fingerprint(pub ed25519.PublicKey) []byte {
	h, err := blake2b.New(model.KeyLen, nil)
	if err != nil {
		// blake2b.New only fails for invalid digest sizes.
		panic(err)
	}
	h.Write(pub)
	return h.Sum(nil)
}

// PublicKey returns the wire fingerprint of this identity.
func (k *Key) PublicKey() []byte {
	out := make([]byte, model.KeyLen)
	copy(out, k.fp)
	return out
}

// Seed returns the 32-byte ed25519 seed, for persistence.
func (k *Key) Seed() []byte {
	return k.priv.Seed()
}

// Sign produces a wire signature over msg: sig || ed25519 public key.
func (k *Key) Sign(msg []byte) []byte {
	sig := make([]byte, 0, SignatureLen)
	sig = append(sig, ed25519.Sign(k.priv, msg)...)
	sig = append(sig, k.priv.Public().(ed25519.PublicKey)...)
	return sig
}

// Verify checks a wire signature against a 20-byte fingerprint. It is total:
// any malformed input returns false, never panics.
func Verify(fingerprint, msg, sig []byte) bool {
	if len(fingerprint) != model.KeyLen || len(sig) != SignatureLen {
		return false
	}
	pub := ed25519.PublicKey(sig[ed25519.SignatureSize:])
	if subtle.ConstantTimeCompare(Fingerprint(pub), fingerprint) != 1 {
		return false
	}
	return ed25519.Verify(pub, msg, sig[:ed25519.SignatureSize])
}
