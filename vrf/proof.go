package vrf

import (
	"crypto/hmac"
	"crypto/rand"
	"errors"

	"github.com/raffled/raffled/crypto"
)

// Signer produces the proof a request's random words are derived
// from. The default backend is the deterministic dev signer below; a
// BLS12-381 backend is available behind the blst build tag.
type Signer interface {
	// Sign produces a proof over msg. For a fixed key and message the
	// proof is deterministic, so redelivery reproduces the same words.
	Sign(msg []byte) ([]byte, error)
	// PublicKey returns the verification key material for the backend.
	PublicKey() []byte
}

// DevSignerSecretSize is the secret size for the dev signer.
const DevSignerSecretSize = 32

// ErrInvalidSecret is returned for malformed dev signer secrets.
var ErrInvalidSecret = errors.New("vrf: secret must be 32 bytes")

// proofSize is the dev proof length, matching a compressed BLS
// signature so the two backends are interchangeable on the wire.
const proofSize = 96

// DevSigner is a keyed deterministic signer for development and tests.
// Its proofs are keccak chains over a shared secret; anyone holding
// the secret can verify them. It is not a verifiable random function
// against adversarial signers; use the blst backend for that.
type DevSigner struct {
	secret [DevSignerSecretSize]byte
}

// NewDevSigner creates a dev signer from a 32-byte secret.
func NewDevSigner(secret []byte) (*DevSigner, error) {
	if len(secret) != DevSignerSecretSize {
		return nil, ErrInvalidSecret
	}
	s := &DevSigner{}
	copy(s.secret[:], secret)
	return s, nil
}

// NewRandomDevSigner creates a dev signer with a fresh random secret.
func NewRandomDevSigner() *DevSigner {
	s := &DevSigner{}
	rand.Read(s.secret[:])
	return s
}

// Sign produces a 96-byte deterministic proof over msg.
func (s *DevSigner) Sign(msg []byte) ([]byte, error) {
	proof := make([]byte, 0, proofSize)
	chunk := crypto.Keccak256(s.secret[:], msg)
	proof = append(proof, chunk...)
	for len(proof) < proofSize {
		chunk = crypto.Keccak256(s.secret[:], chunk)
		proof = append(proof, chunk...)
	}
	return proof[:proofSize], nil
}

// PublicKey returns a commitment to the secret. It identifies the
// signer without revealing the key.
func (s *DevSigner) PublicKey() []byte {
	return crypto.Keccak256(s.secret[:], []byte("raffled/dev-signer/pub"))
}

// Verify recomputes the proof and compares in constant time. Only a
// holder of the same secret can verify dev proofs.
func (s *DevSigner) Verify(msg, proof []byte) bool {
	want, err := s.Sign(msg)
	if err != nil {
		return false
	}
	return hmac.Equal(want, proof)
}
