//go:build blst

// BLS12-381 proof backend using the supranational/blst library. Proofs
// are MinPk-scheme signatures: public keys in G1 (48-byte compressed),
// signatures in G2 (96-byte compressed). Unlike the dev signer these
// proofs are publicly verifiable, so an observer can check that the
// delivered words really derive from the coordinator's key.
//
// Build with: go build -tags blst
package vrf

import (
	"errors"

	blst "github.com/supranational/blst/bindings/go"
)

// blsDST is the domain separation tag for coordinator proofs.
var blsDST = []byte("RAFFLED_VRF_BLS12381G2_XMD:SHA-256_SSWU_RO_")

// Errors returned by the BLS backend.
var (
	ErrBLSInvalidIKM = errors.New("vrf: bls ikm must be at least 32 bytes")
	ErrBLSKeyGen     = errors.New("vrf: bls key generation failed")
	ErrBLSSignFailed = errors.New("vrf: bls signing failed")
)

// BLSSigner signs request seeds with a BLS12-381 secret key.
type BLSSigner struct {
	sk     *blst.SecretKey
	pubkey []byte // compressed G1, 48 bytes
}

// NewBLSSigner derives a key pair from input key material of at least
// 32 bytes.
func NewBLSSigner(ikm []byte) (*BLSSigner, error) {
	if len(ikm) < 32 {
		return nil, ErrBLSInvalidIKM
	}
	sk := blst.KeyGen(ikm)
	if sk == nil {
		return nil, ErrBLSKeyGen
	}
	pk := new(blst.P1Affine).From(sk)
	return &BLSSigner{sk: sk, pubkey: pk.Compress()}, nil
}

// Sign produces a compressed G2 signature over msg.
func (s *BLSSigner) Sign(msg []byte) ([]byte, error) {
	sig := new(blst.P2Affine).Sign(s.sk, msg, blsDST)
	if sig == nil {
		return nil, ErrBLSSignFailed
	}
	return sig.Compress(), nil
}

// PublicKey returns the compressed G1 public key.
func (s *BLSSigner) PublicKey() []byte {
	out := make([]byte, len(s.pubkey))
	copy(out, s.pubkey)
	return out
}

// VerifyBLSProof checks a proof against a compressed public key.
func VerifyBLSProof(pubkey, msg, proof []byte) bool {
	pk := new(blst.P1Affine).Uncompress(pubkey)
	if pk == nil {
		return false
	}
	sig := new(blst.P2Affine).Uncompress(proof)
	if sig == nil {
		return false
	}
	return sig.Verify(true, pk, true, msg, blsDST)
}
