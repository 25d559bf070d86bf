// Package crypto provides the hashing primitives used by the raffled
// service: Keccak-256 for request-id derivation and randomness mixing.
package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"github.com/raffled/raffled/core/types"
)

// Keccak256 calculates the Keccak-256 hash of the given data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as a types.Hash.
func Keccak256Hash(data ...[]byte) types.Hash {
	return types.BytesToHash(Keccak256(data...))
}

// Uint64Bytes encodes v as 8 big-endian bytes, the canonical form for
// feeding counters and nonces into Keccak256.
func Uint64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
