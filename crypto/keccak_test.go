package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestKeccak256KnownVectors(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{"abc", "4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45"},
	}
	for _, tt := range tests {
		got := hex.EncodeToString(Keccak256([]byte(tt.in)))
		if got != tt.want {
			t.Errorf("Keccak256(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestKeccak256MultiChunk(t *testing.T) {
	whole := Keccak256([]byte("hello world"))
	split := Keccak256([]byte("hello "), []byte("world"))
	if !bytes.Equal(whole, split) {
		t.Error("chunked input hashed differently from contiguous input")
	}
}

func TestKeccak256Hash(t *testing.T) {
	h := Keccak256Hash([]byte("abc"))
	if h.Hex() != "0x4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45" {
		t.Errorf("Keccak256Hash = %s", h.Hex())
	}
}

func TestUint64Bytes(t *testing.T) {
	b := Uint64Bytes(0x0102030405060708)
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(b, want) {
		t.Errorf("Uint64Bytes = %x, want %x", b, want)
	}
}
