//go:build blst

package vrf

import (
	"bytes"
	"testing"
)

func testIKM() []byte {
	ikm := make([]byte, 32)
	for i := range ikm {
		ikm[i] = byte(i + 1)
	}
	return ikm
}

func TestBLSSignerSignVerify(t *testing.T) {
	s, err := NewBLSSigner(testIKM())
	if err != nil {
		t.Fatalf("NewBLSSigner: %v", err)
	}

	msg := []byte("request seed")
	proof, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(proof) != 96 {
		t.Errorf("proof length = %d, want 96", len(proof))
	}
	if !VerifyBLSProof(s.PublicKey(), msg, proof) {
		t.Error("valid proof rejected")
	}
	if VerifyBLSProof(s.PublicKey(), []byte("other seed"), proof) {
		t.Error("proof verified against wrong message")
	}
}

func TestBLSSignerDeterministic(t *testing.T) {
	s, err := NewBLSSigner(testIKM())
	if err != nil {
		t.Fatalf("NewBLSSigner: %v", err)
	}
	a, _ := s.Sign([]byte("seed"))
	b, _ := s.Sign([]byte("seed"))
	if !bytes.Equal(a, b) {
		t.Error("signatures over the same message differ")
	}
}

func TestBLSSignerShortIKM(t *testing.T) {
	if _, err := NewBLSSigner(make([]byte, 31)); err != ErrBLSInvalidIKM {
		t.Errorf("err = %v, want ErrBLSInvalidIKM", err)
	}
}
