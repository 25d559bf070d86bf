package types

import "testing"

func TestBytesToHashPadding(t *testing.T) {
	h := BytesToHash([]byte{0x01, 0x02})
	if h[HashLength-1] != 0x02 || h[HashLength-2] != 0x01 {
		t.Errorf("short input not right-aligned: %x", h)
	}
	for i := 0; i < HashLength-2; i++ {
		if h[i] != 0 {
			t.Errorf("byte %d = %x, want 0", i, h[i])
		}
	}
}

func TestBytesToHashTruncation(t *testing.T) {
	long := make([]byte, HashLength+4)
	for i := range long {
		long[i] = byte(i)
	}
	h := BytesToHash(long)
	// Only the last 32 bytes are kept.
	if h[0] != long[4] {
		t.Errorf("h[0] = %x, want %x", h[0], long[4])
	}
}

func TestHexToAddressRoundTrip(t *testing.T) {
	const hexAddr = "0x00000000000000000000000000000000000000aa"
	a := HexToAddress(hexAddr)
	if a.Hex() != hexAddr {
		t.Errorf("Hex() = %s, want %s", a.Hex(), hexAddr)
	}
	if a[AddressLength-1] != 0xaa {
		t.Errorf("last byte = %x, want aa", a[AddressLength-1])
	}
}

func TestHexPrefixHandling(t *testing.T) {
	with := HexToHash("0x1234")
	without := HexToHash("1234")
	if with != without {
		t.Errorf("0x prefix changed decoding: %s vs %s", with, without)
	}
	odd := HexToHash("0x123")
	if odd != HexToHash("0x0123") {
		t.Errorf("odd-length hex not left-padded")
	}
}

func TestIsZero(t *testing.T) {
	var h Hash
	var a Address
	if !h.IsZero() || !a.IsZero() {
		t.Error("zero values should report IsZero")
	}
	h[0] = 1
	a[0] = 1
	if h.IsZero() || a.IsZero() {
		t.Error("non-zero values should not report IsZero")
	}
}
