package crc

import (
	"hash/crc32"
	"testing"
)

func TestChecksumEmpty(t *testing.T) {
	if got := Checksum(nil); got != Initial {
		t.Fatalf("Checksum(nil) = %#08x, want %#08x", got, Initial)
	}
	if got := Checksum([]byte{}); got != Initial {
		t.Fatalf("Checksum([]byte{}) = %#08x, want %#08x", got, Initial)
	}
}

func TestChecksumKnownVectors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"check string", []byte("123456789"), 0x0376E6E7},
		{"single zero byte", []byte{0x00}, 0x4E08BFB4},
		{"four 0xFF bytes", []byte{0xFF, 0xFF, 0xFF, 0xFF}, 0x00000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum(%x) = %#08x, want %#08x", tt.data, got, tt.want)
			}
		})
	}
}

func TestChecksumDiffersFromZlib(t *testing.T) {
	data := []byte("123456789")
	if Checksum(data) == crc32.ChecksumIEEE(data) {
		t.Fatalf("MPEG-2 checksum must not match the reflected IEEE variant")
	}
}

func TestHashStreamingMatchesChecksum(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	h := New()
	h.Write(data[:10])
	h.Write(data[10:])

	if got, want := h.Sum32(), Checksum(data); got != want {
		t.Fatalf("streaming Sum32 = %#08x, want %#08x", got, want)
	}

	sum := h.Sum(nil)
	if len(sum) != Size {
		t.Fatalf("Sum length = %d, want %d", len(sum), Size)
	}
	if got := uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3]); got != h.Sum32() {
		t.Errorf("Sum bytes %x do not encode Sum32 %#08x", sum, h.Sum32())
	}

	h.Reset()
	if h.Sum32() != Initial {
		t.Errorf("Reset did not restore the initial register")
	}
}

// bitwise is the textbook MSB-first register update.
func bitwise(data []byte) uint32 {
	reg := Initial
	for _, b := range data {
		reg ^= uint32(b) << 24
		for i := 0; i < 8; i++ {
			if reg&0x80000000 != 0 {
				reg = reg<<1 ^ Polynomial
			} else {
				reg <<= 1
			}
		}
	}
	return reg
}

func TestChecksumMatchesBitwiseRegister(t *testing.T) {
	data := make([]byte, 0, 300)
	for i := 0; i < 300; i++ {
		data = append(data, byte(i*31+7))
		if got, want := Checksum(data), bitwise(data); got != want {
			t.Fatalf("Checksum over %d bytes = %#08x, want %#08x", len(data), got, want)
		}
	}
}
