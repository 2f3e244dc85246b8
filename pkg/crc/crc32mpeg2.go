// Package crc implements the CRC-32/MPEG-2 checksum used by the motor controller
// firmware to validate command frames.
//
// CRC-32/MPEG-2 shares its polynomial with the common CRC-32 (zlib) but processes
// bits most-significant first and applies no final xor, so hash/crc32 cannot
// produce it.
package crc

import (
	"hash"

	snkcrc "github.com/snksoft/crc"
)

const (
	// Polynomial is the normal (non-reflected) form of the generator.
	Polynomial uint32 = 0x04C11DB7
	// Initial is the register value before any byte is processed.
	Initial uint32 = 0xFFFFFFFF
	// Size of a CRC-32 checksum in bytes.
	Size = 4
)

// MPEG2 are the CRC-32/MPEG-2 parameters.
var MPEG2 = &snkcrc.Parameters{
	Width:      32,
	Polynomial: uint64(Polynomial),
	Init:       uint64(Initial),
	ReflectIn:  false,
	ReflectOut: false,
	FinalXor:   0,
}

var table = snkcrc.NewTable(MPEG2)

// Checksum returns the CRC-32/MPEG-2 of data. An empty slice yields Initial.
func Checksum(data []byte) uint32 {
	return table.CRC32(table.UpdateCrc(table.InitCrc(), data))
}

type digest struct {
	crc uint64
}

// New returns a hash.Hash32 computing CRC-32/MPEG-2.
func New() hash.Hash32 {
	return &digest{crc: table.InitCrc()}
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { d.crc = table.InitCrc() }
func (d *digest) Sum32() uint32  { return table.CRC32(d.crc) }

func (d *digest) Write(p []byte) (int, error) {
	d.crc = table.UpdateCrc(d.crc, p)
	return len(p), nil
}

// Sum appends the big-endian checksum to in, matching hash/crc32.
func (d *digest) Sum(in []byte) []byte {
	s := d.Sum32()
	return append(in, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}
