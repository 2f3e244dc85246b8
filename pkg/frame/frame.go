// Package frame encodes the fixed 16-byte wheel command exchanged with the motor
// controller over the bus.
//
// Layout (little-endian):
//   - Bytes 0-3:   wheel 1 speed (float32)
//   - Bytes 4-7:   wheel 2 speed (float32)
//   - Bytes 8-11:  wheel 3 speed (float32)
//   - Bytes 12-15: CRC-32/MPEG-2 (uint32)
//
// The checksum is computed over bytes 0-11 after reversing the byte order of each
// 4-byte word, which is how the receiving firmware feeds its CRC peripheral.
package frame

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/open-teleop/omnidrive/pkg/crc"
)

const (
	// Size is the length of a command frame and of the acknowledgement echoed back.
	Size = 16
	// PayloadSize is the number of bytes covered by the checksum.
	PayloadSize = 12
	// WheelCount is the number of speeds carried by a frame.
	WheelCount = 3

	crcOffset = PayloadSize
)

var (
	// ErrSpeedCount is returned when a caller does not supply exactly three speeds.
	ErrSpeedCount = errors.New("frame requires exactly 3 wheel speeds")
	// ErrFrameSize is returned when a received buffer is shorter than a frame.
	ErrFrameSize = errors.New("invalid frame size")
)

// Frame is an encoded wheel command ready for transfer.
type Frame [Size]byte

// Encode packs three wheel speeds into a frame. Any other count is rejected before
// a single byte is written.
func Encode(speeds []float32) (Frame, error) {
	if len(speeds) != WheelCount {
		return Frame{}, fmt.Errorf("%w: got %d", ErrSpeedCount, len(speeds))
	}
	return EncodeSpeeds([WheelCount]float32{speeds[0], speeds[1], speeds[2]}), nil
}

// EncodeSpeeds packs a fixed array of wheel speeds into a frame.
func EncodeSpeeds(speeds [WheelCount]float32) Frame {
	var f Frame
	for i, s := range speeds {
		binary.LittleEndian.PutUint32(f[i*4:], math.Float32bits(s))
	}
	binary.LittleEndian.PutUint32(f[crcOffset:], payloadChecksum(f[:PayloadSize]))
	return f
}

// Zero returns the frame commanding all wheels to stop.
func Zero() Frame {
	return EncodeSpeeds([WheelCount]float32{})
}

// payloadChecksum swaps each 32-bit word of payload and runs the CRC over the result.
func payloadChecksum(payload []byte) uint32 {
	swapped := swap32(payload)
	return crc.Checksum(swapped)
}

// swap32 returns a copy of b with the byte order reversed inside every 4-byte word.
// len(b) must be a multiple of 4.
func swap32(b []byte) []byte {
	out := make([]byte, len(b))
	for i := 0; i+4 <= len(b); i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = b[i+3], b[i+2], b[i+1], b[i]
	}
	return out
}

// Speeds reads the wheel speeds back out of the frame.
func (f Frame) Speeds() [WheelCount]float32 {
	var s [WheelCount]float32
	for i := range s {
		s[i] = math.Float32frombits(binary.LittleEndian.Uint32(f[i*4:]))
	}
	return s
}

// Checksum returns the CRC stored at the end of the frame.
func (f Frame) Checksum() uint32 {
	return binary.LittleEndian.Uint32(f[crcOffset:])
}

// Bytes returns the frame as a slice suitable for a bus transfer.
func (f Frame) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, f[:])
	return b
}

// String renders the frame as hex, e.g. for log lines.
func (f Frame) String() string {
	return hex.EncodeToString(f[:])
}

// Ack is the buffer clocked back from the motor controller during a transfer.
// The controller mirrors the command layout; its contents are reported but never
// acted upon.
type Ack struct {
	Raw [Size]byte
}

// Decode copies the first Size bytes of b into an Ack.
func Decode(b []byte) (Ack, error) {
	var a Ack
	if len(b) < Size {
		return a, fmt.Errorf("%w: expected %d bytes, got %d", ErrFrameSize, Size, len(b))
	}
	copy(a.Raw[:], b[:Size])
	return a, nil
}

// Speeds interprets the acknowledgement payload as three float32 values.
func (a Ack) Speeds() [WheelCount]float32 {
	return Frame(a.Raw).Speeds()
}

// Valid reports whether the trailing checksum matches the payload.
func (a Ack) Valid() bool {
	return binary.LittleEndian.Uint32(a.Raw[crcOffset:]) == payloadChecksum(a.Raw[:PayloadSize])
}

func (a Ack) String() string {
	return hex.EncodeToString(a.Raw[:])
}
