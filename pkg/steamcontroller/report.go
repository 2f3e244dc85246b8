// Package steamcontroller reads a Valve Steam Controller over USB HID and decodes its
// vendor input report into an input Snapshot.
//
// The report layout is undocumented; offsets follow what the device has been
// observed to send after the configure-input handshake in device.go.
package steamcontroller

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ReportMinLength is the shortest report Decode accepts. The last field read
// (orientation yb) ends at offset 0x30.
const ReportMinLength = 48

// sentinelMarker at offset 13 (big-endian) flags a report that carries no input.
const sentinelMarker = 0x0C64

// ErrShortReport is returned for reports shorter than ReportMinLength.
var ErrShortReport = errors.New("steam controller report too short")

// Status tells consumers whether the rest of a Snapshot can be trusted.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusInput   Status = "input"
	StatusHotplug Status = "hotplug"
)

var statusCodes = map[byte]Status{
	0x04: StatusIdle,
	0x01: StatusInput,
	0x03: StatusHotplug,
}

// PadDirection is the d-pad direction reported in byte 9.
type PadDirection string

const (
	PadIdle  PadDirection = "idle"
	PadUp    PadDirection = "UP"
	PadDown  PadDirection = "DOWN"
	PadLeft  PadDirection = "LEFT"
	PadRight PadDirection = "RIGHT"
)

type Buttons struct {
	A, B, X, Y bool
	LB, RB     bool
}

type Pad struct {
	Value   PadDirection
	Touched bool
}

type Center struct {
	L, R, Steam bool
}

type Bottom struct {
	Left, Right bool
}

type Trigger struct {
	Left, Right uint8
}

type Axis struct {
	X, Y int16
}

type Mouse struct {
	X, Y    int16
	Touched bool
}

type Thumbstick struct {
	X, Y    int16
	Pressed bool
}

type Vector struct {
	X, Y, Z int16
}

// Orientation has two Y readings, ya and yb, at separate offsets.
type Orientation struct {
	X, YA, YB, Z int16
}

// Snapshot is the decoded state of one input report. A new value is returned for
// every report; nothing is carried over between calls.
type Snapshot struct {
	Status Status
	// Sentinel is set when the report was the no-input marker. Only Status is
	// filled in that case.
	Sentinel bool

	Button       Buttons
	Pad          Pad
	Center       Center
	Bottom       Bottom
	Trigger      Trigger
	Joystick     Axis
	Mouse        Mouse
	Thumbstick   Thumbstick
	Acceleration Vector
	Rotation     Vector
	Orientation  Orientation
}

// IsInput reports whether the snapshot carries axis data usable for motion control.
func (s Snapshot) IsInput() bool {
	return s.Status == StatusInput && !s.Sentinel
}

type bitCase struct {
	value byte
	set   func(*Snapshot)
}

// Each byte is matched against exact values; at most one case applies and an
// unmatched value leaves the group at its zero state.
var mainButtonCases = []bitCase{
	{128, func(s *Snapshot) { s.Button.A = true }},
	{32, func(s *Snapshot) { s.Button.B = true }},
	{16, func(s *Snapshot) { s.Button.Y = true }},
	{64, func(s *Snapshot) { s.Button.X = true }},
	{8, func(s *Snapshot) { s.Button.LB = true }},
	{4, func(s *Snapshot) { s.Button.RB = true }},
}

var padCenterCases = []bitCase{
	{128, func(s *Snapshot) { s.Bottom.Left = true }},
	{16, func(s *Snapshot) { s.Center.L = true }},
	{64, func(s *Snapshot) { s.Center.R = true }},
	{32, func(s *Snapshot) { s.Center.Steam = true }},
	{8, func(s *Snapshot) { s.Pad.Value = PadDown }},
	{2, func(s *Snapshot) { s.Pad.Value = PadRight }},
	{4, func(s *Snapshot) { s.Pad.Value = PadLeft }},
	{1, func(s *Snapshot) { s.Pad.Value = PadUp }},
}

var touchCases = []bitCase{
	{24, func(s *Snapshot) { s.Mouse.Touched, s.Pad.Touched = true, true }},
	{17, func(s *Snapshot) { s.Mouse.Touched, s.Bottom.Right = true, true }},
	{25, func(s *Snapshot) { s.Mouse.Touched, s.Bottom.Right, s.Pad.Touched = true, true, true }},
	{2, func(s *Snapshot) { s.Thumbstick.Pressed = true }},
	{1, func(s *Snapshot) { s.Bottom.Right = true }},
	// A mouse touch also reports the pad as touched.
	{16, func(s *Snapshot) { s.Mouse.Touched, s.Pad.Touched = true, true }},
	{8, func(s *Snapshot) { s.Pad.Touched = true }},
}

type int16Field struct {
	offset int
	dst    func(*Snapshot) *int16
}

var axisFields = []int16Field{
	{16, func(s *Snapshot) *int16 { return &s.Joystick.X }},
	{18, func(s *Snapshot) *int16 { return &s.Joystick.Y }},
	{16, func(s *Snapshot) *int16 { return &s.Thumbstick.X }},
	{18, func(s *Snapshot) *int16 { return &s.Thumbstick.Y }},
	{20, func(s *Snapshot) *int16 { return &s.Mouse.X }},
	{22, func(s *Snapshot) *int16 { return &s.Mouse.Y }},

	{0x1c, func(s *Snapshot) *int16 { return &s.Acceleration.X }},
	{0x20, func(s *Snapshot) *int16 { return &s.Acceleration.Y }},
	{0x1e, func(s *Snapshot) *int16 { return &s.Acceleration.Z }},

	{0x22, func(s *Snapshot) *int16 { return &s.Rotation.X }},
	{0x26, func(s *Snapshot) *int16 { return &s.Rotation.Y }},
	{0x24, func(s *Snapshot) *int16 { return &s.Rotation.Z }},

	{0x2a, func(s *Snapshot) *int16 { return &s.Orientation.X }},
	{0x28, func(s *Snapshot) *int16 { return &s.Orientation.YA }},
	{0x2e, func(s *Snapshot) *int16 { return &s.Orientation.YB }},
	{0x2c, func(s *Snapshot) *int16 { return &s.Orientation.Z }},
}

func applyCase(s *Snapshot, cases []bitCase, b byte) {
	for _, c := range cases {
		if c.value == b {
			c.set(s)
			return
		}
	}
}

// Decode turns one raw input report into a Snapshot. Unknown status bytes decode as
// idle; only a short report is an error.
func Decode(report []byte) (Snapshot, error) {
	if len(report) < ReportMinLength {
		return Snapshot{}, fmt.Errorf("%w: got %d bytes, need %d", ErrShortReport, len(report), ReportMinLength)
	}

	s := Snapshot{Status: StatusIdle, Pad: Pad{Value: PadIdle}}
	if st, ok := statusCodes[report[2]]; ok {
		s.Status = st
	}

	if binary.BigEndian.Uint16(report[13:]) == sentinelMarker {
		s.Sentinel = true
		return s, nil
	}

	applyCase(&s, mainButtonCases, report[8])
	applyCase(&s, padCenterCases, report[9])
	applyCase(&s, touchCases, report[10])

	s.Trigger.Left = report[11]
	s.Trigger.Right = report[12]

	for _, f := range axisFields {
		*f.dst(&s) = int16(binary.LittleEndian.Uint16(report[f.offset:]))
	}

	return s, nil
}
