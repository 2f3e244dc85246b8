package steamcontroller

import (
	"encoding/binary"
	"errors"
	"testing"
)

func inputReport() []byte {
	r := make([]byte, 64)
	r[0] = 0x01
	r[2] = 0x01
	return r
}

func putInt16(r []byte, offset int, v int16) {
	binary.LittleEndian.PutUint16(r[offset:], uint16(v))
}

func mustDecode(t *testing.T, r []byte) Snapshot {
	t.Helper()
	s, err := Decode(r)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return s
}

func TestDecodeRejectsShortReport(t *testing.T) {
	for _, n := range []int{0, 24, ReportMinLength - 1} {
		if _, err := Decode(make([]byte, n)); !errors.Is(err, ErrShortReport) {
			t.Errorf("Decode(%d bytes) error = %v, want ErrShortReport", n, err)
		}
	}
	if _, err := Decode(make([]byte, ReportMinLength)); err != nil {
		t.Errorf("Decode(%d bytes) failed: %v", ReportMinLength, err)
	}
}

func TestDecodeStatus(t *testing.T) {
	tests := []struct {
		code byte
		want Status
	}{
		{0x01, StatusInput},
		{0x03, StatusHotplug},
		{0x04, StatusIdle},
		{0x00, StatusIdle},
		{0x7f, StatusIdle},
	}
	for _, tt := range tests {
		r := inputReport()
		r[2] = tt.code
		if got := mustDecode(t, r).Status; got != tt.want {
			t.Errorf("status byte %#02x: got %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestDecodeMainButtons(t *testing.T) {
	tests := []struct {
		code byte
		want Buttons
	}{
		{128, Buttons{A: true}},
		{32, Buttons{B: true}},
		{16, Buttons{Y: true}},
		{64, Buttons{X: true}},
		{8, Buttons{LB: true}},
		{4, Buttons{RB: true}},
		{0, Buttons{}},
		{128 | 32, Buttons{}},
	}
	for _, tt := range tests {
		r := inputReport()
		r[8] = tt.code
		if got := mustDecode(t, r).Button; got != tt.want {
			t.Errorf("byte 8 = %d: got %+v, want %+v", tt.code, got, tt.want)
		}
	}
}

func TestDecodePadAndCenter(t *testing.T) {
	tests := []struct {
		code   byte
		pad    PadDirection
		center Center
		left   bool
	}{
		{128, PadIdle, Center{}, true},
		{16, PadIdle, Center{L: true}, false},
		{64, PadIdle, Center{R: true}, false},
		{32, PadIdle, Center{Steam: true}, false},
		{8, PadDown, Center{}, false},
		{2, PadRight, Center{}, false},
		{4, PadLeft, Center{}, false},
		{1, PadUp, Center{}, false},
		{3, PadIdle, Center{}, false},
	}
	for _, tt := range tests {
		r := inputReport()
		r[9] = tt.code
		s := mustDecode(t, r)
		if s.Pad.Value != tt.pad || s.Center != tt.center || s.Bottom.Left != tt.left {
			t.Errorf("byte 9 = %d: pad=%q center=%+v bottom.left=%v", tt.code, s.Pad.Value, s.Center, s.Bottom.Left)
		}
	}
}

func TestDecodeTouch(t *testing.T) {
	type touch struct{ mouse, pad, right, pressed bool }
	tests := []struct {
		code byte
		want touch
	}{
		{24, touch{mouse: true, pad: true}},
		{17, touch{mouse: true, right: true}},
		{25, touch{mouse: true, pad: true, right: true}},
		{2, touch{pressed: true}},
		{1, touch{right: true}},
		{16, touch{mouse: true, pad: true}},
		{8, touch{pad: true}},
		{0, touch{}},
		{4, touch{}},
	}
	for _, tt := range tests {
		r := inputReport()
		r[10] = tt.code
		s := mustDecode(t, r)
		got := touch{s.Mouse.Touched, s.Pad.Touched, s.Bottom.Right, s.Thumbstick.Pressed}
		if got != tt.want {
			t.Errorf("byte 10 = %d: got %+v, want %+v", tt.code, got, tt.want)
		}
	}
}

func TestDecodeAxes(t *testing.T) {
	r := inputReport()
	r[11], r[12] = 200, 17
	putInt16(r, 16, -32768)
	putInt16(r, 18, 32767)
	putInt16(r, 20, -5)
	putInt16(r, 22, 6)
	putInt16(r, 0x1c, 101)
	putInt16(r, 0x1e, 103)
	putInt16(r, 0x20, 102)
	putInt16(r, 0x22, 201)
	putInt16(r, 0x24, 203)
	putInt16(r, 0x26, 202)
	putInt16(r, 0x28, 302)
	putInt16(r, 0x2a, 301)
	putInt16(r, 0x2c, 304)
	putInt16(r, 0x2e, 303)

	s := mustDecode(t, r)

	if s.Trigger != (Trigger{Left: 200, Right: 17}) {
		t.Errorf("trigger = %+v", s.Trigger)
	}
	if s.Joystick != (Axis{X: -32768, Y: 32767}) {
		t.Errorf("joystick = %+v", s.Joystick)
	}
	if s.Thumbstick.X != s.Joystick.X || s.Thumbstick.Y != s.Joystick.Y {
		t.Errorf("thumbstick %+v should mirror joystick %+v", s.Thumbstick, s.Joystick)
	}
	if s.Mouse.X != -5 || s.Mouse.Y != 6 {
		t.Errorf("mouse = %+v", s.Mouse)
	}
	if s.Acceleration != (Vector{X: 101, Y: 102, Z: 103}) {
		t.Errorf("acceleration = %+v", s.Acceleration)
	}
	if s.Rotation != (Vector{X: 201, Y: 202, Z: 203}) {
		t.Errorf("rotation = %+v", s.Rotation)
	}
	if s.Orientation != (Orientation{X: 301, YA: 302, YB: 303, Z: 304}) {
		t.Errorf("orientation = %+v", s.Orientation)
	}
}

func TestDecodeSentinel(t *testing.T) {
	r := inputReport()
	r[8] = 128
	r[11] = 50
	putInt16(r, 16, 1000)
	binary.BigEndian.PutUint16(r[13:], 0x0C64)

	s := mustDecode(t, r)
	if !s.Sentinel {
		t.Fatalf("sentinel report not flagged")
	}
	if s.Status != StatusInput {
		t.Errorf("sentinel status = %q, want input", s.Status)
	}
	if s.Button.A || s.Trigger.Left != 0 || s.Joystick.X != 0 {
		t.Errorf("sentinel report decoded fields: %+v", s)
	}
	if s.IsInput() {
		t.Errorf("sentinel report must not count as input")
	}
}

func TestSnapshotsAreIndependent(t *testing.T) {
	r := inputReport()
	r[8] = 128
	first := mustDecode(t, r)

	r[8] = 0
	second := mustDecode(t, r)

	if !first.Button.A {
		t.Errorf("first snapshot changed after a later decode")
	}
	if second.Button.A {
		t.Errorf("button state carried over between reports")
	}
}
