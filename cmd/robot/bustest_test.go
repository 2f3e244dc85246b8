package main

import (
	"testing"

	"github.com/open-teleop/omnidrive/pkg/bus"
	"github.com/open-teleop/omnidrive/pkg/frame"
)

func TestParseSpeeds(t *testing.T) {
	got, err := parseSpeeds("0, 0,0.5")
	if err != nil {
		t.Fatalf("parseSpeeds failed: %v", err)
	}
	if len(got) != 3 || got[2] != 0.5 {
		t.Errorf("parseSpeeds = %v", got)
	}
	if _, err := parseSpeeds("0,fast,1"); err == nil {
		t.Error("non-numeric speed accepted")
	}
}

func TestRunBusTest(t *testing.T) {
	lb := bus.NewLoopback()
	if code := runBusTest(lb, "0,0,0.5"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	want := frame.EncodeSpeeds([3]float32{0, 0, 0.5})
	if string(lb.Last()) != string(want.Bytes()) {
		t.Errorf("sent % x, want % x", lb.Last(), want.Bytes())
	}

	if code := runBusTest(lb, "1,2"); code != 2 {
		t.Errorf("two speeds: exit code = %d, want 2", code)
	}
}
