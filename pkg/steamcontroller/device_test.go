package steamcontroller

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/open-teleop/omnidrive/pkg/log"
)

type fakeHID struct {
	mu       sync.Mutex
	features [][]byte
	reads    int
	reports  [][]byte
	closed   bool
	readErr  error
}

func (f *fakeHID) SetFeatureReport(reportID byte, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.features = append(f.features, append([]byte(nil), data...))
	return nil
}

func (f *fakeHID) GetFeatureReport(reportID byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return bytes.Repeat([]byte{0xEE}, featureReportSize), nil
}

func (f *fakeHID) GetInputReport() (byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reports) == 0 {
		if f.readErr != nil {
			return 0, nil, f.readErr
		}
		return 0, nil, errors.New("no more reports")
	}
	r := f.reports[0]
	f.reports = f.reports[1:]
	return 0, r, nil
}

func (f *fakeHID) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestHandshakeSequence(t *testing.T) {
	dev := &fakeHID{}
	c := NewController(dev, DeviceInfo{Connection: Wired}, log.Discard())

	if err := c.Handshake(); err != nil {
		t.Fatalf("Handshake failed: %v", err)
	}

	if len(dev.features) != 4 {
		t.Fatalf("sent %d feature reports, want 4", len(dev.features))
	}
	for i, f := range dev.features {
		if len(f) != featureReportSize {
			t.Errorf("feature %d length = %d, want %d", i, len(f), featureReportSize)
		}
	}

	if dev.features[0][0] != 0x83 || dev.features[2][0] != 0x81 {
		t.Errorf("unexpected command bytes %#02x, %#02x", dev.features[0][0], dev.features[2][0])
	}

	attrs := dev.features[1]
	if attrs[0] != 0xAE || attrs[1] != 0x15 || attrs[2] != 0x01 {
		t.Errorf("attribute reply header = % x", attrs[:3])
	}
	if attrs[3] != 0xEE || attrs[22] != 0xEE {
		t.Errorf("attribute reply should keep the received bytes before the cut: % x", attrs[:24])
	}
	for i := 23; i < len(attrs); i++ {
		if attrs[i] != 0 {
			t.Fatalf("attribute reply byte %d = %#02x, want 0", i, attrs[i])
		}
	}

	cfg := dev.features[3]
	if !bytes.Equal(cfg[:len(configureInputReport)], configureInputReport) {
		t.Errorf("configure report = % x", cfg[:len(configureInputReport)])
	}
	if cfg[18] != 0x1c {
		t.Errorf("input mask = %#02x, want 0x1c", cfg[18])
	}
	if dev.reads != 3 {
		t.Errorf("read %d feature reports, want 3", dev.reads)
	}
}

func TestRunDecodesAndSkipsShortReports(t *testing.T) {
	good := make([]byte, 64)
	good[2] = 0x01
	good[8] = 64

	dev := &fakeHID{
		reports: [][]byte{make([]byte, 10), good},
		readErr: errors.New("device unplugged"),
	}
	c := NewController(dev, DeviceInfo{}, log.Discard())

	out := make(chan Snapshot, 4)
	err := c.Run(context.Background(), out)
	if err == nil {
		t.Fatalf("Run should return the read error")
	}

	if len(out) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(out))
	}
	if s := <-out; !s.Button.X || s.Status != StatusInput {
		t.Errorf("unexpected snapshot %+v", s)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	report := make([]byte, 64)
	reports := make([][]byte, 100)
	for i := range reports {
		reports[i] = report
	}
	dev := &fakeHID{reports: reports}
	c := NewController(dev, DeviceInfo{}, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Snapshot)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, out) }()

	<-out
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancel, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestSelectDevice(t *testing.T) {
	wired := DeviceInfo{VendorID: VendorID, ProductID: WiredPID, Interface: 2, Path: "wired"}
	wiredKeyboard := DeviceInfo{VendorID: VendorID, ProductID: WiredPID, Interface: 0, Path: "kbd"}
	wireless := DeviceInfo{VendorID: VendorID, ProductID: WirelessPID, Interface: 1, Path: "dongle"}
	other := DeviceInfo{VendorID: 0x1234, ProductID: WiredPID, Interface: 2, Path: "other"}

	tests := []struct {
		name    string
		infos   []DeviceInfo
		prefer  Connection
		want    string
		wantErr error
	}{
		{"wired preferred by default", []DeviceInfo{wireless, wired}, "", "wired", nil},
		{"wireless when asked", []DeviceInfo{wired, wireless}, Wireless, "dongle", nil},
		{"fallback to what exists", []DeviceInfo{wireless}, Wired, "dongle", nil},
		{"ignore other interfaces", []DeviceInfo{wiredKeyboard, other}, "", "", ErrNotFound},
		{"nothing attached", nil, "", "", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectDevice(tt.infos, tt.prefer)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got.Path != tt.want {
				t.Errorf("selected %q, want %q", got.Path, tt.want)
			}
		})
	}
}

func TestMatchInterface(t *testing.T) {
	wired := DeviceInfo{VendorID: VendorID, ProductID: WiredPID, Interface: wiredIface, Path: "1-1:1.2"}
	keyboard := hidCandidate{Path: "/dev/hidraw0", Interface: 0}
	mouse := hidCandidate{Path: "/dev/hidraw1", Interface: 1}
	vendor := hidCandidate{Path: "/dev/hidraw2", Interface: 2}

	tests := []struct {
		name       string
		info       DeviceInfo
		candidates []hidCandidate
		want       int
		wantErr    error
	}{
		{"vendor interface among siblings", wired, []hidCandidate{keyboard, mouse, vendor}, 2, nil},
		{"order does not matter", wired, []hidCandidate{vendor, keyboard}, 0, nil},
		{"exact path wins", DeviceInfo{Interface: 0, Path: "/dev/hidraw1"}, []hidCandidate{keyboard, mouse}, 1, nil},
		{"only other interfaces", wired, []hidCandidate{keyboard, mouse}, -1, ErrInterfaceNotFound},
		{"single node on the wrong interface", wired, []hidCandidate{keyboard}, -1, ErrInterfaceNotFound},
		{"single node without interface info", wired, []hidCandidate{{Path: "IOService:/hid", Interface: -1}}, 0, nil},
		{"several nodes without interface info", wired, []hidCandidate{{Path: "a", Interface: -1}, {Path: "b", Interface: -1}}, -1, ErrInterfaceNotFound},
		{"nothing attached", wired, nil, -1, ErrInterfaceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matchInterface(tt.info, tt.candidates)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("matched %d, want %d", got, tt.want)
			}
		})
	}
}
