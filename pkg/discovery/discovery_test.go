package discovery

import (
	"net"
	"strings"
	"testing"

	"github.com/grandcat/zeroconf"
)

func entry(instance string, v4, v6 []net.IP, host string, txt ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	e.AddrIPv4 = v4
	e.AddrIPv6 = v6
	e.HostName = host
	e.Port = 8080
	e.Text = txt
	return e
}

func TestRobotFromEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry *zeroconf.ServiceEntry
		want  string
		ok    bool
	}{
		{"ipv4 preferred", entry("r1", []net.IP{net.IPv4(192, 168, 1, 20)}, []net.IP{net.ParseIP("fe80::1")}, "r1.local."),
			"ws://192.168.1.20:8080/ws/control", true},
		{"ipv6 bracketed", entry("r2", nil, []net.IP{net.ParseIP("fe80::1")}, ""),
			"ws://[fe80::1]:8080/ws/control", true},
		{"hostname fallback", entry("r3", nil, nil, "robot.local."),
			"ws://robot.local:8080/ws/control", true},
		{"custom path", entry("r4", []net.IP{net.IPv4(10, 0, 0, 5)}, nil, "", "version=1", "path=/ctl"),
			"ws://10.0.0.5:8080/ctl", true},
		{"no address", entry("r5", nil, nil, ""), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := robotFromEntry(tt.entry)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && r.URL() != tt.want {
				t.Errorf("URL = %q, want %q", r.URL(), tt.want)
			}
		})
	}
}

func TestAdvertiserDefaultInstance(t *testing.T) {
	a := NewAdvertiser("", 8080, nil)
	if !strings.HasSuffix(a.Instance(), "-omnidrive") {
		t.Errorf("instance = %q", a.Instance())
	}
	if b := NewAdvertiser("bench", 8080, nil); b.Instance() != "bench" {
		t.Errorf("instance = %q", b.Instance())
	}
}
