// Package discovery advertises the robot over mDNS and lets the pilot find it.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"

	customlog "github.com/open-teleop/omnidrive/pkg/log"
)

const (
	ServiceType   = "_omnidrive._tcp"
	ServiceDomain = "local."
	// ControlPath is where the robot serves its control websocket.
	ControlPath = "/ws/control"
)

var ErrNoRobot = errors.New("no robot found")

// Advertiser registers the robot's HTTP port.
type Advertiser struct {
	mu       sync.Mutex
	server   *zeroconf.Server
	instance string
	port     int
	logger   customlog.Logger
}

// NewAdvertiser prepares an advertisement; instance defaults to "<hostname>-omnidrive".
func NewAdvertiser(instance string, port int, logger customlog.Logger) *Advertiser {
	if instance == "" {
		hostname, _ := os.Hostname()
		instance = fmt.Sprintf("%s-omnidrive", hostname)
	}
	return &Advertiser{instance: instance, port: port, logger: logger}
}

func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	server, err := zeroconf.Register(a.instance, ServiceType, ServiceDomain, a.port, TXTRecords(), nil)
	if err != nil {
		return fmt.Errorf("register mdns service: %w", err)
	}
	a.server = server
	a.logger.Infof("Advertising %s.%s on port %d", a.instance, ServiceType, a.port)
	return nil
}

func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.logger.Infof("Stopped advertising %s", a.instance)
}

func (a *Advertiser) Instance() string {
	return a.instance
}

// TXTRecords describe the service to browsers.
func TXTRecords() []string {
	return []string{"version=1", "path=" + ControlPath}
}

// Robot is one discovered robot.
type Robot struct {
	Instance string
	Host     string
	Port     int
	Path     string
}

// URL is the control websocket address of the robot.
func (r Robot) URL() string {
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(r.Host, fmt.Sprint(r.Port)), r.Path)
}

// robotFromEntry picks an address, preferring IPv4.
func robotFromEntry(e *zeroconf.ServiceEntry) (Robot, bool) {
	r := Robot{Instance: e.Instance, Port: e.Port, Path: ControlPath}
	for _, txt := range e.Text {
		if v, ok := strings.CutPrefix(txt, "path="); ok && v != "" {
			r.Path = v
		}
	}
	switch {
	case len(e.AddrIPv4) > 0:
		r.Host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		r.Host = e.AddrIPv6[0].String()
	case e.HostName != "":
		r.Host = strings.TrimSuffix(e.HostName, ".")
	default:
		return r, false
	}
	return r, true
}

// Browse returns the first robot answering before ctx is done.
func Browse(ctx context.Context, logger customlog.Logger) (Robot, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return Robot{}, fmt.Errorf("create mdns resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return Robot{}, fmt.Errorf("browse %s: %w", ServiceType, err)
	}

	for {
		select {
		case <-ctx.Done():
			return Robot{}, fmt.Errorf("%w: %v", ErrNoRobot, ctx.Err())
		case e, ok := <-entries:
			if !ok {
				return Robot{}, ErrNoRobot
			}
			r, ok := robotFromEntry(e)
			if !ok {
				logger.Debugf("Ignoring %s without an address", e.Instance)
				continue
			}
			logger.Infof("Found robot %s at %s", r.Instance, r.URL())
			return r, nil
		}
	}
}
