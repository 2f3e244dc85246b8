package steamcontroller

import (
	"context"
	"errors"
	"fmt"

	"github.com/karalabe/usb"
	"rafaelmartins.com/p/usbhid"

	"github.com/open-teleop/omnidrive/pkg/log"
)

const (
	VendorID      = 0x28DE
	WiredPID      = 0x1102
	WirelessPID   = 0x1142
	wiredIface    = 2
	wirelessIface = 1

	// featureReportSize excludes the report ID byte.
	featureReportSize = 64
)

// Handshake commands, see Controller.Handshake.
const (
	cmdClearMappings  = 0x83
	cmdGetAttributes  = 0xAE
	cmdDefaultMapping = 0x81
	cmdWriteRegister  = 0x87
)

const (
	preprocessBase        = 0x08
	inputMaskAcceleration = 0x04
	inputMaskRotation     = 0x08
	inputMaskOrientation  = 0x10
)

var configureInputReport = []byte{
	cmdWriteRegister,
	0x15, 0x32, 0x84, 0x03,
	preprocessBase,
	0x00, 0x00, 0x31, 0x02, 0x00, 0x08, 0x07, 0x00, 0x07, 0x07, 0x00, 0x30,
	inputMaskAcceleration | inputMaskRotation | inputMaskOrientation,
	0x2f, 0x01,
	0x00,
}

// ErrNotFound is returned by Find when no controller is attached.
var ErrNotFound = errors.New("no steam controller found")

// Connection is how the controller is attached.
type Connection string

const (
	Wired    Connection = "wired"
	Wireless Connection = "wireless"
)

// DeviceInfo identifies the vendor HID interface of an attached controller.
type DeviceInfo struct {
	Connection Connection
	VendorID   uint16
	ProductID  uint16
	Interface  int
	Path       string
	Product    string
}

// Find enumerates attached controllers and returns the preferred one. When both
// kinds are present and prefer is empty, the wired controller wins.
func Find(prefer Connection) (DeviceInfo, error) {
	infos, err := usb.EnumerateHid(VendorID, 0)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("enumerate hid devices: %w", err)
	}

	found := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		found = append(found, DeviceInfo{
			VendorID:  info.VendorID,
			ProductID: info.ProductID,
			Interface: info.Interface,
			Path:      info.Path,
			Product:   info.Product,
		})
	}
	return selectDevice(found, prefer)
}

// selectDevice keeps only controller vendor interfaces and orders them by preference.
func selectDevice(infos []DeviceInfo, prefer Connection) (DeviceInfo, error) {
	if prefer == "" {
		prefer = Wired
	}

	var fallback *DeviceInfo
	for i := range infos {
		info := infos[i]
		switch {
		case info.VendorID == VendorID && info.ProductID == WiredPID && info.Interface == wiredIface:
			info.Connection = Wired
		case info.VendorID == VendorID && info.ProductID == WirelessPID && info.Interface == wirelessIface:
			info.Connection = Wireless
		default:
			continue
		}
		if info.Connection == prefer {
			return info, nil
		}
		if fallback == nil {
			fallback = &info
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return DeviceInfo{}, ErrNotFound
}

// HIDDevice is the subset of a HID handle the controller needs. *usbhid.Device
// satisfies it.
type HIDDevice interface {
	SetFeatureReport(reportID byte, data []byte) error
	GetFeatureReport(reportID byte) ([]byte, error)
	GetInputReport() (byte, []byte, error)
	Close() error
}

var _ HIDDevice = (*usbhid.Device)(nil)

// Controller is an opened, configured Steam Controller.
type Controller struct {
	dev  HIDDevice
	info DeviceInfo
	log  log.Logger
}

// Open opens the vendor interface described by info and runs the handshake.
func Open(info DeviceInfo, logger log.Logger) (*Controller, error) {
	devs, err := usbhid.Enumerate(func(d *usbhid.Device) bool {
		return d.VendorId() == info.VendorID && d.ProductId() == info.ProductID
	})
	if err != nil {
		return nil, fmt.Errorf("open %s controller %04x:%04x: %w", info.Connection, info.VendorID, info.ProductID, err)
	}

	candidates := make([]hidCandidate, 0, len(devs))
	for _, d := range devs {
		candidates = append(candidates, hidCandidate{Path: d.Path(), Interface: hidInterface(d.Path())})
	}
	i, err := matchInterface(info, candidates)
	if err != nil {
		return nil, fmt.Errorf("open %s controller %04x:%04x: %w", info.Connection, info.VendorID, info.ProductID, err)
	}
	dev := devs[i]
	if err := dev.Open(false); err != nil {
		return nil, fmt.Errorf("open %s: %w", dev.Path(), err)
	}

	c := NewController(dev, info, logger)
	if err := c.Handshake(); err != nil {
		dev.Close()
		return nil, err
	}
	return c, nil
}

// hidCandidate is a hid node of the right vendor and product. Interface is -1
// when the platform does not expose it.
type hidCandidate struct {
	Path      string
	Interface int
}

// ErrInterfaceNotFound is returned by Open when no hid node belongs to the
// requested interface.
var ErrInterfaceNotFound = errors.New("controller interface not found")

// matchInterface picks the node for info. An exact path wins, then the interface
// number. A single node with an unknown interface is accepted since nothing can
// tell it apart.
func matchInterface(info DeviceInfo, candidates []hidCandidate) (int, error) {
	if info.Path != "" {
		for i, c := range candidates {
			if c.Path == info.Path {
				return i, nil
			}
		}
	}
	for i, c := range candidates {
		if c.Interface >= 0 && c.Interface == info.Interface {
			return i, nil
		}
	}
	if len(candidates) == 1 && candidates[0].Interface < 0 {
		return 0, nil
	}
	return -1, fmt.Errorf("%w: interface %d among %d nodes", ErrInterfaceNotFound, info.Interface, len(candidates))
}

// NewController wraps an already opened device. The handshake is not run.
func NewController(dev HIDDevice, info DeviceInfo, logger log.Logger) *Controller {
	return &Controller{
		dev:  dev,
		info: info,
		log:  logger.WithField("controller", string(info.Connection)),
	}
}

func (c *Controller) Info() DeviceInfo {
	return c.info
}

// Handshake switches the controller out of lizard mode and enables the input report
// with acceleration, rotation and orientation data.
func (c *Controller) Handshake() error {
	if err := c.sendFeature(cmdClearMappings); err != nil {
		return err
	}

	received, err := c.dev.GetFeatureReport(0)
	if err != nil {
		return fmt.Errorf("read attributes: %w", err)
	}
	reply := make([]byte, featureReportSize)
	copy(reply, received)
	reply[0], reply[1], reply[2] = cmdGetAttributes, 0x15, 0x01
	// Zero from byte 24 of the report, counting the report ID.
	for i := 23; i < len(reply); i++ {
		reply[i] = 0
	}
	if err := c.dev.SetFeatureReport(0, reply); err != nil {
		return fmt.Errorf("write attributes: %w", err)
	}
	if _, err := c.dev.GetFeatureReport(0); err != nil {
		return fmt.Errorf("read attributes reply: %w", err)
	}

	if err := c.sendFeature(cmdDefaultMapping); err != nil {
		return err
	}

	if err := c.dev.SetFeatureReport(0, padFeature(configureInputReport)); err != nil {
		return fmt.Errorf("configure input report: %w", err)
	}
	state, err := c.dev.GetFeatureReport(0)
	if err != nil {
		return fmt.Errorf("read configuration reply: %w", err)
	}
	c.log.Debugf("Controller configured, reply % x", state)
	return nil
}

func (c *Controller) sendFeature(cmd byte) error {
	if err := c.dev.SetFeatureReport(0, padFeature([]byte{cmd})); err != nil {
		return fmt.Errorf("feature report %#02x: %w", cmd, err)
	}
	return nil
}

func padFeature(b []byte) []byte {
	out := make([]byte, featureReportSize)
	copy(out, b)
	return out
}

// Run reads input reports until ctx is done or the device fails, sending each
// decoded snapshot to out. Reports too short to decode are skipped.
func (c *Controller) Run(ctx context.Context, out chan<- Snapshot) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		_, report, err := c.dev.GetInputReport()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input report: %w", err)
		}

		snap, err := Decode(report)
		if err != nil {
			c.log.Debugf("Dropping report: %v", err)
			continue
		}

		select {
		case out <- snap:
		case <-ctx.Done():
			return nil
		}
	}
}

// Close releases the device, unblocking a pending Run.
func (c *Controller) Close() error {
	return c.dev.Close()
}
