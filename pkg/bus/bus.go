// Package bus moves command frames to the motor controller. Every transfer is
// full duplex: the bytes clocked back are returned as the acknowledgement.
package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-teleop/omnidrive/pkg/log"
)

// Drivers accepted in Config.Driver.
const (
	DriverSPI      = "spidev"
	DriverUART     = "uart"
	DriverLoopback = "loopback"
)

const (
	DefaultSpeedHz  = 10_000_000
	DefaultBaudRate = 115200
)

// ErrClosed is returned by Transfer after Close.
var ErrClosed = errors.New("bus closed")

// Bus performs one duplex transfer per call. Implementations are not required to
// be safe for concurrent use; the drive service serializes transfers.
type Bus interface {
	Transfer(ctx context.Context, tx []byte) ([]byte, error)
	Close() error
}

// Config selects and parameterizes a bus driver.
type Config struct {
	Driver   string `yaml:"driver"`
	Device   string `yaml:"device"`
	SpeedHz  int64  `yaml:"speed_hz"`
	Mode     int    `yaml:"mode"`
	BaudRate int    `yaml:"baud_rate"`
}

// Open creates the bus named by cfg.Driver.
func Open(cfg Config, logger log.Logger) (Bus, error) {
	logger = logger.WithField("bus", cfg.Driver)

	switch cfg.Driver {
	case DriverSPI:
		if cfg.SpeedHz == 0 {
			cfg.SpeedHz = DefaultSpeedHz
		}
		return OpenSPI(cfg.Device, cfg.SpeedHz, cfg.Mode, logger)
	case DriverUART:
		if cfg.BaudRate == 0 {
			cfg.BaudRate = DefaultBaudRate
		}
		return OpenUART(cfg.Device, cfg.BaudRate, logger)
	case DriverLoopback:
		logger.Infof("Using loopback bus, frames are echoed back")
		return NewLoopback(), nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
	}
}
