package bus

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/open-teleop/omnidrive/pkg/log"
)

var hostInit sync.Once
var hostErr error

// SPI is a spidev port driven through periph.io.
type SPI struct {
	mu     sync.Mutex
	port   spi.PortCloser
	conn   spi.Conn
	closed bool
	log    log.Logger
}

// OpenSPI opens device (e.g. "/dev/spidev0.0", or "" for the first port) at speedHz
// in the given SPI mode with 8-bit words.
func OpenSPI(device string, speedHz int64, mode int, logger log.Logger) (*SPI, error) {
	hostInit.Do(func() { _, hostErr = host.Init() })
	if hostErr != nil {
		return nil, fmt.Errorf("periph host init: %w", hostErr)
	}

	port, err := spireg.Open(device)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", device, err)
	}

	conn, err := port.Connect(physic.Frequency(speedHz)*physic.Hertz, spi.Mode(mode), 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect spi port %q: %w", device, err)
	}

	logger.Infof("SPI bus open: device=%q speed=%dHz mode=%d", device, speedHz, mode)
	return &SPI{port: port, conn: conn, log: logger}, nil
}

// Transfer clocks tx out and returns the bytes read at the same time.
func (s *SPI) Transfer(ctx context.Context, tx []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	rx := make([]byte, len(tx))
	if err := s.conn.Tx(tx, rx); err != nil {
		return nil, fmt.Errorf("spi transfer: %w", err)
	}
	return rx, nil
}

func (s *SPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}
