package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/open-teleop/omnidrive/pkg/log"
)

const uartReadTimeout = 200 * time.Millisecond

// ErrTimeout is returned when the controller does not answer a full frame in time.
var ErrTimeout = errors.New("uart reply timeout")

// UART sends each frame over a serial line and reads back a reply of the same size.
type UART struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	closed bool
	log    log.Logger
}

// OpenUART opens device at baud, 8N1.
func OpenUART(device string, baud int, logger log.Logger) (*UART, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	if err := port.SetReadTimeout(uartReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", device, err)
	}

	logger.Infof("UART bus open: device=%s baud=%d", device, baud)
	return newUART(port, logger), nil
}

func newUART(port io.ReadWriteCloser, logger log.Logger) *UART {
	return &UART{port: port, log: logger}
}

// Transfer writes tx and waits for len(tx) reply bytes. A read that times out with
// nothing received is an error: the controller is expected to answer every frame.
func (u *UART) Transfer(ctx context.Context, tx []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil, ErrClosed
	}

	if _, err := u.port.Write(tx); err != nil {
		return nil, fmt.Errorf("uart write: %w", err)
	}

	rx := make([]byte, len(tx))
	for got := 0; got < len(rx); {
		n, err := u.port.Read(rx[got:])
		if err != nil {
			return nil, fmt.Errorf("uart read: %w", err)
		}
		// go.bug.st/serial reports a read timeout as (0, nil).
		if n == 0 {
			return nil, fmt.Errorf("%w: got %d of %d bytes", ErrTimeout, got, len(rx))
		}
		got += n
	}
	return rx, nil
}

func (u *UART) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	return u.port.Close()
}
