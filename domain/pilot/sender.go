package pilot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/open-teleop/omnidrive/domain/kinematics"
	customlog "github.com/open-teleop/omnidrive/pkg/log"
)

// Mode selects the message shape the sender puts on the wire.
type Mode string

const (
	// ModeSpeeds computes wheel speeds locally and sends {"speeds":[...]}.
	ModeSpeeds Mode = "speeds"
	// ModeIntent sends {"x":..,"y":..,"w":..} and lets the robot run the kinematics.
	ModeIntent Mode = "intent"
)

const DefaultInterval = 50 * time.Millisecond

// Transport delivers one JSON-encodable message. It may drop messages while the
// link is down, returning an error.
type Transport interface {
	Send(v interface{}) error
}

// IntentSource supplies the intent to send on each tick. *Mapper implements it.
type IntentSource interface {
	Intent() kinematics.MotionIntent
}

type speedsMessage struct {
	Speeds [3]float64 `json:"speeds"`
}

type SenderOptions struct {
	Mode     Mode
	Interval time.Duration
	// Geometry is used in ModeSpeeds.
	Geometry kinematics.Geometry
}

// Sender periodically sends the current intent to the robot.
type Sender struct {
	transport Transport
	source    IntentSource
	opts      SenderOptions
	logger    customlog.Logger
}

func NewSender(transport Transport, source IntentSource, opts SenderOptions, logger customlog.Logger) (*Sender, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	switch opts.Mode {
	case "":
		opts.Mode = ModeSpeeds
	case ModeSpeeds, ModeIntent:
	default:
		return nil, fmt.Errorf("unknown send mode %q", opts.Mode)
	}
	if opts.Mode == ModeSpeeds {
		if err := opts.Geometry.Validate(); err != nil {
			return nil, err
		}
	}
	return &Sender{transport: transport, source: source, opts: opts, logger: logger}, nil
}

// Message builds the wire message for intent.
func (s *Sender) Message(intent kinematics.MotionIntent) interface{} {
	if s.opts.Mode == ModeIntent {
		return intent
	}
	return speedsMessage{Speeds: kinematics.Compute(intent, s.opts.Geometry)}
}

// SendZero sends a stop. Zero speeds go out in either mode.
func (s *Sender) SendZero() error {
	return s.transport.Send(speedsMessage{})
}

// Run sends the source's intent every interval until ctx is done.
func (s *Sender) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.transport.Send(s.Message(s.source.Intent())); err != nil {
				s.logger.Debugf("Dropped motion message: %v", err)
			}
		}
	}
}

// Shutdown sends a final stop, waiting at most timeout for the write.
func (s *Sender) Shutdown(timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- s.SendZero() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send stop: %w", err)
		}
		return nil
	case <-time.After(timeout):
		return errors.New("send stop: timed out")
	}
}
