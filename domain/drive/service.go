// Package drive turns motion commands into command frames and keeps them flowing to
// the motor controller.
//
// Submit stores the newest command in a single-slot buffer. A ticker takes it, runs
// the kinematics and hands the encoded frame to a transmit worker, which owns the
// bus. A slow or blocked transfer therefore never holds up the ticker, and commands
// that arrive faster than the bus can take them replace each other instead of
// queueing.
package drive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/open-teleop/omnidrive/domain/kinematics"
	"github.com/open-teleop/omnidrive/pkg/api"
	"github.com/open-teleop/omnidrive/pkg/bus"
	"github.com/open-teleop/omnidrive/pkg/frame"
	customlog "github.com/open-teleop/omnidrive/pkg/log"
	"github.com/open-teleop/omnidrive/pkg/processing"
)

const (
	DefaultTick        = 50 * time.Millisecond
	DefaultStopTimeout = 500 * time.Millisecond
)

var (
	// ErrBusFault is returned by Submit once a bus transfer has failed, until Reset.
	ErrBusFault = api.ErrBusFault
	// ErrServiceClosed is returned by Submit after Stop.
	ErrServiceClosed = errors.New("drive service closed")
)

// GeometrySource provides the current robot geometry. It is read on every tick so
// updates apply without a restart.
type GeometrySource interface {
	Geometry() kinematics.Geometry
}

// StaticGeometry is a GeometrySource that never changes.
type StaticGeometry kinematics.Geometry

func (g StaticGeometry) Geometry() kinematics.Geometry {
	return kinematics.Geometry(g)
}

// Transfer describes one completed bus transfer.
type Transfer struct {
	Sequence  uint64
	Frame     frame.Frame
	Ack       frame.Ack
	Latency   time.Duration
	Timestamp time.Time
}

// Observer is told about transfers and fault transitions. Calls are made from the
// transmit worker and must not block.
type Observer interface {
	TransferCompleted(t Transfer)
	FaultRaised(err error)
	FaultCleared()
}

// Options tunes the service. Zero values take the defaults.
type Options struct {
	Tick        time.Duration
	StopTimeout time.Duration
	Limiter     kinematics.Limiter
}

// Status is a point-in-time view of the service for diagnostics.
type Status struct {
	Faulted   bool                       `json:"faulted"`
	Fault     string                     `json:"fault,omitempty"`
	Transfers uint64                     `json:"transfers"`
	LastFrame string                     `json:"last_frame,omitempty"`
	LastAck   string                     `json:"last_ack,omitempty"`
	AckValid  bool                       `json:"ack_valid"`
	Metrics   processing.TransferMetrics `json:"metrics"`
}

// Service is the robot's drive.
type Service struct {
	bus       bus.Bus
	geometry  GeometrySource
	opts      Options
	logger    customlog.Logger
	observers []Observer

	commands *processing.Slot[api.MotionCommand]
	frames   *processing.Slot[frame.Frame]
	worker   *processing.Worker[frame.Frame]

	mu        sync.Mutex
	fault     error
	closed    bool
	started   bool
	sequence  uint64
	lastFrame frame.Frame
	lastAck   frame.Ack
	hasAck    bool

	tickStop chan struct{}
	tickDone chan struct{}
}

var _ api.Driver = (*Service)(nil)

// NewService builds a drive on b. The service does nothing until Start.
func NewService(b bus.Bus, geometry GeometrySource, opts Options, logger customlog.Logger, observers ...Observer) *Service {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}

	s := &Service{
		bus:       b,
		geometry:  geometry,
		opts:      opts,
		logger:    logger,
		observers: observers,
		commands:  processing.NewSlot[api.MotionCommand](),
		frames:    processing.NewSlot[frame.Frame](),
		tickStop:  make(chan struct{}),
		tickDone:  make(chan struct{}),
	}
	s.worker = processing.NewWorker("transmit", s.frames, s.transmit, logger)
	return s
}

// AddObserver registers o. It must be called before Start.
func (s *Service) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Start launches the transmit worker and the ticker.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	s.worker.Start()
	go s.tickLoop()
	s.logger.Infof("Drive started: tick=%v stop_timeout=%v max_wheel_speed=%v",
		s.opts.Tick, s.opts.StopTimeout, s.opts.Limiter.MaxWheelSpeed)
}

// Submit stores cmd as the newest command. The returned speeds are what the next
// tick will send if nothing newer arrives.
func (s *Service) Submit(cmd api.MotionCommand) (api.DriveResult, error) {
	if cmd.Kind == api.CommandNone {
		return api.DriveResult{}, nil
	}

	speeds := s.speedsFor(cmd)

	// The fault check and the Put happen under one lock so a command can never land
	// after raiseFault has emptied the slot.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return api.DriveResult{}, ErrServiceClosed
	}
	if s.fault != nil {
		return api.DriveResult{}, fmt.Errorf("%w: %v", ErrBusFault, s.fault)
	}

	ack := ""
	if s.hasAck {
		ack = s.lastAck.String()
	}
	if s.commands.Put(cmd) {
		s.logger.Debugf("Command replaced before it was sent")
	}
	return api.DriveResult{Speeds: speeds, Ack: ack}, nil
}

// Halt commands all wheels to zero on the next tick.
func (s *Service) Halt() error {
	_, err := s.Submit(api.StopCommand())
	return err
}

func (s *Service) speedsFor(cmd api.MotionCommand) [frame.WheelCount]float32 {
	if cmd.Kind == api.CommandSpeeds {
		return kinematics.WheelSpeeds(cmd.Speeds).Float32()
	}
	speeds := kinematics.Compute(cmd.Intent, s.geometry.Geometry())
	return s.opts.Limiter.Limit(speeds).Float32()
}

func (s *Service) tickLoop() {
	defer close(s.tickDone)

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.tickStop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick encodes the newest command, if any, for the transmit worker.
func (s *Service) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fault != nil {
		return
	}
	cmd, ok := s.commands.TryTake()
	if !ok {
		return
	}

	f := frame.EncodeSpeeds(s.speedsFor(cmd))
	s.logger.Debugf("Tick: %s command -> frame %s", cmd.Kind, f)
	s.frames.Put(f)
}

// transmit runs on the worker goroutine.
func (s *Service) transmit(ctx context.Context, f frame.Frame) error {
	if s.Faulted() {
		return nil
	}

	start := time.Now()
	rx, err := s.bus.Transfer(ctx, f.Bytes())
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.raiseFault(err)
		return err
	}

	ack, err := frame.Decode(rx)
	if err != nil {
		s.raiseFault(err)
		return err
	}

	s.mu.Lock()
	s.sequence++
	t := Transfer{
		Sequence:  s.sequence,
		Frame:     f,
		Ack:       ack,
		Latency:   time.Since(start),
		Timestamp: time.Now(),
	}
	s.lastFrame, s.lastAck, s.hasAck = f, ack, true
	s.mu.Unlock()

	s.logger.Debugf("Transferred frame %s ack=%s valid=%v", f, ack, ack.Valid())
	for _, o := range s.observers {
		o.TransferCompleted(t)
	}
	return nil
}

func (s *Service) raiseFault(err error) {
	s.mu.Lock()
	if s.fault != nil {
		s.mu.Unlock()
		return
	}
	s.fault = err
	// Nothing queued before the fault may go out after a reset.
	s.discardPending()
	s.mu.Unlock()

	s.logger.Errorf("Bus transfer failed, drive is faulted until reset: %v", err)
	for _, o := range s.observers {
		o.FaultRaised(err)
	}
}

// discardPending empties both slots. Callers hold s.mu.
func (s *Service) discardPending() {
	s.commands.TryTake()
	s.frames.TryTake()
}

// Faulted reports whether a bus failure is pending reset.
func (s *Service) Faulted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault != nil
}

// Reset clears a fault after the operator has dealt with the cause.
func (s *Service) Reset() {
	s.mu.Lock()
	prev := s.fault
	if prev != nil {
		s.discardPending()
	}
	s.fault = nil
	s.mu.Unlock()

	if prev == nil {
		return
	}
	s.logger.Infof("Drive fault cleared (was: %v)", prev)
	for _, o := range s.observers {
		o.FaultCleared()
	}
}

// Status returns a snapshot for diagnostics.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Faulted:   s.fault != nil,
		Transfers: s.sequence,
		Metrics:   s.worker.GetMetrics(),
	}
	if s.fault != nil {
		st.Fault = s.fault.Error()
	}
	if s.hasAck {
		st.LastFrame = s.lastFrame.String()
		st.LastAck = s.lastAck.String()
		st.AckValid = s.lastAck.Valid()
	}
	return st
}

// Stop shuts the drive down: it stops the ticker and worker, sends a zero-speed
// frame and closes the bus. The zero frame is sent even when the drive is faulted.
// Waiting for the worker and sending the zero frame are each bounded by the stop
// timeout and by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if started {
		close(s.tickStop)
		<-s.tickDone

		waitCtx, cancel := context.WithTimeout(ctx, s.opts.StopTimeout)
		s.waitOrTimeout(waitCtx, "transmit worker", s.worker.Stop)
		cancel()
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.StopTimeout)
	defer cancel()

	var stopErr error
	done := make(chan error, 1)
	go func() {
		_, err := s.bus.Transfer(sendCtx, frame.Zero().Bytes())
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			stopErr = fmt.Errorf("send zero frame: %w", err)
		}
	case <-sendCtx.Done():
		stopErr = fmt.Errorf("send zero frame: %w", sendCtx.Err())
	}

	if stopErr != nil {
		s.logger.Errorf("Safety stop failed: %v", stopErr)
	} else {
		s.logger.Infof("Safety stop sent")
	}

	// A transfer still stuck in the driver holds the bus; do not wait on it forever.
	closed := make(chan error, 1)
	go func() { closed <- s.bus.Close() }()
	select {
	case err := <-closed:
		if err != nil && stopErr == nil {
			stopErr = fmt.Errorf("close bus: %w", err)
		}
	case <-time.After(s.opts.StopTimeout):
		s.logger.Warnf("Timed out closing bus")
	}
	return stopErr
}

func (s *Service) waitOrTimeout(ctx context.Context, what string, fn func()) {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warnf("Timed out waiting for %s to stop", what)
	}
}
