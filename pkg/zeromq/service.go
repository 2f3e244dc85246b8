package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	customlog "github.com/open-teleop/omnidrive/pkg/log"
)

var (
	ErrServiceClosed      = errors.New("zeromq service is closed")
	ErrInvalidMessage     = errors.New("invalid message format")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Message types
const (
	MsgTypeMotionCommand  = "MOTION_COMMAND"
	MsgTypeTwistCommand   = "TWIST_COMMAND"
	MsgTypeCommandReply   = "COMMAND_REPLY"
	MsgTypeStatusRequest  = "STATUS_REQUEST"
	MsgTypeStatusResponse = "STATUS_RESPONSE"
	MsgTypeConfigUpdated  = "CONFIG_UPDATED"
	MsgTypeError          = "ERROR"
)

const (
	socketTimeout = 1 * time.Second
	pollInterval  = 500 * time.Millisecond
)

// Config holds the bind addresses of the two sockets.
type Config struct {
	CommandBindAddress   string
	TelemetryBindAddress string
}

// ZeroMQMessage is the JSON envelope used on both sockets.
type ZeroMQMessage struct {
	Type      string          `json:"type"`
	Timestamp float64         `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ErrorResponse is the Data of an ERROR reply.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func newEnvelope(msgType string, data interface{}) ([]byte, error) {
	msg := struct {
		Type      string      `json:"type"`
		Timestamp float64     `json:"timestamp"`
		Data      interface{} `json:"data,omitempty"`
	}{
		Type:      msgType,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Data:      data,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", msgType, err)
	}
	return b, nil
}

// MessageHandler processes the Data of one message type and returns the reply.
type MessageHandler interface {
	HandleMessage(data json.RawMessage) ([]byte, error)
}

// MessageDispatcher routes requests to handlers by message type.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	logger   customlog.Logger
	mu       sync.RWMutex
}

func NewMessageDispatcher(logger customlog.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   logger,
	}
}

func (d *MessageDispatcher) RegisterHandler(messageType string, handler MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[messageType] = handler
	d.logger.Debugf("Registered handler for message type: %s", messageType)
}

// Dispatch decodes the envelope and calls the handler for its type.
func (d *MessageDispatcher) Dispatch(data []byte) ([]byte, error) {
	var msg ZeroMQMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	d.mu.RLock()
	handler, exists := d.handlers[msg.Type]
	d.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, msg.Type)
	}
	d.logger.Debugf("Dispatching message of type: %s", msg.Type)
	return handler.HandleMessage(msg.Data)
}

// errorReply builds the ERROR envelope sent when dispatch fails.
func errorReply(err error) []byte {
	code := 500
	if errors.Is(err, ErrInvalidMessage) || errors.Is(err, ErrUnknownMessageType) {
		code = 400
	}
	b, _ := newEnvelope(MsgTypeError, ErrorResponse{Message: err.Error(), Code: code})
	return b
}

// MessageReceiver serves the REP socket.
type MessageReceiver struct {
	socket     *zmq4.Socket
	dispatcher *MessageDispatcher
	poller     *zmq4.Poller
	logger     customlog.Logger
	mu         sync.Mutex
	running    bool
	wg         *sync.WaitGroup
}

func newMessageReceiver(ctx *zmq4.Context, address string, dispatcher *MessageDispatcher, logger customlog.Logger, wg *sync.WaitGroup) (*MessageReceiver, error) {
	socket, err := ctx.NewSocket(zmq4.REP)
	if err != nil {
		return nil, fmt.Errorf("failed to create REP socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.SetRcvtimeo(socketTimeout); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set receive timeout: %w", err)
	}
	if err := socket.SetSndtimeo(socketTimeout); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set send timeout: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	logger.Infof("Command endpoint bound on %s", address)

	return &MessageReceiver{
		socket:     socket,
		dispatcher: dispatcher,
		poller:     poller,
		logger:     logger,
		wg:         wg,
	}, nil
}

func (r *MessageReceiver) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *MessageReceiver) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop()
}

func (r *MessageReceiver) loop() {
	defer r.wg.Done()
	defer r.socket.Close()

	for r.isRunning() {
		sockets, err := r.poller.Poll(pollInterval)
		if err != nil {
			if r.isRunning() {
				r.logger.Warnf("Error polling command socket: %v", err)
			}
			continue
		}
		if len(sockets) == 0 {
			continue
		}

		msg, err := r.socket.RecvBytes(0)
		if err != nil {
			if r.isRunning() {
				r.logger.Warnf("Error receiving command: %v", err)
			}
			continue
		}

		response, err := r.dispatcher.Dispatch(msg)
		if err != nil {
			r.logger.Warnf("Error dispatching command: %v", err)
			response = errorReply(err)
		}

		if _, err := r.socket.SendBytes(response, 0); err != nil && r.isRunning() {
			r.logger.Errorf("Error sending reply: %v", err)
		}
	}
}

// Stop ends the loop; the socket is closed by the loop goroutine, which owns it.
func (r *MessageReceiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
}

// Endpoint returns the address actually bound, resolving wildcard ports.
func (r *MessageReceiver) Endpoint() (string, error) {
	return r.socket.GetLastEndpoint()
}

// MessageSender publishes on the PUB socket. Each message is two frames: topic, then
// payload.
type MessageSender struct {
	socket  *zmq4.Socket
	logger  customlog.Logger
	running bool
	mu      sync.Mutex
}

func newMessageSender(ctx *zmq4.Context, address string, logger customlog.Logger) (*MessageSender, error) {
	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	logger.Infof("Telemetry endpoint bound on %s", address)

	return &MessageSender{
		socket:  socket,
		logger:  logger,
		running: true,
	}, nil
}

func (s *MessageSender) PublishMessage(topic string, message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServiceClosed
	}

	if _, err := s.socket.Send(topic, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := s.socket.SendBytes(message, 0); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (s *MessageSender) Endpoint() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.socket == nil {
		return "", ErrServiceClosed
	}
	return s.socket.GetLastEndpoint()
}

func (s *MessageSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	if s.socket != nil {
		s.socket.Close()
		s.socket = nil
	}
}

// ZeroMQService owns the command (REP) and telemetry (PUB) sockets.
type ZeroMQService struct {
	ctx        *zmq4.Context
	receiver   *MessageReceiver
	sender     *MessageSender
	dispatcher *MessageDispatcher
	logger     customlog.Logger
	mu         sync.Mutex
	running    bool
	wg         *sync.WaitGroup
}

func NewZeroMQService(cfg Config, logger customlog.Logger) (*ZeroMQService, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}

	dispatcher := NewMessageDispatcher(logger)
	wg := &sync.WaitGroup{}

	receiver, err := newMessageReceiver(ctx, cfg.CommandBindAddress, dispatcher, logger, wg)
	if err != nil {
		ctx.Term()
		return nil, err
	}

	sender, err := newMessageSender(ctx, cfg.TelemetryBindAddress, logger)
	if err != nil {
		receiver.socket.Close()
		ctx.Term()
		return nil, err
	}

	return &ZeroMQService{
		ctx:        ctx,
		receiver:   receiver,
		sender:     sender,
		dispatcher: dispatcher,
		logger:     logger,
		wg:         wg,
	}, nil
}

func (s *ZeroMQService) RegisterHandler(messageType string, handler MessageHandler) {
	s.dispatcher.RegisterHandler(messageType, handler)
}

func (s *ZeroMQService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.logger.Infof("Starting ZeroMQ service")
	s.receiver.Start()
	return nil
}

func (s *ZeroMQService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Infof("Stopping ZeroMQ service")
	s.receiver.Stop()
	s.sender.Close()
	s.wg.Wait()

	if s.ctx != nil {
		s.ctx.Term()
		s.ctx = nil
	}
	s.logger.Infof("ZeroMQ service stopped")
}

// CommandEndpoint and TelemetryEndpoint report the bound addresses.
func (s *ZeroMQService) CommandEndpoint() (string, error) {
	return s.receiver.Endpoint()
}

func (s *ZeroMQService) TelemetryEndpoint() (string, error) {
	return s.sender.Endpoint()
}

// PublishMessage implements processing.MessagePublisher.
func (s *ZeroMQService) PublishMessage(topic string, message []byte) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return ErrServiceClosed
	}
	return s.sender.PublishMessage(topic, message)
}

// PublishJSON wraps data in an envelope of messageType and publishes it.
func (s *ZeroMQService) PublishJSON(topic string, messageType string, data interface{}) error {
	msg, err := newEnvelope(messageType, data)
	if err != nil {
		return err
	}
	return s.PublishMessage(topic, msg)
}
