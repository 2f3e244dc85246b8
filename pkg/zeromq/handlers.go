package zeromq

import (
	"encoding/json"
	"fmt"

	"github.com/open-teleop/omnidrive/pkg/api"
	customlog "github.com/open-teleop/omnidrive/pkg/log"
)

// MotionCommandHandler handles MOTION_COMMAND messages. Data is a motion message,
// {"speeds":[a,b,c]} or {"x":..,"y":..,"w":..}.
type MotionCommandHandler struct {
	driver api.Driver
	logger customlog.Logger
}

func NewMotionCommandHandler(driver api.Driver, logger customlog.Logger) *MotionCommandHandler {
	return &MotionCommandHandler{driver: driver, logger: logger}
}

func (h *MotionCommandHandler) HandleMessage(data json.RawMessage) ([]byte, error) {
	cmd, err := api.ParseMotionCommand(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return submit(h.driver, cmd, h.logger)
}

// TwistCommandHandler handles TWIST_COMMAND messages carrying a geometry_msgs/Twist.
type TwistCommandHandler struct {
	driver api.Driver
	logger customlog.Logger
}

func NewTwistCommandHandler(driver api.Driver, logger customlog.Logger) *TwistCommandHandler {
	return &TwistCommandHandler{driver: driver, logger: logger}
}

func (h *TwistCommandHandler) HandleMessage(data json.RawMessage) ([]byte, error) {
	var twist api.TwistMsg
	if err := json.Unmarshal(data, &twist); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return submit(h.driver, twist.Command(), h.logger)
}

// submit always produces a COMMAND_REPLY; a rejected command is reported in the
// reply rather than as an ERROR.
func submit(driver api.Driver, cmd api.MotionCommand, logger customlog.Logger) ([]byte, error) {
	if cmd.Kind == api.CommandNone {
		return newEnvelope(MsgTypeCommandReply, api.CommandReply{Status: api.ReplyIgnored})
	}

	res, err := driver.Submit(cmd)
	if err != nil {
		logger.Warnf("Drive rejected %s command: %v", cmd.Kind, err)
		return newEnvelope(MsgTypeCommandReply, api.NewErrorReply(err))
	}
	logger.Debugf("Accepted %s command, speeds=%v", cmd.Kind, res.Speeds)
	return newEnvelope(MsgTypeCommandReply, api.NewOKReply(res))
}

// StatusHandler answers STATUS_REQUEST with whatever the provider returns.
type StatusHandler struct {
	status func() interface{}
	logger customlog.Logger
}

func NewStatusHandler(status func() interface{}, logger customlog.Logger) *StatusHandler {
	return &StatusHandler{status: status, logger: logger}
}

func (h *StatusHandler) HandleMessage(json.RawMessage) ([]byte, error) {
	h.logger.Debugf("Processing status request")
	return newEnvelope(MsgTypeStatusResponse, h.status())
}

// RegisterDriveHandlers wires the command endpoint to driver.
func RegisterDriveHandlers(service *ZeroMQService, driver api.Driver, status func() interface{}, logger customlog.Logger) {
	service.RegisterHandler(MsgTypeMotionCommand, NewMotionCommandHandler(driver, logger))
	service.RegisterHandler(MsgTypeTwistCommand, NewTwistCommandHandler(driver, logger))
	service.RegisterHandler(MsgTypeStatusRequest, NewStatusHandler(status, logger))
	logger.Infof("Registered drive command handlers")
}
