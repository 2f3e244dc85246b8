package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/open-teleop/omnidrive/domain/kinematics"
)

// CommandKind says how a MotionCommand reaches the wheels.
type CommandKind int

const (
	// CommandNone is a message that asks for nothing; callers ignore it.
	CommandNone CommandKind = iota
	// CommandSpeeds carries wheel speeds directly and bypasses kinematics.
	CommandSpeeds
	// CommandIntent carries a planar motion intent.
	CommandIntent
)

func (k CommandKind) String() string {
	switch k {
	case CommandSpeeds:
		return "speeds"
	case CommandIntent:
		return "intent"
	default:
		return "none"
	}
}

// MotionCommand is one parsed motion message.
type MotionCommand struct {
	Kind   CommandKind
	Speeds [3]float64
	Intent kinematics.MotionIntent
}

func SpeedsCommand(speeds [3]float64) MotionCommand {
	return MotionCommand{Kind: CommandSpeeds, Speeds: speeds}
}

func IntentCommand(intent kinematics.MotionIntent) MotionCommand {
	return MotionCommand{Kind: CommandIntent, Intent: intent}
}

// StopCommand commands all wheels to zero.
func StopCommand() MotionCommand {
	return SpeedsCommand([3]float64{})
}

// motionMessage is the wire shape of a motion command: {"speeds":[a,b,c]} or
// {"x":..,"y":..,"w":..}.
type motionMessage struct {
	Speeds json.RawMessage `json:"speeds,omitempty"`
	X      *float64        `json:"x,omitempty"`
	Y      *float64        `json:"y,omitempty"`
	W      *float64        `json:"w,omitempty"`
}

// ParseMotionCommand decodes a JSON motion message. A speeds array of exactly three
// numbers wins; otherwise an object carrying any of x, y or w is an intent with the
// missing members at zero. Any other object yields CommandNone. Malformed JSON is an
// error.
func ParseMotionCommand(data []byte) (MotionCommand, error) {
	var msg motionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return MotionCommand{}, fmt.Errorf("malformed motion command: %w", err)
	}

	if len(msg.Speeds) > 0 {
		var speeds []float64
		if err := json.Unmarshal(msg.Speeds, &speeds); err == nil && len(speeds) == 3 {
			return SpeedsCommand([3]float64{speeds[0], speeds[1], speeds[2]}), nil
		}
	}

	if msg.X == nil && msg.Y == nil && msg.W == nil {
		return MotionCommand{}, nil
	}

	var intent kinematics.MotionIntent
	if msg.X != nil {
		intent.X = *msg.X
	}
	if msg.Y != nil {
		intent.Y = *msg.Y
	}
	if msg.W != nil {
		intent.Rotation = *msg.W
	}
	return IntentCommand(intent), nil
}

// Vector3 defines a standard 3D vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// TwistMsg is a velocity command in the geometry_msgs/Twist layout, accepted on the
// ZeroMQ command endpoint.
type TwistMsg struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// Command converts the twist into an intent command.
func (t TwistMsg) Command() MotionCommand {
	linear := r3.Vector{X: t.Linear.X, Y: t.Linear.Y, Z: t.Linear.Z}
	angular := r3.Vector{X: t.Angular.X, Y: t.Angular.Y, Z: t.Angular.Z}
	return IntentCommand(kinematics.FromTwist(linear, angular))
}

// DriveResult is what the drive reports back for an accepted command.
type DriveResult struct {
	Speeds [3]float32
	// Ack is the hex of the last acknowledgement clocked back from the controller,
	// empty before the first transfer.
	Ack string
}

// ErrBusFault is wrapped by Driver.Submit while the motor bus is faulted.
var ErrBusFault = errors.New("motor bus fault")

// Driver accepts motion commands.
type Driver interface {
	Submit(cmd MotionCommand) (DriveResult, error)
}

// CommandReply is sent back over the control websocket after each command.
type CommandReply struct {
	Status string    `json:"status"`
	Speeds []float32 `json:"speeds,omitempty"`
	Ack    string    `json:"ack,omitempty"`
	Error  string    `json:"error,omitempty"`
}

const (
	ReplyOK      = "ok"
	ReplyFault   = "fault"
	ReplyError   = "error"
	ReplyIgnored = "ignored"
)

// NewOKReply builds the reply for an accepted command.
func NewOKReply(res DriveResult) CommandReply {
	return CommandReply{Status: ReplyOK, Speeds: res.Speeds[:], Ack: res.Ack}
}

// NewErrorReply builds the reply for a rejected command. Bus faults are reported
// with status "fault" so clients can tell them from bad input.
func NewErrorReply(err error) CommandReply {
	status := ReplyError
	if errors.Is(err, ErrBusFault) {
		status = ReplyFault
	}
	return CommandReply{Status: status, Error: err.Error()}
}
