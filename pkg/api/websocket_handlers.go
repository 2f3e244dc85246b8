package api

import (
	"errors"
	"net"
	"syscall"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	customlog "github.com/open-teleop/omnidrive/pkg/log"
)

// SessionTracker is told when control connections come and go.
type SessionTracker interface {
	SessionOpened(id, remote string)
	SessionClosed(id string)
}

// controlConn is the part of *websocket.Conn the control loop uses.
type controlConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	RemoteAddr() net.Addr
}

// ControlWebSocketHandler serves one control connection: each text message is a
// motion command, answered with a CommandReply. When the connection drops after
// moving the robot, a stop is submitted.
func ControlWebSocketHandler(conn *websocket.Conn, driver Driver, sessions SessionTracker, logger customlog.Logger) {
	serveControl(conn, driver, sessions, logger)
}

func serveControl(conn controlConn, driver Driver, sessions SessionTracker, logger customlog.Logger) {
	id := uuid.NewString()
	remote := conn.RemoteAddr().String()
	logger = logger.WithFields(map[string]interface{}{"session": id, "remote": remote})

	logger.Infof("Control WebSocket connected")
	if sessions != nil {
		sessions.SessionOpened(id, remote)
		defer sessions.SessionClosed(id)
	}

	moved := false
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			logClose(logger, err)
			break
		}
		if mt != websocket.TextMessage {
			logger.Infof("Ignoring non-text Control WS message type: %d", mt)
			continue
		}

		reply := handleControlMessage(msg, driver, logger)
		if reply.Status == ReplyOK {
			moved = true
		}
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warnf("Failed to write control reply: %v", err)
			break
		}
	}

	if moved {
		if _, err := driver.Submit(StopCommand()); err != nil {
			logger.Warnf("Stop after disconnect rejected: %v", err)
		} else {
			logger.Infof("Stop submitted after disconnect")
		}
	}
	logger.Infof("Control WebSocket disconnected")
}

func handleControlMessage(msg []byte, driver Driver, logger customlog.Logger) CommandReply {
	cmd, err := ParseMotionCommand(msg)
	if err != nil {
		logger.Warnf("Dropping malformed command: %v", err)
		return CommandReply{Status: ReplyError, Error: err.Error()}
	}
	if cmd.Kind == CommandNone {
		return CommandReply{Status: ReplyIgnored}
	}

	res, err := driver.Submit(cmd)
	if err != nil {
		logger.Warnf("Drive rejected command: %v", err)
		return NewErrorReply(err)
	}
	logger.Debugf("Accepted %s command, speeds=%v", cmd.Kind, res.Speeds)
	return NewOKReply(res)
}

func logClose(logger customlog.Logger, err error) {
	switch {
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure):
		logger.Errorf("Control WS read error: %v", err)
	case errors.Is(err, websocket.ErrCloseSent), errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET):
		logger.Infof("Control WS connection closed normally")
	default:
		logger.Infof("Control WS connection closed: %v", err)
	}
}
