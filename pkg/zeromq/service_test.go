package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/open-teleop/omnidrive/pkg/api"
	"github.com/open-teleop/omnidrive/pkg/log"
)

const testTopic = "telemetry.wheels"

type fakeDriver struct {
	mu   sync.Mutex
	cmds []api.MotionCommand
	err  error
}

func (d *fakeDriver) Submit(cmd api.MotionCommand) (api.DriveResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return api.DriveResult{}, d.err
	}
	d.cmds = append(d.cmds, cmd)
	return api.DriveResult{Speeds: [3]float32{1, 2, 3}, Ack: "00"}, nil
}

func (d *fakeDriver) submitted() []api.MotionCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]api.MotionCommand(nil), d.cmds...)
}

func request(t *testing.T, msgType string, data string) []byte {
	t.Helper()
	if data == "" {
		return []byte(fmt.Sprintf(`{"type":%q,"timestamp":1}`, msgType))
	}
	return []byte(fmt.Sprintf(`{"type":%q,"timestamp":1,"data":%s}`, msgType, data))
}

type reply struct {
	Type string           `json:"type"`
	Data api.CommandReply `json:"data"`
}

func decodeReply(t *testing.T, b []byte) reply {
	t.Helper()
	var r reply
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatalf("bad reply %s: %v", b, err)
	}
	return r
}

func newTestDispatcher(driver api.Driver) *MessageDispatcher {
	logger := log.Discard()
	d := NewMessageDispatcher(logger)
	d.RegisterHandler(MsgTypeMotionCommand, NewMotionCommandHandler(driver, logger))
	d.RegisterHandler(MsgTypeTwistCommand, NewTwistCommandHandler(driver, logger))
	d.RegisterHandler(MsgTypeStatusRequest, NewStatusHandler(func() interface{} {
		return map[string]bool{"faulted": false}
	}, logger))
	return d
}

func TestDispatchMotionCommand(t *testing.T) {
	driver := &fakeDriver{}
	d := newTestDispatcher(driver)

	out, err := d.Dispatch(request(t, MsgTypeMotionCommand, `{"speeds":[0.5,-0.5,0]}`))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	r := decodeReply(t, out)
	if r.Type != MsgTypeCommandReply || r.Data.Status != api.ReplyOK {
		t.Fatalf("unexpected reply %+v", r)
	}
	if len(r.Data.Speeds) != 3 || r.Data.Speeds[2] != 3 {
		t.Errorf("reply speeds = %v", r.Data.Speeds)
	}

	cmds := driver.submitted()
	if len(cmds) != 1 || cmds[0].Kind != api.CommandSpeeds || cmds[0].Speeds[0] != 0.5 {
		t.Errorf("submitted %+v", cmds)
	}
}

func TestDispatchTwistCommand(t *testing.T) {
	driver := &fakeDriver{}
	d := newTestDispatcher(driver)

	_, err := d.Dispatch(request(t, MsgTypeTwistCommand, `{"linear":{"x":0.2,"y":0.1,"z":0},"angular":{"x":0,"y":0,"z":1.5}}`))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	cmds := driver.submitted()
	if len(cmds) != 1 || cmds[0].Kind != api.CommandIntent {
		t.Fatalf("submitted %+v", cmds)
	}
	if in := cmds[0].Intent; in.X != 0.2 || in.Y != 0.1 || in.Rotation != 1.5 {
		t.Errorf("intent = %+v", in)
	}
}

func TestDispatchIgnoresEmptyCommand(t *testing.T) {
	driver := &fakeDriver{}
	d := newTestDispatcher(driver)

	out, err := d.Dispatch(request(t, MsgTypeMotionCommand, `{"speeds":[1,2]}`))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if r := decodeReply(t, out); r.Data.Status != api.ReplyIgnored {
		t.Errorf("status = %q, want %q", r.Data.Status, api.ReplyIgnored)
	}
	if len(driver.submitted()) != 0 {
		t.Errorf("empty command reached the driver")
	}
}

func TestDispatchReportsFault(t *testing.T) {
	driver := &fakeDriver{err: fmt.Errorf("%w: spi timeout", api.ErrBusFault)}
	d := newTestDispatcher(driver)

	out, err := d.Dispatch(request(t, MsgTypeMotionCommand, `{"x":1}`))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if r := decodeReply(t, out); r.Data.Status != api.ReplyFault || r.Data.Error == "" {
		t.Errorf("unexpected reply %+v", r.Data)
	}
}

func TestDispatchErrors(t *testing.T) {
	d := newTestDispatcher(&fakeDriver{})

	tests := []struct {
		name string
		msg  []byte
		want error
	}{
		{"not json", []byte{0x10, 0x00, 0x01}, ErrInvalidMessage},
		{"unknown type", request(t, "CONFIG_REQUEST", ""), ErrUnknownMessageType},
		{"bad motion data", request(t, MsgTypeMotionCommand, `[1,2,3]`), ErrInvalidMessage},
		{"bad twist data", request(t, MsgTypeTwistCommand, `"fast"`), ErrInvalidMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(tt.msg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var env struct {
				Type string        `json:"type"`
				Data ErrorResponse `json:"data"`
			}
			if err := json.Unmarshal(errorReply(err), &env); err != nil {
				t.Fatalf("error reply not json: %v", err)
			}
			if env.Type != MsgTypeError || env.Data.Code != 400 {
				t.Errorf("error reply = %+v", env)
			}
		})
	}
}

func TestDispatchStatus(t *testing.T) {
	d := newTestDispatcher(&fakeDriver{})

	out, err := d.Dispatch(request(t, MsgTypeStatusRequest, ""))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	var env struct {
		Type string          `json:"type"`
		Data map[string]bool `json:"data"`
	}
	if err := json.Unmarshal(out, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != MsgTypeStatusResponse {
		t.Errorf("type = %q", env.Type)
	}
	if faulted, ok := env.Data["faulted"]; !ok || faulted {
		t.Errorf("data = %v", env.Data)
	}
}

// TestServiceRoundTrip exercises the real sockets on loopback ports picked by the OS.
func TestServiceRoundTrip(t *testing.T) {
	logger := log.Discard()
	svc, err := NewZeroMQService(Config{
		CommandBindAddress:   "tcp://127.0.0.1:*",
		TelemetryBindAddress: "tcp://127.0.0.1:*",
	}, logger)
	if err != nil {
		t.Skipf("zeromq unavailable: %v", err)
	}
	driver := &fakeDriver{}
	RegisterDriveHandlers(svc, driver, func() interface{} { return "ok" }, logger)
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}
	defer svc.Stop()

	cmdEndpoint, err := svc.CommandEndpoint()
	if err != nil {
		t.Fatal(err)
	}
	telemetryEndpoint, err := svc.TelemetryEndpoint()
	if err != nil {
		t.Fatal(err)
	}

	sub, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	sub.SetRcvtimeo(200 * time.Millisecond)
	sub.SetSubscribe(testTopic)
	if err := sub.Connect(telemetryEndpoint); err != nil {
		t.Fatal(err)
	}

	req, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		t.Fatal(err)
	}
	defer req.Close()
	req.SetLinger(0)
	req.SetRcvtimeo(2 * time.Second)
	if err := req.Connect(cmdEndpoint); err != nil {
		t.Fatal(err)
	}

	if _, err := req.SendBytes(request(t, MsgTypeMotionCommand, `{"x":0.1}`), 0); err != nil {
		t.Fatal(err)
	}
	out, err := req.RecvBytes(0)
	if err != nil {
		t.Fatalf("no reply: %v", err)
	}
	if r := decodeReply(t, out); r.Data.Status != api.ReplyOK {
		t.Errorf("reply = %+v", r)
	}

	// PUB drops messages until the subscription has propagated; retry for a while.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := svc.PublishMessage(testTopic, []byte("wheels")); err != nil {
			t.Fatal(err)
		}
		parts, err := sub.RecvMessageBytes(0)
		if err != nil {
			continue
		}
		if len(parts) != 2 || string(parts[0]) != testTopic || string(parts[1]) != "wheels" {
			t.Fatalf("received %q", parts)
		}
		return
	}
	t.Fatal("telemetry never reached the subscriber")
}

func TestPublishAfterStop(t *testing.T) {
	svc, err := NewZeroMQService(Config{
		CommandBindAddress:   "tcp://127.0.0.1:*",
		TelemetryBindAddress: "tcp://127.0.0.1:*",
	}, log.Discard())
	if err != nil {
		t.Skipf("zeromq unavailable: %v", err)
	}
	svc.Start()
	svc.Stop()

	if err := svc.PublishMessage(testTopic, []byte("x")); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("error = %v, want ErrServiceClosed", err)
	}
}
