// Package telemetry publishes what the drive does: one flatbuffer per bus transfer
// on telemetry.wheels and a JSON event per fault transition on telemetry.fault.
package telemetry

import (
	"errors"
	"fmt"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/open-teleop/omnidrive/domain/drive"
	fb "github.com/open-teleop/omnidrive/pkg/flatbuffers/omnidrive/telemetry"
	"github.com/open-teleop/omnidrive/pkg/frame"
)

const (
	TopicWheels = "telemetry.wheels"
	TopicFault  = "telemetry.fault"
)

var ErrMalformedTelemetry = errors.New("malformed wheel telemetry")

// WheelSample is the decoded form of a telemetry.wheels message.
type WheelSample struct {
	Sequence  uint64
	Timestamp time.Time
	Speeds    [frame.WheelCount]float32
	Checksum  uint32
	Ack       []byte
	AckValid  bool
	Latency   time.Duration
}

// EncodeWheels serializes t as a WheelTelemetry flatbuffer.
func EncodeWheels(t drive.Transfer) []byte {
	builder := flatbuffers.NewBuilder(128)

	ack := builder.CreateByteVector(t.Ack.Raw[:])

	speeds := t.Frame.Speeds()
	fb.WheelTelemetryStartSpeedsVector(builder, len(speeds))
	for i := len(speeds) - 1; i >= 0; i-- {
		builder.PrependFloat32(speeds[i])
	}
	speedsVec := builder.EndVector(len(speeds))

	fb.WheelTelemetryStart(builder)
	fb.WheelTelemetryAddSequence(builder, t.Sequence)
	fb.WheelTelemetryAddTimestampNs(builder, t.Timestamp.UnixNano())
	fb.WheelTelemetryAddSpeeds(builder, speedsVec)
	fb.WheelTelemetryAddChecksum(builder, t.Frame.Checksum())
	fb.WheelTelemetryAddAck(builder, ack)
	fb.WheelTelemetryAddAckValid(builder, t.Ack.Valid())
	fb.WheelTelemetryAddLatencyUs(builder, t.Latency.Microseconds())
	root := fb.WheelTelemetryEnd(builder)
	fb.FinishWheelTelemetryBuffer(builder, root)

	return builder.FinishedBytes()
}

// DecodeWheels parses a telemetry.wheels message.
func DecodeWheels(buf []byte) (sample WheelSample, err error) {
	if len(buf) < flatbuffers.SizeUOffsetT {
		return sample, fmt.Errorf("%w: %d bytes", ErrMalformedTelemetry, len(buf))
	}
	// The generated accessors index without bounds checks of their own.
	defer func() {
		if r := recover(); r != nil {
			sample, err = WheelSample{}, fmt.Errorf("%w: %v", ErrMalformedTelemetry, r)
		}
	}()

	msg := fb.GetRootAsWheelTelemetry(buf, 0)
	if n := msg.SpeedsLength(); n != frame.WheelCount {
		return sample, fmt.Errorf("%w: %d wheel speeds", ErrMalformedTelemetry, n)
	}

	sample = WheelSample{
		Sequence:  msg.Sequence(),
		Timestamp: time.Unix(0, msg.TimestampNs()),
		Checksum:  msg.Checksum(),
		Ack:       append([]byte(nil), msg.AckBytes()...),
		AckValid:  msg.AckValid(),
		Latency:   time.Duration(msg.LatencyUs()) * time.Microsecond,
	}
	for i := range sample.Speeds {
		sample.Speeds[i] = msg.Speeds(i)
	}
	return sample, nil
}
