package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/open-teleop/omnidrive/domain/drive"
	customlog "github.com/open-teleop/omnidrive/pkg/log"
	"github.com/open-teleop/omnidrive/pkg/processing"
)

// Fault event types.
const (
	EventFault        = "FAULT"
	EventFaultCleared = "FAULT_CLEARED"
)

// FaultEvent is the JSON payload of telemetry.fault.
type FaultEvent struct {
	Type      string    `json:"type"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type message struct {
	topic string
	data  []byte
}

// eventQueueSize bounds fault events waiting for a slow publisher.
const eventQueueSize = 16

// Reporter is a drive.Observer that publishes from its own workers, so a slow
// publisher never stalls the transmit worker. Only the newest wheel sample is kept
// when publishing falls behind; fault events are queued and published in order.
type Reporter struct {
	publisher processing.MessagePublisher
	logger    customlog.Logger

	wheels       *processing.Slot[message]
	events       *processing.Queue[message]
	wheelsWorker *processing.Worker[message]
	eventsWorker *processing.Worker[message]
}

var _ drive.Observer = (*Reporter)(nil)

func NewReporter(publisher processing.MessagePublisher, logger customlog.Logger) *Reporter {
	r := &Reporter{
		publisher: publisher,
		logger:    logger,
		wheels:    processing.NewSlot[message](),
		events:    processing.NewQueue[message](eventQueueSize),
	}
	r.wheelsWorker = processing.NewWorker("telemetry-wheels", r.wheels, r.publish, logger)
	r.eventsWorker = processing.NewWorker("telemetry-events", r.events, r.publish, logger)
	return r
}

func (r *Reporter) Start() {
	r.wheelsWorker.Start()
	r.eventsWorker.Start()
}

func (r *Reporter) Stop() {
	r.wheelsWorker.Stop()
	r.eventsWorker.Stop()
}

func (r *Reporter) publish(_ context.Context, m message) error {
	return r.publisher.PublishMessage(m.topic, m.data)
}

func (r *Reporter) TransferCompleted(t drive.Transfer) {
	r.wheels.Put(message{topic: TopicWheels, data: EncodeWheels(t)})
}

func (r *Reporter) FaultRaised(err error) {
	r.event(FaultEvent{Type: EventFault, Error: err.Error(), Timestamp: time.Now()})
}

func (r *Reporter) FaultCleared() {
	r.event(FaultEvent{Type: EventFaultCleared, Timestamp: time.Now()})
}

func (r *Reporter) event(ev FaultEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Errorf("Failed to encode %s event: %v", ev.Type, err)
		return
	}
	if r.events.Put(message{topic: TopicFault, data: data}) {
		r.logger.Warnf("Fault event queue full, oldest event discarded")
	}
}

// Metrics reports the publishing workers' counters.
func (r *Reporter) Metrics() map[string]processing.TransferMetrics {
	return map[string]processing.TransferMetrics{
		r.wheelsWorker.GetName(): r.wheelsWorker.GetMetrics(),
		r.eventsWorker.GetName(): r.eventsWorker.GetMetrics(),
	}
}
