package processing

import (
	customlog "github.com/open-teleop/omnidrive/pkg/log"
)

// MessagePublisher publishes a payload under a topic.
type MessagePublisher interface {
	PublishMessage(topic string, data []byte) error
}

// FanoutPublisher forwards each message to every configured publisher. A failing
// publisher is logged and does not stop the others.
type FanoutPublisher struct {
	logger     customlog.Logger
	publishers []MessagePublisher
}

func NewFanoutPublisher(logger customlog.Logger, publishers ...MessagePublisher) *FanoutPublisher {
	f := &FanoutPublisher{logger: logger}
	for _, p := range publishers {
		if p != nil {
			f.publishers = append(f.publishers, p)
		}
	}
	return f
}

// Add registers another publisher.
func (f *FanoutPublisher) Add(p MessagePublisher) {
	if p != nil {
		f.publishers = append(f.publishers, p)
	}
}

// PublishMessage returns the first error seen, after trying all publishers.
func (f *FanoutPublisher) PublishMessage(topic string, data []byte) error {
	var first error
	for _, p := range f.publishers {
		if err := p.PublishMessage(topic, data); err != nil {
			f.logger.Errorf("Failed to publish message for topic '%s': %v", topic, err)
			if first == nil {
				first = err
			}
			continue
		}
		f.logger.Debugf("Published message for topic '%s'", topic)
	}
	return first
}
