package zeromq

import (
	"time"

	"github.com/open-teleop/omnidrive/domain/kinematics"
	customlog "github.com/open-teleop/omnidrive/pkg/log"
)

// TopicConfigNotification carries CONFIG_UPDATED notifications.
const TopicConfigNotification = "configuration.notification"

// GeometryUpdate is the CONFIG_UPDATED notification payload.
type GeometryUpdate struct {
	Version     int                 `json:"version"`
	LastUpdated time.Time           `json:"last_updated"`
	Geometry    kinematics.Geometry `json:"geometry"`
}

// ConfigPublisher tells subscribers the robot geometry changed.
type ConfigPublisher struct {
	service *ZeroMQService
	logger  customlog.Logger
}

func NewConfigPublisher(service *ZeroMQService, logger customlog.Logger) *ConfigPublisher {
	return &ConfigPublisher{service: service, logger: logger}
}

// PublishGeometryUpdated publishes a CONFIG_UPDATED notification.
func (p *ConfigPublisher) PublishGeometryUpdated(version int, g kinematics.Geometry) error {
	p.logger.Infof("Publishing geometry update notification (version %d)", version)

	return p.service.PublishJSON(TopicConfigNotification, MsgTypeConfigUpdated, GeometryUpdate{
		Version:     version,
		LastUpdated: time.Now(),
		Geometry:    g,
	})
}
