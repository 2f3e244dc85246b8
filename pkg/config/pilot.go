package config

import (
	"fmt"
	"time"

	"github.com/open-teleop/omnidrive/domain/kinematics"
)

// Send modes for RobotLinkConfig.SendMode.
const (
	SendSpeeds = "speeds"
	SendIntent = "intent"
)

// PilotConfig is pilot_config.yaml.
type PilotConfig struct {
	Logging    LoggingConfig        `yaml:"logging"`
	Robot      RobotLinkConfig      `yaml:"robot"`
	Control    ControlConfig        `yaml:"control"`
	Controller ControllerConfig     `yaml:"controller"`
	Geometry   *kinematics.Geometry `yaml:"geometry,omitempty"`
}

// RobotLinkConfig says where the robot is and what to send it.
type RobotLinkConfig struct {
	// Address is a websocket URL, e.g. ws://robot.local:8080/ws/control.
	Address           string `yaml:"address"`
	Discover          bool   `yaml:"discover"`
	DiscoverTimeoutMs int    `yaml:"discover_timeout_ms"`
	SendMode          string `yaml:"send_mode"`
}

type ControlConfig struct {
	IntervalMs  int     `yaml:"interval_ms"`
	MaxSpeed    float64 `yaml:"max_speed"`
	MaxRotation float64 `yaml:"max_rotation"`
}

func (c ControlConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

type ControllerConfig struct {
	Prefer string `yaml:"prefer"`
}

func (r RobotLinkConfig) DiscoverTimeout() time.Duration {
	return time.Duration(r.DiscoverTimeoutMs) * time.Millisecond
}

// LocalGeometry is the geometry used to compute wheel speeds in speeds mode.
func (c *PilotConfig) LocalGeometry() kinematics.Geometry {
	if c.Geometry != nil {
		return *c.Geometry
	}
	return kinematics.DefaultGeometry()
}

func (c *PilotConfig) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Robot.SendMode == "" {
		c.Robot.SendMode = SendSpeeds
	}
	if c.Robot.DiscoverTimeoutMs == 0 {
		c.Robot.DiscoverTimeoutMs = 5000
	}
	if c.Control.IntervalMs == 0 {
		c.Control.IntervalMs = 50
	}
	if c.Control.MaxSpeed == 0 {
		c.Control.MaxSpeed = 0.1
	}
	if c.Control.MaxRotation == 0 {
		c.Control.MaxRotation = 1
	}
}

func (c *PilotConfig) validate() error {
	if c.Robot.Address == "" && !c.Robot.Discover {
		return missing(PilotConfigFile, "robot.address")
	}
	switch c.Robot.SendMode {
	case SendSpeeds, SendIntent:
	default:
		return fmt.Errorf("invalid value in %s: robot.send_mode %q (want %s or %s)",
			PilotConfigFile, c.Robot.SendMode, SendSpeeds, SendIntent)
	}
	switch c.Controller.Prefer {
	case "", "wired", "wireless":
	default:
		return fmt.Errorf("invalid value in %s: controller.prefer %q", PilotConfigFile, c.Controller.Prefer)
	}
	if c.Control.IntervalMs < 0 || c.Control.MaxSpeed < 0 || c.Control.MaxRotation < 0 {
		return fmt.Errorf("invalid value in %s: control values must not be negative", PilotConfigFile)
	}
	if c.Geometry != nil {
		if err := c.Geometry.Validate(); err != nil {
			return fmt.Errorf("invalid geometry in %s: %w", PilotConfigFile, err)
		}
	}
	return nil
}

// LoadPilotConfig reads pilot_config.yaml from configDir, applies defaults and
// validates it.
func LoadPilotConfig(configDir string) (*PilotConfig, error) {
	var cfg PilotConfig
	if err := load(configDir, PilotConfigFile, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
