// Package config loads the YAML files the robot and pilot binaries start from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/open-teleop/omnidrive/domain/kinematics"
	"github.com/open-teleop/omnidrive/pkg/bus"
	"github.com/open-teleop/omnidrive/pkg/telemetry"
)

const (
	RobotConfigFile = "robot_config.yaml"
	PilotConfigFile = "pilot_config.yaml"
)

// LoggingConfig is shared by both binaries.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// RobotConfig is robot_config.yaml.
type RobotConfig struct {
	Logging   LoggingConfig         `yaml:"logging"`
	Server    ServerConfig          `yaml:"server"`
	Bus       bus.Config            `yaml:"bus"`
	Drive     DriveConfig           `yaml:"drive"`
	Data      DataConfig            `yaml:"data"`
	Geometry  *kinematics.Geometry  `yaml:"geometry,omitempty"`
	ZeroMQ    ZeroMQConfig          `yaml:"zeromq"`
	Redis     telemetry.RedisConfig `yaml:"redis"`
	Discovery DiscoveryConfig       `yaml:"discovery"`
}

type ServerConfig struct {
	HTTPPort  int    `yaml:"http_port"`
	StaticDir string `yaml:"static_dir,omitempty"`
}

type DriveConfig struct {
	TickMs        int     `yaml:"tick_ms"`
	StopTimeoutMs int     `yaml:"stop_timeout_ms"`
	MaxWheelSpeed float64 `yaml:"max_wheel_speed"`
}

func (d DriveConfig) Tick() time.Duration {
	return time.Duration(d.TickMs) * time.Millisecond
}

func (d DriveConfig) StopTimeout() time.Duration {
	return time.Duration(d.StopTimeoutMs) * time.Millisecond
}

// DataConfig locates the runtime-updatable geometry file.
type DataConfig struct {
	Directory    string `yaml:"directory"`
	GeometryFile string `yaml:"geometry_file"`
}

// GeometryPath is the geometry file, relative paths resolved against Directory.
func (d DataConfig) GeometryPath() string {
	if filepath.IsAbs(d.GeometryFile) {
		return d.GeometryFile
	}
	return filepath.Join(d.Directory, d.GeometryFile)
}

type ZeroMQConfig struct {
	Enabled              bool   `yaml:"enabled"`
	CommandBindAddress   string `yaml:"command_bind_address"`
	TelemetryBindAddress string `yaml:"telemetry_bind_address"`
}

type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance,omitempty"`
}

// InitialGeometry is the configured geometry, or the reference robot when none is set.
func (c *RobotConfig) InitialGeometry() kinematics.Geometry {
	if c.Geometry != nil {
		return *c.Geometry
	}
	return kinematics.DefaultGeometry()
}

func (c *RobotConfig) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Bus.Driver == bus.DriverSPI && c.Bus.SpeedHz == 0 {
		c.Bus.SpeedHz = bus.DefaultSpeedHz
	}
	if c.Bus.Driver == bus.DriverUART && c.Bus.BaudRate == 0 {
		c.Bus.BaudRate = bus.DefaultBaudRate
	}
	if c.Drive.TickMs == 0 {
		c.Drive.TickMs = 50
	}
	if c.Drive.StopTimeoutMs == 0 {
		c.Drive.StopTimeoutMs = 500
	}
	if c.Data.Directory == "" {
		c.Data.Directory = "data"
	}
	if c.Data.GeometryFile == "" {
		c.Data.GeometryFile = "geometry.yaml"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "omnidrive"
	}
}

func (c *RobotConfig) validate() error {
	switch c.Bus.Driver {
	case "":
		return missing(RobotConfigFile, "bus.driver")
	case bus.DriverSPI, bus.DriverUART:
		if c.Bus.Device == "" {
			return missing(RobotConfigFile, "bus.device")
		}
	case bus.DriverLoopback:
	default:
		return fmt.Errorf("invalid value in %s: bus.driver %q (want %s, %s or %s)",
			RobotConfigFile, c.Bus.Driver, bus.DriverSPI, bus.DriverUART, bus.DriverLoopback)
	}

	if c.Drive.TickMs < 0 || c.Drive.StopTimeoutMs < 0 || c.Drive.MaxWheelSpeed < 0 {
		return fmt.Errorf("invalid value in %s: drive timings and max_wheel_speed must not be negative", RobotConfigFile)
	}

	if c.Geometry != nil {
		if err := c.Geometry.Validate(); err != nil {
			return fmt.Errorf("invalid geometry in %s: %w", RobotConfigFile, err)
		}
	}

	if c.ZeroMQ.Enabled {
		if c.ZeroMQ.CommandBindAddress == "" {
			return missing(RobotConfigFile, "zeromq.command_bind_address")
		}
		if c.ZeroMQ.TelemetryBindAddress == "" {
			return missing(RobotConfigFile, "zeromq.telemetry_bind_address")
		}
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return missing(RobotConfigFile, "redis.host")
	}
	return nil
}

// LoadRobotConfig reads robot_config.yaml from configDir, applies defaults and
// validates it.
func LoadRobotConfig(configDir string) (*RobotConfig, error) {
	var cfg RobotConfig
	if err := load(configDir, RobotConfigFile, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(configDir, name string, out interface{}) error {
	path := filepath.Join(configDir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error parsing config file '%s': %w", path, err)
	}
	return nil
}

func missing(file, key string) error {
	return fmt.Errorf("missing required field in %s: %s", file, key)
}
