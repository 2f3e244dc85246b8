// Package pilot turns Steam Controller input into motion messages for the robot.
package pilot

import (
	"context"
	"sync"

	"github.com/open-teleop/omnidrive/domain/kinematics"
	customlog "github.com/open-teleop/omnidrive/pkg/log"
	"github.com/open-teleop/omnidrive/pkg/steamcontroller"
)

// axisRange is the magnitude of a full joystick or trackpad deflection.
const axisRange = 32768.0

// Limits are the speeds a full deflection maps to.
type Limits struct {
	MaxSpeed    float64 `json:"max_speed"`
	MaxRotation float64 `json:"max_rotation"`
}

func DefaultLimits() Limits {
	return Limits{MaxSpeed: 0.1, MaxRotation: 1}
}

// Mapper keeps the latest intent derived from controller snapshots. A resets the
// limits, X halves them and Y doubles them, each on the press only.
type Mapper struct {
	defaults Limits
	logger   customlog.Logger

	mu      sync.Mutex
	limits  Limits
	prev    steamcontroller.Buttons
	intent  kinematics.MotionIntent
	updates uint64
}

func NewMapper(defaults Limits, logger customlog.Logger) *Mapper {
	if defaults.MaxSpeed <= 0 || defaults.MaxRotation <= 0 {
		defaults = DefaultLimits()
	}
	return &Mapper{
		defaults: defaults,
		limits:   defaults,
		logger:   logger,
	}
}

// Update applies one snapshot. Snapshots that are not input reports are ignored and
// leave the current intent in place; ok is false for them.
func (m *Mapper) Update(s steamcontroller.Snapshot) (intent kinematics.MotionIntent, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !s.IsInput() {
		return m.intent, false
	}

	pressed := func(now, before bool) bool { return now && !before }
	switch {
	case pressed(s.Button.A, m.prev.A):
		m.limits = m.defaults
		m.logger.Infof("Limits reset: speed=%.3f m/s rotation=%.3f rad/s", m.limits.MaxSpeed, m.limits.MaxRotation)
	case pressed(s.Button.X, m.prev.X):
		m.limits.MaxSpeed /= 2
		m.limits.MaxRotation /= 2
		m.logger.Infof("Limits halved: speed=%.3f m/s rotation=%.3f rad/s", m.limits.MaxSpeed, m.limits.MaxRotation)
	case pressed(s.Button.Y, m.prev.Y):
		m.limits.MaxSpeed *= 2
		m.limits.MaxRotation *= 2
		m.logger.Infof("Limits doubled: speed=%.3f m/s rotation=%.3f rad/s", m.limits.MaxSpeed, m.limits.MaxRotation)
	}
	m.prev = s.Button

	m.intent = kinematics.MotionIntent{
		X:        float64(s.Joystick.X) / axisRange * m.limits.MaxSpeed,
		Y:        float64(s.Joystick.Y) / axisRange * m.limits.MaxSpeed,
		Rotation: -float64(s.Mouse.X) / axisRange * m.limits.MaxRotation,
	}
	m.updates++
	return m.intent, true
}

// Intent returns the most recent intent; zero until the first input report.
func (m *Mapper) Intent() kinematics.MotionIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intent
}

func (m *Mapper) Limits() Limits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits
}

// Run feeds snapshots from in into the mapper until ctx is done or in is closed.
func (m *Mapper) Run(ctx context.Context, in <-chan steamcontroller.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}
			m.Update(s)
		}
	}
}
