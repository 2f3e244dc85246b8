// Package kinematics converts a planar motion intent into wheel speeds for a
// three-wheel holonomic (omni-wheel) base.
package kinematics

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned by Validate for geometries the transform cannot use.
var ErrInvalidGeometry = errors.New("invalid robot geometry")

// Geometry describes the physical layout of the base. Lengths are in meters, angles
// in degrees measured counter-clockwise from the robot's +x axis.
type Geometry struct {
	RobotRadius     float64    `yaml:"robot_radius" json:"robot_radius"`
	WheelRadius     float64    `yaml:"wheel_radius" json:"wheel_radius"`
	WheelFromCenter float64    `yaml:"wheel_from_center" json:"wheel_from_center"`
	WheelAngles     [3]float64 `yaml:"wheel_angles" json:"wheel_angles"`
	WheelAxisAngles [3]float64 `yaml:"wheel_axis_angles" json:"wheel_axis_angles"`
}

// DefaultGeometry returns the reference robot: wheels mounted at 120°, 240° and 0°.
func DefaultGeometry() Geometry {
	return Geometry{
		RobotRadius:     0.067,
		WheelRadius:     0.0175,
		WheelFromCenter: 0.051,
		WheelAngles:     [3]float64{120, 240, 0},
		WheelAxisAngles: [3]float64{30, 150, 270},
	}
}

// Validate rejects geometries that would make the transform divide by zero or
// produce non-finite speeds.
func (g Geometry) Validate() error {
	if !finite(g.WheelRadius) || g.WheelRadius <= 0 {
		return fmt.Errorf("%w: wheel_radius must be positive, got %v", ErrInvalidGeometry, g.WheelRadius)
	}
	if !finite(g.WheelFromCenter) || g.WheelFromCenter < 0 {
		return fmt.Errorf("%w: wheel_from_center must not be negative, got %v", ErrInvalidGeometry, g.WheelFromCenter)
	}
	if !finite(g.RobotRadius) || g.RobotRadius < 0 {
		return fmt.Errorf("%w: robot_radius must not be negative, got %v", ErrInvalidGeometry, g.RobotRadius)
	}
	for i := range g.WheelAngles {
		if !finite(g.WheelAngles[i]) || !finite(g.WheelAxisAngles[i]) {
			return fmt.Errorf("%w: wheel %d angles must be finite", ErrInvalidGeometry, i+1)
		}
	}
	// Two wheels on the same mounting angle leave a direction the base cannot
	// translate in; this is also what an omitted wheel_angles decodes to.
	for i := range g.WheelAngles {
		for j := i + 1; j < len(g.WheelAngles); j++ {
			if sameAngle(g.WheelAngles[i], g.WheelAngles[j]) {
				return fmt.Errorf("%w: wheels %d and %d share mounting angle %v", ErrInvalidGeometry, i+1, j+1, g.WheelAngles[i])
			}
		}
	}
	return nil
}

// angleTolerance is in degrees.
const angleTolerance = 1e-6

func sameAngle(a, b float64) bool {
	d := math.Mod(math.Abs(a-b), 360)
	return d < angleTolerance || 360-d < angleTolerance
}

// MetricToWheelUnits is the factor turning a linear speed in m/s into the wheel
// revolutions per second expected by the motor controller.
func (g Geometry) MetricToWheelUnits() float64 {
	return 1 / (2 * math.Pi * g.WheelRadius)
}

// wheelAngleRadians returns the mounting angle of wheel i in radians.
func (g Geometry) wheelAngleRadians(i int) float64 {
	return g.WheelAngles[i] / 180 * math.Pi
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
