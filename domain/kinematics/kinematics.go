package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
)

// MotionIntent is the desired planar motion of the robot: translation in m/s and
// rotation in rad/s (positive is counter-clockwise).
type MotionIntent struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"w"`
}

// FromTwist builds an intent from linear and angular velocity vectors. Only the
// planar components (linear X/Y, angular Z) apply to the base.
func FromTwist(linear, angular r3.Vector) MotionIntent {
	return MotionIntent{X: linear.X, Y: linear.Y, Rotation: angular.Z}
}

// IsZero reports whether the intent commands no motion.
func (m MotionIntent) IsZero() bool {
	return m.X == 0 && m.Y == 0 && m.Rotation == 0
}

// WheelSpeeds holds one speed per wheel, in wheel units (revolutions per second),
// ordered like Geometry.WheelAngles.
type WheelSpeeds [3]float64

// Float32 narrows the speeds to the precision carried on the wire.
func (w WheelSpeeds) Float32() [3]float32 {
	return [3]float32{float32(w[0]), float32(w[1]), float32(w[2])}
}

// MaxAbs returns the largest wheel speed magnitude.
func (w WheelSpeeds) MaxAbs() float64 {
	m := 0.0
	for _, s := range w {
		m = math.Max(m, math.Abs(s))
	}
	return m
}

// Compute converts intent into wheel speeds for geometry g. Translation and rotation
// superpose linearly; the result is never clamped (see Limiter).
//
// g must have passed Validate.
func Compute(intent MotionIntent, g Geometry) WheelSpeeds {
	k := g.MetricToWheelUnits()

	velocity := r3.Vector{X: intent.X, Y: intent.Y}
	speed := velocity.Norm()
	angle := math.Atan2(intent.Y, intent.X)

	// Rotation contributes the same tangential speed at every wheel.
	rotational := intent.Rotation * g.WheelFromCenter * k

	var out WheelSpeeds
	for i := range out {
		out[i] = k*speed*math.Cos(g.wheelAngleRadians(i)-angle) + rotational
	}
	return out
}

// Limiter caps wheel speeds at MaxWheelSpeed, in wheel units. A zero limit disables it.
type Limiter struct {
	MaxWheelSpeed float64
}

// Limit scales all wheels by the same factor when any of them exceeds the limit, so
// the direction of travel is preserved.
func (l Limiter) Limit(w WheelSpeeds) WheelSpeeds {
	if l.MaxWheelSpeed <= 0 {
		return w
	}
	peak := w.MaxAbs()
	if peak <= l.MaxWheelSpeed {
		return w
	}
	scale := l.MaxWheelSpeed / peak
	for i := range w {
		w[i] *= scale
	}
	return w
}
