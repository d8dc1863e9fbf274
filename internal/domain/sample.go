package domain

import "math"

// Vector3 is a three-axis reading.
type Vector3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// HasNaN reports whether any axis is NaN.
func (v Vector3) HasNaN() bool {
	return isNaN(v.X) || isNaN(v.Y) || isNaN(v.Z)
}

// SensorSample is one inertial measurement taken at a device clock tick.
// Samples are values; they are never mutated after decoding.
type SensorSample struct {
	Timestamp uint32  `json:"timestamp"`
	Accel     Vector3 `json:"accel"`
	Gyro      Vector3 `json:"gyro"`
	Mag       Vector3 `json:"mag"`
}

// Valid reports whether the sample carries no NaN component.
// Invalid samples are discarded, never stored.
func (s SensorSample) Valid() bool {
	return !s.Accel.HasNaN() && !s.Gyro.HasNaN() && !s.Mag.HasNaN()
}

func isNaN(f float32) bool {
	return math.IsNaN(float64(f))
}
