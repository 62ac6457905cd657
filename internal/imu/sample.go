package imu

import "math"

// Vec3 is a 3-component vector. Units depend on context (m/s², m/s, µT, ...).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the Euclidean magnitude of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{X: v.X - w.X, Y: v.Y - w.Y, Z: v.Z - w.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Quaternion is an orientation quaternion in scalar-last (x, y, z, w) order,
// representing the body→world rotation. The estimator assumes unit norm and
// does not renormalize; producers own that contract.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Identity is the no-rotation quaternion.
var Identity = Quaternion{X: 0, Y: 0, Z: 0, W: 1}

// Sample is one acquisition tuple from a 9-axis IMU that does its own
// fusion (BNO08x class): raw accel/gyro/mag plus fused orientation and
// gravity-removed linear acceleration.
//
// HasLinearAccel and HasQuat make staleness explicit: a source that got no
// fresh report for a group leaves the flag false rather than reporting
// zeros, so consumers can tell "at rest" from "sensor silent" and skip the
// estimator update instead of integrating fabricated data.
type Sample struct {
	Timestamp float64 `json:"timestamp"` // monotonic seconds

	Accel Vec3 `json:"accel"` // m/s², gravity included
	Gyro  Vec3 `json:"gyro"`  // rad/s
	Mag   Vec3 `json:"mag"`   // µT

	LinearAccel Vec3       `json:"linear_accel"` // m/s², body frame, gravity removed
	Quat        Quaternion `json:"quaternion"`   // body→world, scalar-last

	HasLinearAccel bool `json:"has_linear_accel"`
	HasQuat        bool `json:"has_quaternion"`
}

// Source is anything that can deliver IMU samples over time: the real
// BNO08x over I2C, a serial bridge, a mock generator, maybe replay later.
type Source interface {
	Next() (Sample, error)
}
