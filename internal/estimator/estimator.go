// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package estimator

import (
	"github.com/relabs-tech/velocity_computer/internal/imu"
)

// Default filter parameters. At ~40 Hz, lambda 0.005 halves a stale
// velocity in ~139 samples; bias_alpha 0.001 converges in ~1000 samples.
const (
	DefaultLambda    = 0.005
	DefaultBiasAlpha = 0.001
)

// RotationMatrix converts a unit quaternion (scalar-last, body→world) to a
// 3x3 rotation matrix R such that v_world = R · v_body.
//
// Closed form, no trig calls. Output is garbage for non-unit input; the
// BNO08x reports unit rotation vectors so we do not renormalize here.
func RotationMatrix(q imu.Quaternion) [3][3]float64 {
	xx := q.X * q.X
	yy := q.Y * q.Y
	zz := q.Z * q.Z
	ww := q.W * q.W

	xy := q.X * q.Y
	xz := q.X * q.Z
	xw := q.X * q.W
	yz := q.Y * q.Z
	yw := q.Y * q.W
	zw := q.Z * q.W

	return [3][3]float64{
		{ww + xx - yy - zz, 2 * (xy - zw), 2 * (xz + yw)},
		{2 * (xy + zw), ww - xx + yy - zz, 2 * (yz - xw)},
		{2 * (xz - yw), 2 * (yz + xw), ww - xx - yy + zz},
	}
}

// Rotate applies a rotation matrix to a vector.
func Rotate(r [3][3]float64, v imu.Vec3) imu.Vec3 {
	return imu.Vec3{
		X: r[0][0]*v.X + r[0][1]*v.Y + r[0][2]*v.Z,
		Y: r[1][0]*v.X + r[1][1]*v.Y + r[1][2]*v.Z,
		Z: r[2][0]*v.X + r[2][1]*v.Y + r[2][2]*v.Z,
	}
}

// Estimator integrates world-frame linear velocity from body-frame linear
// acceleration and orientation, with two drift controls:
//
//   - a slow exponential-moving-average bias tracker that captures the DC
//     offset (residual gravity from orientation error, sensor bias) in
//     world-frame acceleration and removes it before integration;
//   - velocity leakage, v ← (1−λ)·v + a·dt, a first-order decay toward
//     zero that bounds long-run drift at the cost of underestimating
//     sustained true motion. There is no external reference here (no GPS,
//     no ZUPT), so leakage is what keeps the integral from running away.
//
// An Estimator is owned by one goroutine; it has no internal locking.
// NaN or Inf in the inputs poisons the state until Reset.
type Estimator struct {
	lambda    float64 // velocity leakage per sample, [0,1)
	biasAlpha float64 // bias EMA coefficient, (0,1]
	zeroVZ    bool    // ground-vehicle constraint: clamp vertical velocity

	velocity imu.Vec3 // world frame, m/s
	bias     imu.Vec3 // world frame, m/s²
}

// New creates an estimator with the given drift-control parameters.
// Parameters are fixed for the lifetime of the instance.
func New(lambda, biasAlpha float64, zeroVZ bool) *Estimator {
	return &Estimator{
		lambda:    lambda,
		biasAlpha: biasAlpha,
		zeroVZ:    zeroVZ,
	}
}

// Update consumes one IMU measurement and returns the new world-frame
// velocity estimate. accelBody is gravity-removed linear acceleration in
// the body frame (m/s²); dt is the time since the previous sample in
// seconds and must be positive — callers skip the first sample of a
// stream, which only seeds their previous-timestamp bookkeeping.
func (e *Estimator) Update(accelBody imu.Vec3, q imu.Quaternion, dt float64) imu.Vec3 {
	// 1) Body → world.
	accelWorld := Rotate(RotationMatrix(q), accelBody)

	// 2) Track the slow DC offset: bias ← (1−α)·bias + α·a_world.
	e.bias.X = (1-e.biasAlpha)*e.bias.X + e.biasAlpha*accelWorld.X
	e.bias.Y = (1-e.biasAlpha)*e.bias.Y + e.biasAlpha*accelWorld.Y
	e.bias.Z = (1-e.biasAlpha)*e.bias.Z + e.biasAlpha*accelWorld.Z

	// 3) Remove it before integrating.
	corrected := accelWorld.Sub(e.bias)

	// 4) Leaky integration: decay first, then add the new contribution.
	e.velocity.X = (1-e.lambda)*e.velocity.X + corrected.X*dt
	e.velocity.Y = (1-e.lambda)*e.velocity.Y + corrected.Y*dt
	e.velocity.Z = (1-e.lambda)*e.velocity.Z + corrected.Z*dt

	// 5) Ground-vehicle constraint, applied every call.
	if e.zeroVZ {
		e.velocity.Z = 0
	}

	return e.velocity
}

// Reset zeroes both velocity and bias.
func (e *Estimator) Reset() {
	e.velocity = imu.Vec3{}
	e.bias = imu.Vec3{}
}

// ResetVelocity zeroes velocity but keeps the learned bias. Drift
// calibration uses this: the stationary window's accumulated velocity is
// noise to discard, while the converged bias is the best current estimate
// of the true offset.
func (e *Estimator) ResetVelocity() {
	e.velocity = imu.Vec3{}
}

// Velocity returns the current world-frame velocity estimate.
func (e *Estimator) Velocity() imu.Vec3 {
	return e.velocity
}

// Bias returns the current world-frame acceleration bias estimate.
func (e *Estimator) Bias() imu.Vec3 {
	return e.bias
}
