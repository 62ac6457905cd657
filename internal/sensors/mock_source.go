// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"

	"github.com/relabs-tech/velocity_computer/internal/imu"
)

type mockSource struct {
	start    time.Time
	interval time.Duration
}

// NewMockSource creates a mock sample source that simulates a slowly
// yawing body with a gentle surge/sway oscillation and a small constant
// accelerometer offset, so the estimator's bias tracker has something
// honest to chew on during development. Next paces itself at interval
// like the real sources do.
func NewMockSource(interval time.Duration) imu.Source {
	return &mockSource{start: time.Now(), interval: interval}
}

func (m *mockSource) Next() (imu.Sample, error) {
	time.Sleep(m.interval)
	elapsed := time.Since(m.start).Seconds()

	// Yaw advancing at 12°/s, as a scalar-last quaternion about Z.
	yaw := elapsed * 12 * math.Pi / 180
	q := imu.Quaternion{
		Z: math.Sin(yaw / 2),
		W: math.Cos(yaw / 2),
	}

	return imu.Sample{
		Timestamp: elapsed,
		Accel: imu.Vec3{
			X: 0.4 * math.Sin(elapsed),
			Y: 0.3 * math.Cos(elapsed*0.7),
			Z: 9.81,
		},
		Gyro: imu.Vec3{Z: 12 * math.Pi / 180},
		Mag:  imu.Vec3{X: 22 * math.Cos(yaw), Y: -22 * math.Sin(yaw), Z: -41},
		LinearAccel: imu.Vec3{
			X: 0.4*math.Sin(elapsed) + 0.05, // 0.05 = fake sensor offset
			Y: 0.3 * math.Cos(elapsed*0.7),
			Z: 0,
		},
		Quat:           q,
		HasLinearAccel: true,
		HasQuat:        true,
	}, nil
}
