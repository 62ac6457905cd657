// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"time"

	"github.com/relabs-tech/velocity_computer/internal/estimator"
	"github.com/relabs-tech/velocity_computer/internal/sensors"
)

// RunMockConsole runs the estimator against the mock source without any
// broker, printing velocity to stdout. Useful on a dev machine.
func RunMockConsole() error {
	src := sensors.NewMockSource(100 * time.Millisecond)
	est := estimator.New(estimator.DefaultLambda, estimator.DefaultBiasAlpha, true)

	var prev float64
	have := false

	for {
		sample, err := src.Next()
		if err != nil {
			return err
		}

		if !have {
			prev = sample.Timestamp
			have = true
			continue
		}
		dt := sample.Timestamp - prev
		prev = sample.Timestamp
		if dt <= 0 {
			continue
		}

		v := est.Update(sample.LinearAccel, sample.Quat, dt)
		b := est.Bias()
		fmt.Printf(
			"VX=%7.3f  VY=%7.3f  VZ=%7.3f  |V|=%6.3f  bias=(%.4f, %.4f, %.4f)\n",
			v.X, v.Y, v.Z, v.Norm(), b.X, b.Y, b.Z,
		)
	}
}
