// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/relabs-tech/velocity_computer/internal/estimator"
	"github.com/relabs-tech/velocity_computer/internal/imu"
)

// DefaultDuration is the recommended stationary window length in seconds.
const DefaultDuration = 5.0

// minTrustedSamples is the floor below which a drift rate is reported but
// flagged as untrustworthy (sample starvation or an absurdly short window).
const minTrustedSamples = 2

// Result is the outcome of one stationary drift calibration run,
// serializable to JSON so producers can load it later.
type Result struct {
	SchemaVersion int    `json:"schema_version"`
	CalibratedAt  string `json:"calibrated_at"` // RFC3339

	DurationSec float64 `json:"duration_sec"` // sample-time span actually covered
	Samples     int     `json:"samples"`

	// Drift is the velocity accumulated while stationary (m/s); Rate is
	// Drift/DurationSec (m/s per second of wall time since calibration).
	Drift imu.Vec3 `json:"drift"`
	Rate  imu.Vec3 `json:"rate"`

	// Bias is the world-frame acceleration offset the estimator converged
	// to during the window (m/s²). It stays live in the estimator.
	Bias imu.Vec3 `json:"bias"`

	Notes []string `json:"notes,omitempty"`
}

// Trusted reports whether enough samples arrived to take Rate seriously.
func (r Result) Trusted() bool {
	return r.Samples >= minTrustedSamples
}

// Run measures velocity drift over a stationary window.
//
// The body must be held still for the whole window; that is operator
// discipline, not something this code can sense. Run resets the estimator,
// feeds it samples until their timestamps span duration seconds (the
// sample clock, not the wall clock, so replayed or bridged streams
// calibrate correctly), then derives the drift rate from the accumulated
// velocity. The estimator comes back with velocity zeroed and the bias
// learned during the window preserved.
//
// Subsequent raw readings from the same estimator should be corrected by
// the caller with Correct; Run never applies the rate itself.
func Run(read func() (imu.Sample, error), est *estimator.Estimator, duration float64) (Result, error) {
	res := Result{
		SchemaVersion: 1,
		CalibratedAt:  time.Now().Format(time.RFC3339),
	}
	if duration <= 0 {
		return res, fmt.Errorf("calibration duration must be positive, got %v", duration)
	}

	est.Reset()

	var (
		started   bool
		startTime float64
		prevTime  float64
	)

	for {
		s, err := read()
		if err != nil {
			return res, fmt.Errorf("calibration sample read: %w", err)
		}

		// First sample only seeds the timestamp bookkeeping.
		if !started {
			started = true
			startTime = s.Timestamp
			prevTime = s.Timestamp
			continue
		}

		dt := s.Timestamp - prevTime
		prevTime = s.Timestamp

		// Integrate only clean samples: a duplicate or reordered
		// timestamp, or a stale sensor group, would corrupt the window.
		if dt > 0 && s.HasLinearAccel && s.HasQuat {
			est.Update(s.LinearAccel, s.Quat, dt)
			res.Samples++
		}

		// The window closes on the sample clock alone, so a degraded
		// tail of stale or non-advancing samples still ends the run.
		if s.Timestamp-startTime >= duration {
			res.DurationSec = s.Timestamp - startTime
			break
		}
	}

	res.Drift = est.Velocity()
	res.Bias = est.Bias()
	res.Rate = res.Drift.Scale(1 / res.DurationSec)

	if res.Samples < minTrustedSamples {
		res.Notes = append(res.Notes, fmt.Sprintf("sample_starvation: only %d samples in %.2fs window", res.Samples, res.DurationSec))
	}

	// The window's accumulated velocity is measurement noise; the learned
	// bias is signal. Keep one, discard the other.
	est.ResetVelocity()

	return res, nil
}

// Correct applies the post-hoc drift correction to a raw velocity reading:
// v_corrected = v_raw − rate·elapsed, where elapsed is seconds since the
// calibration window closed.
func Correct(vRaw, rate imu.Vec3, elapsed float64) imu.Vec3 {
	return vRaw.Sub(rate.Scale(elapsed))
}

// Save writes a calibration result as indented JSON.
func Save(path string, res Result) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal calibration result: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write calibration file: %w", err)
	}
	return nil
}

// Load reads a previously saved calibration result.
func Load(path string) (Result, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read calibration file: %w", err)
	}
	var res Result
	if err := json.Unmarshal(b, &res); err != nil {
		return Result{}, fmt.Errorf("parse calibration file %s: %w", path, err)
	}
	return res, nil
}
