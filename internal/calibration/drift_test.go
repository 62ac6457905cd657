package calibration

import (
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/relabs-tech/velocity_computer/internal/estimator"
	"github.com/relabs-tech/velocity_computer/internal/imu"
)

// stationaryFeed fabricates a 40 Hz stationary stream with a constant
// world-frame acceleration offset (identity orientation, so body == world).
func stationaryFeed(offset imu.Vec3) func() (imu.Sample, error) {
	t := 0.0
	return func() (imu.Sample, error) {
		s := imu.Sample{
			Timestamp:      t,
			LinearAccel:    offset,
			Quat:           imu.Identity,
			HasLinearAccel: true,
			HasQuat:        true,
		}
		t += 0.025
		return s, nil
	}
}

func TestRunCleanStationaryWindow(t *testing.T) {
	est := estimator.New(estimator.DefaultLambda, estimator.DefaultBiasAlpha, false)

	res, err := Run(stationaryFeed(imu.Vec3{}), est, 5.0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.Trusted() {
		t.Errorf("expected trusted result, got %d samples", res.Samples)
	}
	// 5 s at 40 Hz.
	if res.Samples < 190 || res.Samples > 210 {
		t.Errorf("samples = %d, want ~200", res.Samples)
	}
	if res.Rate.Norm() != 0 {
		t.Errorf("drift rate for a zero-input window = %+v, want zero", res.Rate)
	}
	if v := est.Velocity(); v != (imu.Vec3{}) {
		t.Errorf("estimator velocity after calibration = %+v, want zero", v)
	}
}

// With bias adaptation disabled, a constant uncompensated offset b drives
// velocity to the leaky-integral closed form, not b·t. The measured rate
// must match velocity(n)/T derived from the geometric series.
func TestRunUncompensatedOffsetMatchesClosedForm(t *testing.T) {
	const (
		lambda = 0.005
		dt     = 0.025
		b      = 0.2
	)
	est := estimator.New(lambda, 0, false)

	res, err := Run(stationaryFeed(imu.Vec3{X: b}), est, 5.0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantDrift := b * dt * (1 - math.Pow(1-lambda, float64(res.Samples))) / lambda
	if math.Abs(res.Drift.X-wantDrift) > 1e-9 {
		t.Errorf("drift = %v, want closed form %v", res.Drift.X, wantDrift)
	}

	wantRate := wantDrift / res.DurationSec
	if math.Abs(res.Rate.X-wantRate) > 1e-9 {
		t.Errorf("rate = %v, want %v", res.Rate.X, wantRate)
	}

	// The naive unleaked integral would be b·T; leakage must have bitten.
	if res.Drift.X > b*res.DurationSec*0.9 {
		t.Errorf("drift %v suspiciously close to unleaked integral %v", res.Drift.X, b*res.DurationSec)
	}
}

// Once the bias tracker has converged onto a constant offset, a second
// calibration run sees almost no residual drift.
func TestRunConvergedBiasYieldsNearZeroRate(t *testing.T) {
	offset := imu.Vec3{X: 0.15, Y: -0.08, Z: 0.02}
	// Fast adaptation so the offset is fully learned inside the test.
	est := estimator.New(estimator.DefaultLambda, 0.05, false)

	res, err := Run(stationaryFeed(offset), est, 30.0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Once the tracker has eaten the offset the leaky integral stops
	// growing, so the window-average rate stays far below the offset.
	if res.Rate.Norm() > offset.Norm()/10 {
		t.Errorf("rate after long window = %v, want well under %v", res.Rate.Norm(), offset.Norm())
	}
}

func TestRunPreservesBiasButZeroesVelocity(t *testing.T) {
	est := estimator.New(estimator.DefaultLambda, 0.05, false)

	res, err := Run(stationaryFeed(imu.Vec3{X: 0.5}), est, 5.0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Bias.X == 0 {
		t.Fatal("expected nonzero learned bias")
	}
	if est.Bias() != res.Bias {
		t.Errorf("estimator bias %+v does not match reported %+v", est.Bias(), res.Bias)
	}
	if est.Velocity() != (imu.Vec3{}) {
		t.Errorf("estimator velocity = %+v, want zero after calibration", est.Velocity())
	}
}

func TestRunSkipsStaleSamples(t *testing.T) {
	est := estimator.New(estimator.DefaultLambda, estimator.DefaultBiasAlpha, false)

	tts := 0.0
	read := func() (imu.Sample, error) {
		s := imu.Sample{
			Timestamp:      tts,
			LinearAccel:    imu.Vec3{X: 100}, // should never be integrated
			Quat:           imu.Identity,
			HasLinearAccel: false, // stale group
			HasQuat:        true,
		}
		tts += 0.025
		return s, nil
	}

	res, err := Run(read, est, 1.0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Samples != 0 {
		t.Errorf("stale samples were integrated: %d", res.Samples)
	}
	if res.Trusted() {
		t.Error("starved window must not be trusted")
	}
	if res.Drift != (imu.Vec3{}) {
		t.Errorf("drift = %+v, want zero for an all-stale window", res.Drift)
	}
	if res.DurationSec < 1.0 {
		t.Errorf("window did not close: DurationSec = %v, want >= 1", res.DurationSec)
	}
}

// A stream whose sensor goes silent mid-window must still close once the
// sample clock passes the duration, integrating only the clean head. The
// closing sample itself is stale here.
func TestRunClosesWindowOnDegradedTail(t *testing.T) {
	est := estimator.New(estimator.DefaultLambda, estimator.DefaultBiasAlpha, false)

	tts := 0.0
	read := func() (imu.Sample, error) {
		s := imu.Sample{
			Timestamp:      tts,
			LinearAccel:    imu.Vec3{X: 0.1},
			Quat:           imu.Identity,
			HasLinearAccel: tts < 0.5, // sensor goes silent at 0.5 s
			HasQuat:        true,
		}
		tts += 0.025
		return s, nil
	}

	res, err := Run(read, est, 1.0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Only the clean half-second head: 0.5 s at 40 Hz, minus the seed.
	if res.Samples < 15 || res.Samples > 25 {
		t.Errorf("samples = %d, want ~20 from the clean head", res.Samples)
	}
	if res.DurationSec < 1.0 {
		t.Errorf("window did not close: DurationSec = %v, want >= 1", res.DurationSec)
	}
}

func TestRunRejectsNonPositiveDuration(t *testing.T) {
	est := estimator.New(estimator.DefaultLambda, estimator.DefaultBiasAlpha, false)
	if _, err := Run(stationaryFeed(imu.Vec3{}), est, 0); err == nil {
		t.Error("expected error for zero duration")
	}
}

func TestCorrect(t *testing.T) {
	v := Correct(imu.Vec3{X: 1, Y: 2, Z: 3}, imu.Vec3{X: 0.1, Y: -0.2, Z: 0}, 10)
	want := imu.Vec3{X: 0, Y: 4, Z: 3}
	if v != want {
		t.Errorf("Correct = %+v, want %+v", v, want)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drift_calibration.json")

	want := Result{
		SchemaVersion: 1,
		CalibratedAt:  "2026-01-02T15:04:05Z",
		DurationSec:   5.0,
		Samples:       200,
		Drift:         imu.Vec3{X: 0.05, Y: -0.01, Z: 0.002},
		Rate:          imu.Vec3{X: 0.01, Y: -0.002, Z: 0.0004},
		Bias:          imu.Vec3{X: 0.12, Y: 0.03, Z: -0.07},
	}
	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}
