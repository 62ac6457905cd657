// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Guided stationary drift calibration for the velocity estimator.
// Measures how much velocity the estimator accumulates while the device
// is known to be at rest and derives a per-axis drift rate in m/s per
// second. The producer subtracts rate*elapsed from every estimate when
// pointed at the resulting file.
//
// The estimator starts from a clean state, which is what a freshly
// launched producer sees. Longer windows let the bias EMA converge within
// the run and give a lower residual rate.
//
// Output:
//
//	Writes a JSON file like ./drift_2026-08-29T10-00-00_calibration.json
//	including calibration date/time, sample count and the drift rate.
//
// Run:
//
//	go run ./cmd/calibration
//
// Notes / assumptions:
//   - Reads samples via internal/sensors from whatever source the config
//     names, so the same tool works against mock, serial and I2C.
//   - The device must not be touched during either phase; the tool cannot
//     tell a bumped table from sensor drift.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/relabs-tech/velocity_computer/internal/calibration"
	"github.com/relabs-tech/velocity_computer/internal/config"
	"github.com/relabs-tech/velocity_computer/internal/estimator"
	"github.com/relabs-tech/velocity_computer/internal/imu"
	"github.com/relabs-tech/velocity_computer/internal/sensors"
)

func main() {
	in := bufio.NewReader(os.Stdin)

	// Parse command-line flags
	configPath := flag.String("config", "velocity_config.txt", "Path to configuration file")
	duration := flag.Float64("duration", 0, "Stationary window length in seconds (0 = config value)")
	outPath := flag.String("out", "", "Output file (default: timestamped name in the current directory)")
	flag.Parse()

	fmt.Println("=== Stationary Drift Calibration ===")
	fmt.Println("Measures estimator drift while the device rests on a stable surface.")
	fmt.Println()

	// Initialize configuration
	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	cfg := config.Get()

	window := *duration
	if window <= 0 {
		window = cfg.CalibrationDuration
	}

	source, err := sensors.Open(cfg)
	if err != nil {
		fatal(fmt.Errorf("failed to open sample source %q: %w", cfg.SampleSource, err))
	}

	fmt.Printf("Sample source: %s\n", cfg.SampleSource)
	fmt.Printf("Window: %.1fs\n\n", window)

	fmt.Println("Place the device on a stable surface and do not touch it.")
	waitEnter(in, "Press ENTER to start...")

	est := estimator.New(cfg.Lambda, cfg.BiasAlpha, cfg.ZeroVZ)

	fmt.Print("Measuring")
	ticks := 0
	read := func() (imu.Sample, error) {
		ticks++
		if ticks%20 == 0 {
			fmt.Print(".")
		}
		return source.Next()
	}
	result, err := calibration.Run(read, est, window)
	if err != nil {
		fatal(err)
	}
	fmt.Println(" done")
	fmt.Println()

	bias := result.Bias
	fmt.Printf("Samples:     %d over %.2fs\n", result.Samples, result.DurationSec)
	fmt.Printf("Bias (m/s²): X=%.5f Y=%.5f Z=%.5f\n", bias.X, bias.Y, bias.Z)
	fmt.Printf("Drift (m/s): X=%.5f Y=%.5f Z=%.5f\n", result.Drift.X, result.Drift.Y, result.Drift.Z)
	fmt.Printf("Rate (m/s²): X=%.6f Y=%.6f Z=%.6f\n", result.Rate.X, result.Rate.Y, result.Rate.Z)
	if !result.Trusted() {
		fmt.Println("WARNING: too few samples for a trustworthy result; check the sample source.")
	}

	path := *outPath
	if path == "" {
		ts := time.Now().Format("2006-01-02T15-04-05Z07-00")
		path = fmt.Sprintf("drift_%s_calibration.json", ts)
	}
	if err := calibration.Save(path, result); err != nil {
		fatal(err)
	}

	fmt.Printf("\nWrote: %s\n", path)
	fmt.Println("Point the producer at it with CALIBRATION_FILE in the config.")
}

// ---------- Console helpers ----------

func waitEnter(in *bufio.Reader, prompt string) {
	fmt.Print(prompt)
	_, _ = in.ReadString('\n')
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
