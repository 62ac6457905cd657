// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"io"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/velocity_computer/internal/calibration"
	"github.com/relabs-tech/velocity_computer/internal/config"
	"github.com/relabs-tech/velocity_computer/internal/estimator"
	"github.com/relabs-tech/velocity_computer/internal/imu"
	"github.com/relabs-tech/velocity_computer/internal/orientation"
	"github.com/relabs-tech/velocity_computer/internal/sensors"
)

// VelocityState is the estimator output published on the velocity topic
// and consumed by the console, web and display frontends.
type VelocityState struct {
	Timestamp float64  `json:"timestamp"`    // sample clock, seconds
	Velocity  imu.Vec3 `json:"velocity"`     // corrected, remapped, m/s
	Raw       imu.Vec3 `json:"raw_velocity"` // straight from the estimator
	Speed     float64  `json:"speed"`        // |velocity|, m/s
	Bias      imu.Vec3 `json:"bias"`         // tracked accel offset, m/s²
	Corrected bool     `json:"corrected"`    // drift-rate correction applied
}

// PoseState pairs the fused quaternion with its Euler reading on the pose
// topic, so consumers pick whichever representation they want.
type PoseState struct {
	Timestamp float64          `json:"timestamp"`
	Quat      imu.Quaternion   `json:"quaternion"`
	Euler     orientation.Pose `json:"euler"`
}

// RunVelocityProducer is the main acquisition/estimation loop: read
// samples from the configured source, run the velocity estimator, apply
// the stored drift correction and publish state over MQTT.
func RunVelocityProducer() error {
	log.Println("starting velocity-computer producer")

	cfg := config.Get()

	source, err := sensors.Open(cfg)
	if err != nil {
		log.Fatalf("failed to open sample source: %v", err)
		return err
	}
	if closer, ok := source.(io.Closer); ok {
		defer closer.Close()
	}

	est := estimator.New(cfg.Lambda, cfg.BiasAlpha, cfg.ZeroVZ)

	axes, err := orientation.NewAxisMap(cfg.AxisTransform)
	if err != nil {
		log.Fatalf("bad axis transform: %v", err)
		return err
	}

	// Drift correction is optional: without a calibration file the raw
	// estimate is published as-is.
	var driftRate imu.Vec3
	correcting := false
	if cfg.CalibrationFile != "" {
		res, err := calibration.Load(cfg.CalibrationFile)
		if err != nil {
			log.Printf("WARNING: calibration file %s not usable: %v", cfg.CalibrationFile, err)
		} else if !res.Trusted() {
			log.Printf("WARNING: calibration result in %s not trusted, ignoring", cfg.CalibrationFile)
		} else {
			driftRate = res.Rate
			correcting = true
			log.Printf("drift correction active: rate=(%.5f, %.5f, %.5f) m/s²",
				driftRate.X, driftRate.Y, driftRate.Z)
		}
	}

	// --- connect to MQTT ---
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDProducer)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("MQTT connect error: %v", token.Error())
		return token.Error()
	}
	defer client.Disconnect(250)

	log.Println("connected to MQTT, starting publish loop")

	var (
		prevTimestamp  float64
		haveTimestamp  bool
		startTimestamp float64
		lastLog        time.Time
	)
	logEvery := time.Duration(cfg.ConsoleLogInterval) * time.Millisecond

	for {
		sample, err := source.Next()
		if err != nil {
			log.Printf("sample source error: %v", err)
			continue
		}

		// dt comes from the sample clock, not the host clock. The first
		// sample only seeds the previous timestamp.
		if !haveTimestamp {
			prevTimestamp = sample.Timestamp
			startTimestamp = sample.Timestamp
			haveTimestamp = true
			continue
		}
		dt := sample.Timestamp - prevTimestamp
		prevTimestamp = sample.Timestamp
		if dt <= 0 {
			continue
		}

		// A stale group means the sensor went silent, not that the body
		// stopped. Skip the update rather than integrate zeros.
		if !sample.HasLinearAccel || !sample.HasQuat {
			continue
		}

		raw := est.Update(sample.LinearAccel, sample.Quat, dt)
		velocity := raw
		if correcting {
			velocity = calibration.Correct(velocity, driftRate, sample.Timestamp-startTimestamp)
		}
		q := sample.Quat
		if !axes.IsIdentity() {
			velocity = axes.Apply(velocity)
			q = axes.RemapQuaternion(q)
		}

		state := VelocityState{
			Timestamp: sample.Timestamp,
			Velocity:  velocity,
			Raw:       raw,
			Speed:     velocity.Norm(),
			Bias:      est.Bias(),
			Corrected: correcting,
		}

		if payload, err := json.Marshal(state); err != nil {
			log.Printf("json marshal error (velocity): %v", err)
		} else if token := client.Publish(cfg.TopicVelocity, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Printf("MQTT publish error (velocity): %v", token.Error())
			continue
		}

		if payload, err := json.Marshal(sample); err != nil {
			log.Printf("json marshal error (sample): %v", err)
		} else if token := client.Publish(cfg.TopicSample, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Printf("MQTT publish error (sample): %v", token.Error())
			continue
		}

		pose := PoseState{
			Timestamp: sample.Timestamp,
			Quat:      q,
			Euler:     orientation.PoseFromQuaternion(q),
		}
		if payload, err := json.Marshal(pose); err != nil {
			log.Printf("json marshal error (pose): %v", err)
		} else if token := client.Publish(cfg.TopicPose, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Printf("MQTT publish error (pose): %v", token.Error())
			continue
		}

		if time.Since(lastLog) >= logEvery {
			lastLog = time.Now()
			log.Printf("t=%.2f v=(%.3f, %.3f, %.3f) |v|=%.3f m/s | bias=(%.4f, %.4f, %.4f) | R=%.1f P=%.1f Y=%.1f",
				state.Timestamp,
				velocity.X, velocity.Y, velocity.Z, state.Speed,
				state.Bias.X, state.Bias.Y, state.Bias.Z,
				pose.Euler.Roll, pose.Euler.Pitch, pose.Euler.Yaw,
			)
		}
	}
}
