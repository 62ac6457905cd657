// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/velocity_computer/internal/calibration"
	"github.com/relabs-tech/velocity_computer/internal/config"
	"github.com/relabs-tech/velocity_computer/internal/estimator"
	"github.com/relabs-tech/velocity_computer/internal/imu"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Calibration sessions do not own the sensor; the producer does. The web
// process re-publishes the MQTT sample stream into this feed and a
// session drains it for the duration of the stationary window.
var (
	feedMu   sync.Mutex
	feedSubs = map[chan imu.Sample]struct{}{}
)

func publishSampleToFeed(s imu.Sample) {
	feedMu.Lock()
	defer feedMu.Unlock()
	for ch := range feedSubs {
		select {
		case ch <- s:
		default:
			// slow session, drop the sample
		}
	}
}

func subscribeSampleFeed() (chan imu.Sample, func()) {
	ch := make(chan imu.Sample, 64)
	feedMu.Lock()
	feedSubs[ch] = struct{}{}
	feedMu.Unlock()

	return ch, func() {
		feedMu.Lock()
		delete(feedSubs, ch)
		feedMu.Unlock()
	}
}

// CalibrationSession holds the state of an active drift calibration
type CalibrationSession struct {
	Conn *websocket.Conn
	mu   sync.Mutex
}

// WebSocket message types
type WSMessage struct {
	Action   string  `json:"action"` // start, cancel
	Duration float64 `json:"duration,omitempty"`
}

type WSResponse struct {
	Type     string      `json:"type"` // phase, progress, stats, complete, error
	Phase    string      `json:"phase,omitempty"`
	Progress float64     `json:"progress,omitempty"`
	Stats    interface{} `json:"stats,omitempty"`
	Results  interface{} `json:"results,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// HandleCalibrationWS handles the WebSocket connection for drift calibration
func HandleCalibrationWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("calibration: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &CalibrationSession{Conn: conn}

	// Main message loop
	for {
		var msg WSMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			log.Printf("calibration: websocket read error: %v", err)
			break
		}

		switch msg.Action {
		case "start":
			session.mu.Lock()
			err := session.runDriftCalibration(msg.Duration)
			session.mu.Unlock()
			if err != nil {
				session.sendError(err.Error())
			}

		case "cancel":
			log.Printf("calibration: cancelled by user")
			return
		}
	}
}

func (s *CalibrationSession) runDriftCalibration(duration float64) error {
	cfg := config.Get()
	if duration <= 0 {
		duration = cfg.CalibrationDuration
	}

	s.sendPhase("settle")
	time.Sleep(1 * time.Second) // Give user time to put the device down

	samples, unsubscribe := subscribeSampleFeed()
	defer unsubscribe()

	s.sendPhase("collect")

	// Progress tracks the sample clock against the requested window.
	var firstTS float64
	haveFirst := false
	read := func() (imu.Sample, error) {
		select {
		case sample := <-samples:
			if !haveFirst {
				firstTS = sample.Timestamp
				haveFirst = true
			} else {
				p := (sample.Timestamp - firstTS) / duration * 100
				if p > 100 {
					p = 100
				}
				s.sendProgress(p)
			}
			return sample, nil
		case <-time.After(3 * time.Second):
			return imu.Sample{}, fmt.Errorf("sample stream stalled, is the producer running?")
		}
	}

	est := estimator.New(cfg.Lambda, cfg.BiasAlpha, cfg.ZeroVZ)
	result, err := calibration.Run(read, est, duration)
	if err != nil {
		return err
	}

	s.sendProgress(100)
	s.Conn.WriteJSON(WSResponse{Type: "stats", Stats: result})

	return s.complete(result)
}

func (s *CalibrationSession) complete(result calibration.Result) error {
	// Save results to file
	filename := fmt.Sprintf("drift_%d_calibration.json", time.Now().Unix())

	// Use current directory
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	path := filepath.Join(cwd, filename)
	if err := calibration.Save(path, result); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}

	log.Printf("calibration: saved results to %s", path)

	s.Conn.WriteJSON(WSResponse{
		Type:    "complete",
		Results: map[string]interface{}{"filename": filename, "rate": result.Rate},
	})

	return nil
}

func (s *CalibrationSession) sendPhase(phase string) {
	s.Conn.WriteJSON(WSResponse{
		Type:  "phase",
		Phase: phase,
	})
}

func (s *CalibrationSession) sendProgress(progress float64) {
	s.Conn.WriteJSON(WSResponse{
		Type:     "progress",
		Progress: progress,
	})
}

func (s *CalibrationSession) sendError(message string) {
	s.Conn.WriteJSON(WSResponse{
		Type:    "error",
		Message: message,
	})
}
