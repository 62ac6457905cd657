package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/velocity_computer/internal/config"
	"github.com/relabs-tech/velocity_computer/internal/imu"
)

// liveUpdate is one frame pushed to /ws/live subscribers.
type liveUpdate struct {
	Velocity *VelocityState `json:"velocity,omitempty"`
	Pose     *PoseState     `json:"pose,omitempty"`
}

func RunWeb() error {
	cfg := config.Get()

	var (
		mu           sync.RWMutex
		lastVelocity VelocityState
		haveVelocity bool
		lastPose     PoseState
		havePose     bool
	)

	var (
		liveMu   sync.Mutex
		liveSubs = map[chan liveUpdate]struct{}{}
	)
	pushLive := func(u liveUpdate) {
		liveMu.Lock()
		defer liveMu.Unlock()
		for ch := range liveSubs {
			select {
			case ch <- u:
			default:
				// slow browser, drop the frame
			}
		}
	}

	// 1) Connect to the MQTT broker
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Subscribe and cache the latest of every topic
	velToken := client.Subscribe(cfg.TopicVelocity, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s VelocityState
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("MQTT payload unmarshal error (velocity): %v", err)
			return
		}
		mu.Lock()
		lastVelocity = s
		haveVelocity = true
		mu.Unlock()
		pushLive(liveUpdate{Velocity: &s})
	})
	velToken.Wait()
	if velToken.Error() != nil {
		return velToken.Error()
	}
	log.Printf("subscribed to MQTT topic %s", cfg.TopicVelocity)

	poseToken := client.Subscribe(cfg.TopicPose, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p PoseState
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("MQTT payload unmarshal error (pose): %v", err)
			return
		}
		mu.Lock()
		lastPose = p
		havePose = true
		mu.Unlock()
		pushLive(liveUpdate{Pose: &p})
	})
	poseToken.Wait()
	if poseToken.Error() != nil {
		return poseToken.Error()
	}

	// Raw samples go into the calibration feed so /ws/calibration sessions
	// can run a stationary window off the producer's stream.
	sampleToken := client.Subscribe(cfg.TopicSample, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s imu.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("MQTT payload unmarshal error (sample): %v", err)
			return
		}
		publishSampleToFeed(s)
	})
	sampleToken.Wait()
	if sampleToken.Error() != nil {
		return sampleToken.Error()
	}

	// 3) JSON API endpoints: latest velocity and pose
	http.HandleFunc("/api/velocity", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()

		if !haveVelocity {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(lastVelocity); err != nil {
			log.Printf("json encode error: %v", err)
		}
	})

	http.HandleFunc("/api/orientation", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()

		if !havePose {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(lastPose); err != nil {
			log.Printf("json encode error: %v", err)
		}
	})

	// 4) Live feed over websocket
	http.HandleFunc("/ws/live", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("live: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		ch := make(chan liveUpdate, 16)
		liveMu.Lock()
		liveSubs[ch] = struct{}{}
		liveMu.Unlock()
		defer func() {
			liveMu.Lock()
			delete(liveSubs, ch)
			liveMu.Unlock()
		}()

		for u := range ch {
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		}
	})

	// 5) Drift calibration over websocket
	http.HandleFunc("/ws/calibration", HandleCalibrationWS)

	// 6) Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	port := cfg.WebServerPort
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
