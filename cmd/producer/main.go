package main

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/velocity_computer/internal/app"
	"github.com/relabs-tech/velocity_computer/internal/estimator"
	"github.com/relabs-tech/velocity_computer/internal/sensors"
)

func main() {
	log.Println("starting velocity-computer MQTT producer (mock)")

	// 1) Connect to MQTT broker on the Pi
	opts := mqtt.NewClientOptions().
		AddBroker("tcp://localhost:1883").
		SetClientID("velocity-producer-mock")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("MQTT connect error: %v", token.Error())
	}
	defer client.Disconnect(250)

	src := sensors.NewMockSource(100 * time.Millisecond)
	est := estimator.New(estimator.DefaultLambda, estimator.DefaultBiasAlpha, true)

	var prev float64
	have := false

	for {
		sample, err := src.Next()
		if err != nil {
			log.Printf("error from mock source: %v", err)
			continue
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
		state := app.VelocityState{
			Timestamp: sample.Timestamp,
			Velocity:  v,
			Speed:     v.Norm(),
			Bias:      est.Bias(),
		}

		payload, err := json.Marshal(state)
		if err != nil {
			log.Printf("json marshal error: %v", err)
			continue
		}

		token := client.Publish("velocity/state", 0, true, payload)
		token.Wait()

		log.Printf("published velocity: |v|=%.3f m/s", state.Speed)
	}
}
