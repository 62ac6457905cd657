package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/velocity_computer/internal/config"
	"github.com/relabs-tech/velocity_computer/internal/imu"
)

func RunConsoleMQTT() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to velocity state
	velToken := client.Subscribe(cfg.TopicVelocity, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s VelocityState
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: velocity unmarshal error: %v", err)
			return
		}

		corr := " "
		if s.Corrected {
			corr = "*"
		}
		fmt.Printf(
			"[VEL%s] t=%8.2f  VX=%7.3f VY=%7.3f VZ=%7.3f  |V|=%6.3f m/s\n",
			corr, s.Timestamp, s.Velocity.X, s.Velocity.Y, s.Velocity.Z, s.Speed,
		)
	})
	velToken.Wait()
	if velToken.Error() != nil {
		return velToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicVelocity)

	// Subscribe to orientation
	poseToken := client.Subscribe(cfg.TopicPose, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p PoseState
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("console: pose unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[POSE] ROLL=%6.2f  PITCH=%6.2f  YAW=%6.2f\n",
			p.Euler.Roll, p.Euler.Pitch, p.Euler.Yaw,
		)
	})
	poseToken.Wait()
	if poseToken.Error() != nil {
		return poseToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicPose)

	// Subscribe to raw samples
	sampleToken := client.Subscribe(cfg.TopicSample, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s imu.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: sample unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[IMU ] lin=(%6.3f, %6.3f, %6.3f)  gyro=(%6.3f, %6.3f, %6.3f)  q=(%.3f, %.3f, %.3f, %.3f)\n",
			s.LinearAccel.X, s.LinearAccel.Y, s.LinearAccel.Z,
			s.Gyro.X, s.Gyro.Y, s.Gyro.Z,
			s.Quat.X, s.Quat.Y, s.Quat.Z, s.Quat.W,
		)
	})
	sampleToken.Wait()
	if sampleToken.Error() != nil {
		return sampleToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicSample)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
