// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/velocity_computer/internal/app"
	"github.com/relabs-tech/velocity_computer/internal/config"
)

func main() {
	configPath := flag.String("config", "./velocity_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting velocity-computer producer (IMU → estimator → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunVelocityProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
