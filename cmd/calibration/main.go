// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// IMU rest calibration for the pacenote computer.
//
// Collects accelerometer and gyroscope samples from the raw IMU topic
// with the car parked on level ground, and writes per-axis bias and
// noise estimates as JSON. The report is a diagnostic aid for mounting
// and sensor health; the runtime gravity filter adapts on its own.
//
// Run:
//
//	go run ./cmd/calibration -samples 500 -out calibration/imu_rest.json
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/relabs-tech/pacenote_computer/internal/app"
	"github.com/relabs-tech/pacenote_computer/internal/config"
)

func main() {
	configPath := flag.String("config", "./pacenote_config.txt", "path to configuration file")
	samples := flag.Int("samples", 500, "number of rest samples to collect")
	out := flag.String("out", "calibration/imu_rest.json", "output report path")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if dir := filepath.Dir(*out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create output directory: %v", err)
		}
	}

	if err := app.RunCalibration(*samples, *out); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
