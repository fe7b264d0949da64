// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/pacenote_computer/internal/config"
	"github.com/relabs-tech/pacenote_computer/internal/imu"
)

// CalibrationResult is the rest-bias report written after a calibration
// run. Biases are what the sensor reports with the car parked on level
// ground, so they fold in mounting tilt as well as sensor offset.
type CalibrationResult struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	// Accelerometer rest bias, m/s². Z includes gravity.
	AccelBiasX  float64 `json:"accel_bias_x"`
	AccelBiasY  float64 `json:"accel_bias_y"`
	AccelBiasZ  float64 `json:"accel_bias_z"`
	AccelNoiseX float64 `json:"accel_noise_x"` // stddev at rest
	AccelNoiseY float64 `json:"accel_noise_y"`
	AccelNoiseZ float64 `json:"accel_noise_z"`

	// Gyroscope rest bias, rad/s.
	GyroBiasX  float64 `json:"gyro_bias_x"`
	GyroBiasY  float64 `json:"gyro_bias_y"`
	GyroBiasZ  float64 `json:"gyro_bias_z"`
	GyroNoiseX float64 `json:"gyro_noise_x"`
	GyroNoiseY float64 `json:"gyro_noise_y"`
	GyroNoiseZ float64 `json:"gyro_noise_z"`

	TotalSamples int `json:"total_samples"`
}

// RunCalibration collects rest samples from the raw IMU topic and writes
// a bias/noise report. The car must be parked on level ground with the
// engine off for the duration of the collection.
func RunCalibration(sampleCount int, outputPath string) error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID("pacenote-calibration")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("calibration: connected to MQTT broker at %s", cfg.MQTTBroker)
	log.Printf("calibration: collecting %d samples, keep the car still", sampleCount)

	samples := make(chan imu.Sample, 64)
	token := client.Subscribe(cfg.TopicIMURaw, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s imu.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("calibration: imu unmarshal error: %v", err)
			return
		}
		select {
		case samples <- s:
		default:
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}

	var ax, ay, az, gx, gy, gz []float64
	timeout := time.After(2 * time.Minute)

	for len(ax) < sampleCount {
		select {
		case s := <-samples:
			ax = append(ax, s.Ax)
			ay = append(ay, s.Ay)
			az = append(az, s.Az)
			gx = append(gx, s.Gx)
			gy = append(gy, s.Gy)
			gz = append(gz, s.Gz)
			if len(ax)%100 == 0 {
				log.Printf("calibration: %d/%d samples", len(ax), sampleCount)
			}
		case <-timeout:
			return fmt.Errorf("calibration: timed out with %d/%d samples, is the IMU producer running?", len(ax), sampleCount)
		}
	}

	result := CalibrationResult{
		Version:      1,
		Timestamp:    time.Now(),
		AccelBiasX:   stat.Mean(ax, nil),
		AccelBiasY:   stat.Mean(ay, nil),
		AccelBiasZ:   stat.Mean(az, nil),
		AccelNoiseX:  stat.StdDev(ax, nil),
		AccelNoiseY:  stat.StdDev(ay, nil),
		AccelNoiseZ:  stat.StdDev(az, nil),
		GyroBiasX:    stat.Mean(gx, nil),
		GyroBiasY:    stat.Mean(gy, nil),
		GyroBiasZ:    stat.Mean(gz, nil),
		GyroNoiseX:   stat.StdDev(gx, nil),
		GyroNoiseY:   stat.StdDev(gy, nil),
		GyroNoiseZ:   stat.StdDev(gz, nil),
		TotalSamples: len(ax),
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("calibration: marshal result: %w", err)
	}
	if err := os.WriteFile(outputPath, payload, 0o644); err != nil {
		return fmt.Errorf("calibration: write result: %w", err)
	}

	log.Printf("calibration: done, report written to %s", outputPath)
	log.Printf("calibration: accel bias [%.3f %.3f %.3f] m/s², gyro bias [%.4f %.4f %.4f] rad/s",
		result.AccelBiasX, result.AccelBiasY, result.AccelBiasZ,
		result.GyroBiasX, result.GyroBiasY, result.GyroBiasZ)
	return nil
}
