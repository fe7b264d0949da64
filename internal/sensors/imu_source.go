// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/relabs-tech/pacenote_computer/internal/imu"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

// Conversion factors for the MPU9250 default ranges (±2g, ±250°/s).
const (
	accelCountsPerG   = 16384.0
	gyroCountsPerDegS = 131.0
	gravityMS2        = 9.81
	degToRad          = math.Pi / 180.0
)

// MPU9250Source reads the vehicle-mounted MPU9250 over SPI and delivers
// samples scaled to SI units. It implements imu.Source.
type MPU9250Source struct {
	dev *mpu9250.MPU9250
}

var _ imu.Source = (*MPU9250Source)(nil)

// NewMPU9250Source initializes the IMU on the given SPI device and chip
// select pin. Self-test and calibration failures are logged but not fatal:
// a drifting IMU is still more useful in the car than none.
func NewMPU9250Source(spiDev, csPin string) (*MPU9250Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", spiDev, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	if result, err := dev.SelfTest(); err != nil {
		log.Printf("Warning: IMU self-test failed: %v", err)
	} else {
		log.Printf("IMU self-test passed:")
		log.Printf("  Accelerometer deviation: X: %.2f%%, Y: %.2f%%, Z: %.2f%%",
			result.AccelDeviation.X, result.AccelDeviation.Y, result.AccelDeviation.Z)
		log.Printf("  Gyroscope deviation: X: %.2f%%, Y: %.2f%%, Z: %.2f%%",
			result.GyroDeviation.X, result.GyroDeviation.Y, result.GyroDeviation.Z)
	}

	if err := dev.Calibrate(); err != nil {
		log.Printf("Warning: IMU calibration failed: %v", err)
	} else {
		log.Printf("IMU calibration complete")
	}

	return &MPU9250Source{dev: dev}, nil
}

// Next reads one raw sample from the device and converts it to SI units.
// The sample carries gravity (Linear=false); the fusion engine estimates
// and removes the gravity component downstream.
func (s *MPU9250Source) Next() (imu.Sample, error) {
	raw, err := s.readRaw()
	if err != nil {
		return imu.Sample{}, err
	}
	return scaleRaw(raw, time.Now().UnixMilli()), nil
}

func (s *MPU9250Source) readRaw() (imu.Raw, error) {
	ax, err := s.dev.GetAccelerationX()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU accel X: %w", err)
	}
	ay, err := s.dev.GetAccelerationY()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU accel Y: %w", err)
	}
	az, err := s.dev.GetAccelerationZ()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU accel Z: %w", err)
	}

	gx, err := s.dev.GetRotationX()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU gyro X: %w", err)
	}
	gy, err := s.dev.GetRotationY()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU gyro Y: %w", err)
	}
	gz, err := s.dev.GetRotationZ()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("IMU gyro Z: %w", err)
	}

	return imu.Raw{Ax: ax, Ay: ay, Az: az, Gx: gx, Gy: gy, Gz: gz}, nil
}

// scaleRaw converts raw ADC counts to m/s² and rad/s.
func scaleRaw(r imu.Raw, tsMS int64) imu.Sample {
	return imu.Sample{
		TimestampMs: tsMS,
		Ax:          float64(r.Ax) / accelCountsPerG * gravityMS2,
		Ay:          float64(r.Ay) / accelCountsPerG * gravityMS2,
		Az:          float64(r.Az) / accelCountsPerG * gravityMS2,
		Gx:          float64(r.Gx) / gyroCountsPerDegS * degToRad,
		Gy:          float64(r.Gy) / gyroCountsPerDegS * degToRad,
		Gz:          float64(r.Gz) / gyroCountsPerDegS * degToRad,
		Linear:      false,
	}
}
