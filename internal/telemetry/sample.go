// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import "math"

// StandardGravity is one g in m/s².
const StandardGravity = 9.81

// Vec3 is a tri-axis reading in device-frame axes.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the Euclidean norm of the vector.
func (v Vec3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sample is one fused telemetry snapshot. It is immutable after the
// fusion engine publishes it; consumers must derive, never mutate.
type Sample struct {
	TimestampMs int64 `json:"ts_ms"` // monotonic within a session

	RawAccel    Vec3 `json:"raw_accel"`    // m/s², gravity-inclusive
	AngularRate Vec3 `json:"angular_rate"` // rad/s
	LinearAccel Vec3 `json:"linear_accel"` // m/s², gravity-compensated

	// Vehicle frame, in multiples of standard gravity.
	LongitudinalG float64 `json:"lon_g"`
	LateralG      float64 `json:"lat_g"`

	YawRateDegS float64 `json:"yaw_rate_deg_s"`

	// GPS fields are only meaningful when HasFix is true.
	HasFix     bool    `json:"has_fix"`
	Latitude   float64 `json:"lat,omitempty"`
	Longitude  float64 `json:"lon,omitempty"`
	AltitudeM  float64 `json:"alt_m,omitempty"`
	SpeedMS    float64 `json:"speed_ms,omitempty"`
	BearingDeg float64 `json:"bearing_deg,omitempty"`
	AccuracyM  float64 `json:"accuracy_m,omitempty"`
}

// GForce is the derived vehicle-frame G vector. It is always recomputed
// from a Sample and never stored on its own.
type GForce struct {
	Longitudinal float64 `json:"longitudinal"`
	Lateral      float64 `json:"lateral"`
	Magnitude    float64 `json:"magnitude"`
}

// GForce derives the combined G vector from the sample.
func (s Sample) GForce() GForce {
	return GForce{
		Longitudinal: s.LongitudinalG,
		Lateral:      s.LateralG,
		Magnitude:    math.Hypot(s.LongitudinalG, s.LateralG),
	}
}
