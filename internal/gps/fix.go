// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import "errors"

// ErrPermissionDenied reports that the location source exists but access
// was refused (e.g. the serial device is not readable by this user). It
// is recoverable: the caller may fix permissions and retry.
var ErrPermissionDenied = errors.New("gps: permission denied")

// Fix represents a single combined GPS fix suitable for JSON and MQTT.
type Fix struct {
	TimestampMs int64   `json:"ts_ms"`
	Latitude    float64 `json:"lat"`         // decimal degrees
	Longitude   float64 `json:"lon"`         // decimal degrees
	AltitudeM   float64 `json:"alt_m"`       // meters above MSL, from GGA
	SpeedMS     float64 `json:"speed_ms"`    // speed over ground
	BearingDeg  float64 `json:"bearing_deg"` // course over ground
	AccuracyM   float64 `json:"accuracy_m"`  // estimated horizontal accuracy
	Valid       bool    `json:"valid"`       // RMC validity flag
}
