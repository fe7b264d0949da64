// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package vehicle

// Device mounting rotations, in degrees clockwise from the natural
// portrait orientation of the dash unit.
const (
	Rotation0   = 0
	Rotation90  = 90
	Rotation180 = 180
	Rotation270 = 270
)

// MapForRotation maps the two horizontal device-frame accelerometer axes
// into vehicle-frame longitudinal (forward positive) and lateral (right
// positive) components for the given mounting rotation.
//
// The mapping is a fixed linear remap per rotation; sign correctness here
// decides the sign of every downstream G-force reading. Any rotation
// outside the four canonical values falls back to the 0° mapping.
func MapForRotation(x, y float64, rotation int) (longitudinal, lateral float64) {
	switch rotation {
	case Rotation90:
		return y, x
	case Rotation180:
		return -x, y
	case Rotation270:
		return -y, -x
	default: // Rotation0 and anything unrecognized
		return x, -y
	}
}
