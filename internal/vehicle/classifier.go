// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package vehicle

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/relabs-tech/pacenote_computer/internal/telemetry"
)

// Kind labels a classified driving maneuver. The set is closed.
type Kind int

const (
	KindNone Kind = iota
	KindHardBraking
	KindHardAcceleration
	KindSharpTurn
)

// String returns a human-readable maneuver kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindHardBraking:
		return "hard_braking"
	case KindHardAcceleration:
		return "hard_acceleration"
	case KindSharpTurn:
		return "sharp_turn"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the kind as its string name, which is what
// downstream MQTT consumers expect.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "none":
		*k = KindNone
	case "hard_braking":
		*k = KindHardBraking
	case "hard_acceleration":
		*k = KindHardAcceleration
	case "sharp_turn":
		*k = KindSharpTurn
	default:
		return fmt.Errorf("unknown maneuver kind %q", name)
	}
	return nil
}

// Direction of a sharp turn, from the driver's point of view.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionLeft
	DirectionRight
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return "none"
	}
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "none":
		*d = DirectionNone
	case "left":
		*d = DirectionLeft
	case "right":
		*d = DirectionRight
	default:
		return fmt.Errorf("unknown turn direction %q", name)
	}
	return nil
}

// Maneuver is one classification result. PeakG carries the defining value
// for the kind: signed longitudinal G for braking/acceleration, absolute
// lateral G for turns. StartMs and DurationMs are only populated by the
// Tracker, which observes the full episode.
type Maneuver struct {
	Kind       Kind      `json:"kind"`
	PeakG      float64   `json:"peak_g"`
	Direction  Direction `json:"direction"`
	StartMs    int64     `json:"start_ms"`
	DurationMs int64     `json:"duration_ms"`
}

func (m Maneuver) String() string {
	switch m.Kind {
	case KindSharpTurn:
		return fmt.Sprintf("%s(%s, %.2fg)", m.Kind, m.Direction, m.PeakG)
	case KindNone:
		return "none"
	default:
		return fmt.Sprintf("%s(%.2fg)", m.Kind, m.PeakG)
	}
}

// Thresholds holds the classifier cutoffs in units of g. All comparisons
// are strict, so a reading exactly at a cutoff does not classify.
type Thresholds struct {
	HardBrakingG      float64 // longitudinal below this (negative) is braking
	HardAccelerationG float64 // longitudinal above this is acceleration
	SharpTurnG        float64 // |lateral| above this is a turn
}

// DefaultThresholds returns the tuned production cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HardBrakingG:      -0.4,
		HardAccelerationG: 0.35,
		SharpTurnG:        0.3,
	}
}

// Classify labels a single telemetry sample. Pure and stateless; the
// checks are priority-ordered and the first match wins.
func Classify(s telemetry.Sample, th Thresholds) Maneuver {
	switch {
	case s.LongitudinalG < th.HardBrakingG:
		return Maneuver{Kind: KindHardBraking, PeakG: s.LongitudinalG}
	case s.LongitudinalG > th.HardAccelerationG:
		return Maneuver{Kind: KindHardAcceleration, PeakG: s.LongitudinalG}
	case math.Abs(s.LateralG) > th.SharpTurnG:
		dir := DirectionLeft
		if s.LateralG > 0 {
			dir = DirectionRight
		}
		return Maneuver{Kind: KindSharpTurn, PeakG: math.Abs(s.LateralG), Direction: dir}
	default:
		return Maneuver{Kind: KindNone}
	}
}
