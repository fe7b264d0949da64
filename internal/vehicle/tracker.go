package vehicle

import (
	"github.com/relabs-tech/pacenote_computer/internal/telemetry"
)

// Tracker turns per-sample classifications into maneuver episodes with a
// real start timestamp, duration and peak value. An episode opens on the
// first sample that classifies as a maneuver and closes when the kind
// changes or the samples return to none.
//
// Tracker is not safe for concurrent use; it belongs to the single
// goroutine that consumes the fused telemetry stream.
type Tracker struct {
	th      Thresholds
	active  Maneuver
	tracked bool
}

// NewTracker creates a tracker with the given classifier thresholds.
func NewTracker(th Thresholds) *Tracker {
	return &Tracker{th: th}
}

// Observe classifies the sample and advances episode state. When an
// episode ends with this sample, the completed maneuver (with StartMs,
// DurationMs and the peak over the episode) is returned with done=true.
func (t *Tracker) Observe(s telemetry.Sample) (completed Maneuver, done bool) {
	m := Classify(s, t.th)

	if !t.tracked {
		if m.Kind != KindNone {
			m.StartMs = s.TimestampMs
			t.active = m
			t.tracked = true
		}
		return Maneuver{}, false
	}

	if m.Kind == t.active.Kind {
		// Same episode: widen the peak.
		switch m.Kind {
		case KindHardBraking:
			if m.PeakG < t.active.PeakG {
				t.active.PeakG = m.PeakG
			}
		default:
			if m.PeakG > t.active.PeakG {
				t.active.PeakG = m.PeakG
			}
		}
		return Maneuver{}, false
	}

	// Kind changed: close the running episode.
	finished := t.active
	finished.DurationMs = s.TimestampMs - finished.StartMs
	t.tracked = false

	// A different maneuver may start on the same sample.
	if m.Kind != KindNone {
		m.StartMs = s.TimestampMs
		t.active = m
		t.tracked = true
	}
	return finished, true
}

// Current returns the in-progress maneuver, if any.
func (t *Tracker) Current() (Maneuver, bool) {
	return t.active, t.tracked
}
