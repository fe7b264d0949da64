package fusion

import "github.com/relabs-tech/pacenote_computer/internal/telemetry"

// gravityFilter estimates the gravity component of a raw accelerometer
// stream with a single-pole low-pass filter:
//
//	gravity_new = alpha*gravity_old + (1-alpha)*raw
//
// Subtracting the estimate from the raw reading yields linear
// acceleration. State starts at zero and must be reset to zero whenever
// the engine is restarted.
type gravityFilter struct {
	alpha   float64
	gravity telemetry.Vec3
}

func newGravityFilter(alpha float64) *gravityFilter {
	return &gravityFilter{alpha: alpha}
}

// update folds one raw reading into the gravity estimate and returns the
// gravity-compensated linear acceleration.
func (f *gravityFilter) update(raw telemetry.Vec3) telemetry.Vec3 {
	f.gravity.X = f.alpha*f.gravity.X + (1-f.alpha)*raw.X
	f.gravity.Y = f.alpha*f.gravity.Y + (1-f.alpha)*raw.Y
	f.gravity.Z = f.alpha*f.gravity.Z + (1-f.alpha)*raw.Z

	return telemetry.Vec3{
		X: raw.X - f.gravity.X,
		Y: raw.Y - f.gravity.Y,
		Z: raw.Z - f.gravity.Z,
	}
}

func (f *gravityFilter) reset() {
	f.gravity = telemetry.Vec3{}
}
