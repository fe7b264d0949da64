package sensors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/pacenote_computer/internal/imu"
)

func TestScaleRaw(t *testing.T) {
	// 1g on Z at rest, 250°/s around Z.
	raw := imu.Raw{Az: 16384, Gz: 32750}
	s := scaleRaw(raw, 1234)

	assert.Equal(t, int64(1234), s.TimestampMs)
	assert.InDelta(t, 9.81, s.Az, 1e-9)
	assert.InDelta(t, 250.0*math.Pi/180.0, s.Gz, 1e-3)
	assert.False(t, s.Linear)
}

func TestScaleRawNegativeCounts(t *testing.T) {
	raw := imu.Raw{Ax: -8192, Gx: -131}
	s := scaleRaw(raw, 0)

	assert.InDelta(t, -9.81/2, s.Ax, 1e-9)
	assert.InDelta(t, -math.Pi/180.0, s.Gx, 1e-12)
}
