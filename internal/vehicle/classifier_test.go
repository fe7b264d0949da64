package vehicle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pacenote_computer/internal/telemetry"
)

func sample(lonG, latG float64) telemetry.Sample {
	return telemetry.Sample{LongitudinalG: lonG, LateralG: latG}
}

func TestClassifyThresholds(t *testing.T) {
	th := DefaultThresholds()

	t.Run("hard braking past cutoff", func(t *testing.T) {
		m := Classify(sample(-0.41, 0), th)
		require.Equal(t, KindHardBraking, m.Kind)
		assert.Equal(t, -0.41, m.PeakG)
	})

	t.Run("braking cutoff is exclusive", func(t *testing.T) {
		assert.Equal(t, KindNone, Classify(sample(-0.39, 0), th).Kind)
		assert.Equal(t, KindNone, Classify(sample(-0.4, 0), th).Kind)
	})

	t.Run("hard acceleration", func(t *testing.T) {
		m := Classify(sample(0.36, 0), th)
		require.Equal(t, KindHardAcceleration, m.Kind)
		assert.Equal(t, 0.36, m.PeakG)
	})

	t.Run("acceleration cutoff is exclusive", func(t *testing.T) {
		assert.Equal(t, KindNone, Classify(sample(0.35, 0), th).Kind)
	})

	t.Run("sharp turn right", func(t *testing.T) {
		m := Classify(sample(0.05, 0.31), th)
		require.Equal(t, KindSharpTurn, m.Kind)
		assert.Equal(t, DirectionRight, m.Direction)
		assert.Equal(t, 0.31, m.PeakG)
	})

	t.Run("sharp turn left reports absolute peak", func(t *testing.T) {
		m := Classify(sample(0, -0.5), th)
		require.Equal(t, KindSharpTurn, m.Kind)
		assert.Equal(t, DirectionLeft, m.Direction)
		assert.Equal(t, 0.5, m.PeakG)
	})

	t.Run("turn cutoff is exclusive", func(t *testing.T) {
		assert.Equal(t, KindNone, Classify(sample(0, 0.3), th).Kind)
	})

	t.Run("braking wins over simultaneous turn", func(t *testing.T) {
		m := Classify(sample(-0.5, 0.5), th)
		assert.Equal(t, KindHardBraking, m.Kind)
	})

	t.Run("acceleration wins over turn", func(t *testing.T) {
		m := Classify(sample(0.4, 0.4), th)
		assert.Equal(t, KindHardAcceleration, m.Kind)
	})
}

func TestClassifyDeterminism(t *testing.T) {
	th := DefaultThresholds()
	s := sample(-0.45, 0.2)
	first := Classify(s, th)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify(s, th))
	}
}

func TestTrackerEpisode(t *testing.T) {
	tr := NewTracker(DefaultThresholds())

	at := func(ms int64, lonG, latG float64) telemetry.Sample {
		s := sample(lonG, latG)
		s.TimestampMs = ms
		return s
	}

	// Quiet driving opens nothing.
	_, done := tr.Observe(at(0, -0.1, 0))
	require.False(t, done)

	// Braking episode: opens at 100ms, peaks at -0.55, ends at 400ms.
	_, done = tr.Observe(at(100, -0.45, 0))
	require.False(t, done)
	_, done = tr.Observe(at(200, -0.55, 0))
	require.False(t, done)
	_, done = tr.Observe(at(300, -0.42, 0))
	require.False(t, done)

	m, done := tr.Observe(at(400, -0.1, 0))
	require.True(t, done)
	assert.Equal(t, KindHardBraking, m.Kind)
	assert.Equal(t, -0.55, m.PeakG)
	assert.Equal(t, int64(100), m.StartMs)
	assert.Equal(t, int64(300), m.DurationMs)

	_, tracked := tr.Current()
	assert.False(t, tracked)
}

func TestTrackerKindChangeOpensNewEpisode(t *testing.T) {
	tr := NewTracker(DefaultThresholds())

	s1 := sample(-0.5, 0)
	s1.TimestampMs = 1000
	_, done := tr.Observe(s1)
	require.False(t, done)

	// Braking flips straight into a sharp turn.
	s2 := sample(0, 0.45)
	s2.TimestampMs = 1500
	m, done := tr.Observe(s2)
	require.True(t, done)
	assert.Equal(t, KindHardBraking, m.Kind)
	assert.Equal(t, int64(500), m.DurationMs)

	cur, tracked := tr.Current()
	require.True(t, tracked)
	assert.Equal(t, KindSharpTurn, cur.Kind)
	assert.Equal(t, int64(1500), cur.StartMs)
}
