package reason

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pacenote_computer/internal/camera"
	"github.com/relabs-tech/pacenote_computer/internal/telemetry"
)

func frameAt(ms int64) camera.Frame {
	return camera.Frame{Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, TimestampMs: ms}
}

func waitAction(t *testing.T, ch <-chan Action) Action {
	t.Helper()
	select {
	case a, ok := <-ch:
		require.True(t, ok, "action channel closed")
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for action")
	}
	return Action{}
}

// readyDispatcher builds a dispatcher, runs Init against the mock and
// waits for the Ready state.
func readyDispatcher(t *testing.T, ep *MockEndpoint, cfg Config) *Dispatcher {
	t.Helper()
	d := NewDispatcher(ep, cfg)
	d.Init()
	deadline := time.Now().Add(2 * time.Second)
	for {
		state, _ := d.State()
		if state == StateReady {
			return d
		}
		require.False(t, time.Now().After(deadline), "dispatcher never became ready")
		time.Sleep(time.Millisecond)
	}
}

func TestDispatcherReadiness(t *testing.T) {
	t.Run("starts idle", func(t *testing.T) {
		d := NewDispatcher(NewMockEndpoint(), DefaultConfig())
		state, _ := d.State()
		assert.Equal(t, StateIdle, state)
	})

	t.Run("init reaches ready with model id", func(t *testing.T) {
		ep := NewMockEndpoint()
		ep.Model = "vla-road-2"
		d := readyDispatcher(t, ep, DefaultConfig())
		defer d.Stop()
		state, model := d.State()
		assert.Equal(t, StateReady, state)
		assert.Equal(t, "vla-road-2", model)
	})

	t.Run("describe failure lands in error state", func(t *testing.T) {
		ep := NewMockEndpoint()
		ep.DescribeErr = errors.New("model not loaded")
		d := NewDispatcher(ep, DefaultConfig())
		d.Init()

		deadline := time.Now().Add(2 * time.Second)
		for {
			state, _ := d.State()
			if state == StateError {
				break
			}
			require.False(t, time.Now().After(deadline))
			time.Sleep(time.Millisecond)
		}
		d.Stop()
	})
}

func TestDispatcherNotReadyShortCircuits(t *testing.T) {
	ep := NewMockEndpoint()
	d := NewDispatcher(ep, DefaultConfig())
	sub := d.Subscribe()
	defer d.Stop()

	// No Init: state is Idle. The offer must yield a not-ready action
	// without touching the endpoint.
	require.True(t, d.Offer(frameAt(1), telemetry.Sample{}))
	a := waitAction(t, sub)
	assert.Equal(t, StatusNotReady, a.Status)
	assert.Equal(t, AlertNone, a.AlertLevel)
	assert.Equal(t, 0, ep.AnalyzeCalls())
	assert.NotEmpty(t, a.RequestID)
}

func TestDispatcherRateLimit(t *testing.T) {
	ep := NewMockEndpoint()
	cfg := DefaultConfig() // 5 frames/sec
	d := readyDispatcher(t, ep, cfg)
	defer d.Stop()

	// Drive a fake clock at ~30 frames/sec for one second.
	now := time.Unix(1000, 0)
	d.nowFn = func() time.Time { return now }

	accepted := 0
	for i := 0; i < 30; i++ {
		if d.Offer(frameAt(int64(i)), telemetry.Sample{}) {
			accepted++
		}
		now = now.Add(time.Second / 30)
	}
	assert.LessOrEqual(t, accepted, 5, "more than 5 frames forwarded in a 1s window")
	assert.GreaterOrEqual(t, accepted, 4, "rate limiter starving the endpoint")
}

func TestDispatcherInferenceErrorKeepsPipelineAlive(t *testing.T) {
	ep := NewMockEndpoint()
	d := readyDispatcher(t, ep, DefaultConfig())
	sub := d.Subscribe()
	defer d.Stop()

	now := time.Unix(2000, 0)
	d.nowFn = func() time.Time { return now }

	ep.NextErr = errors.New("inference backend 503")
	require.True(t, d.Offer(frameAt(1), telemetry.Sample{}))
	a := waitAction(t, sub)
	assert.Equal(t, StatusError, a.Status)
	assert.Equal(t, AlertNone, a.AlertLevel)

	// The next frame must still go through once the window elapses.
	ep.NextErr = nil
	ep.NextAction = Action{Status: StatusOK, AlertLevel: AlertHigh, Message: "obstacle ahead", Confidence: 0.8}
	now = now.Add(time.Second)
	require.True(t, d.Offer(frameAt(2), telemetry.Sample{LongitudinalG: -0.2}))
	a = waitAction(t, sub)
	assert.Equal(t, StatusOK, a.Status)
	assert.Equal(t, AlertHigh, a.AlertLevel)
	assert.Equal(t, -0.2, ep.LastSample().LongitudinalG)
}

func TestDispatcherFrameBufferEviction(t *testing.T) {
	ep := NewMockEndpoint()
	cfg := DefaultConfig()
	cfg.FrameBufferSize = 3
	d := readyDispatcher(t, ep, cfg)
	defer d.Stop()

	now := time.Unix(3000, 0)
	d.nowFn = func() time.Time { return now }

	for i := 1; i <= 5; i++ {
		require.True(t, d.Offer(frameAt(int64(i)), telemetry.Sample{}), "frame %d", i)
		now = now.Add(time.Second)
	}

	recent := d.RecentFrames()
	require.Len(t, recent, 3)
	assert.Equal(t, int64(3), recent[0].TimestampMs, "oldest frames must be evicted first")
	assert.Equal(t, int64(5), recent[2].TimestampMs)
}

func TestDispatcherStopIdempotent(t *testing.T) {
	d := readyDispatcher(t, NewMockEndpoint(), DefaultConfig())
	d.Stop()
	d.Stop()
	assert.False(t, d.Offer(frameAt(1), telemetry.Sample{}), "offer after stop must be rejected")
}

func TestParseAlertLevel(t *testing.T) {
	for want, s := range map[AlertLevel]string{
		AlertLow: "low", AlertMedium: "medium", AlertHigh: "high", AlertCritical: "critical",
	} {
		assert.Equal(t, want, ParseAlertLevel(s))
	}
	assert.Equal(t, AlertNone, ParseAlertLevel("nonsense"))
	assert.Equal(t, AlertNone, ParseAlertLevel(""))
}

func ExampleAlertLevel_String() {
	fmt.Println(AlertCritical)
	// Output: critical
}
