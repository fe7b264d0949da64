package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pacenote_computer/internal/camera"
	"github.com/relabs-tech/pacenote_computer/internal/fusion"
	"github.com/relabs-tech/pacenote_computer/internal/reason"
	"github.com/relabs-tech/pacenote_computer/internal/sampling"
)

type topicRecorder struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func newTopicRecorder() *topicRecorder {
	return &topicRecorder{payloads: make(map[string][][]byte)}
}

func (r *topicRecorder) publish(topic string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads[topic] = append(r.payloads[topic], append([]byte(nil), payload...))
}

func (r *topicRecorder) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads[topic])
}

func (r *topicRecorder) last(topic string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.payloads[topic]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

type silentSink struct {
	mu     sync.Mutex
	spoken []string
}

func (s *silentSink) Speak(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}
func (s *silentSink) Interrupt() error { return nil }
func (s *silentSink) Resume() error    { return nil }

func (s *silentSink) said() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func sessionTestConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Sampling = sampling.Config{
		IdlePollInterval: 20 * time.Millisecond,
		CruisingInterval: 200 * time.Millisecond,
		ManeuverInterval: 60 * time.Millisecond,
		CriticalInterval: 20 * time.Millisecond,
		IdleSpeedMS:      2.0,
		ManeuverG:        0.3,
		CriticalG:        0.5,
		ReflexHold:       150 * time.Millisecond,
	}
	cfg.SpeechQuiet = 100 * time.Millisecond
	return cfg
}

// startSession wires a session with mock camera, endpoint and sink and a
// linear-accel input channel the test drives directly.
func startSession(t *testing.T, cfg SessionConfig, endpoint reason.Endpoint, sink *silentSink, rec *topicRecorder) (*Session, chan fusion.AccelEvent, *camera.MockSource) {
	t.Helper()

	linear := make(chan fusion.AccelEvent, 64)
	cam := camera.NewMockSource(10*time.Millisecond, 0)

	sess := NewSession(cfg, endpoint, sink, rec.publish)
	require.NoError(t, sess.Start(fusion.Inputs{Linear: linear}, cam))
	t.Cleanup(sess.Stop)
	return sess, linear, cam
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSessionBrakingDrivesCriticalSamplingAndInference(t *testing.T) {
	rec := newTopicRecorder()
	sink := &silentSink{}
	endpoint := reason.NewMockEndpoint()
	endpoint.NextAction = reason.Action{
		Status:     reason.StatusOK,
		AlertLevel: reason.AlertLow,
		Message:    "clear road",
	}

	sess, linear, _ := startSession(t, sessionTestConfig(), endpoint, sink, rec)

	waitFor(t, func() bool {
		state, _ := sess.ReasonState()
		return state == reason.StateReady
	}, "dispatcher never became ready")

	// Hard braking: -0.5g longitudinal with a small lateral component.
	ts := int64(1000)
	go func() {
		for i := 0; i < 80; i++ {
			linear <- fusion.AccelEvent{
				TimestampMs: ts + int64(i)*10,
				X:           -0.5 * 9.81,
				Y:           -0.05 * 9.81,
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	waitFor(t, func() bool { return sess.Mode() == sampling.ModeCritical },
		"controller never reached critical mode")
	waitFor(t, func() bool { return endpoint.AnalyzeCalls() > 0 },
		"no frame reached the reasoning endpoint")
	waitFor(t, func() bool { return rec.count("pacenote/telemetry") > 0 },
		"no telemetry published")

	// The sample attached to inference carries the braking signature.
	last := endpoint.LastSample()
	assert.Less(t, last.LongitudinalG, -0.4)

	// Actions flow out on the action topic.
	waitFor(t, func() bool { return rec.count("pacenote/action") > 0 },
		"no action published")
}

func TestSessionManeuverEpisodePublished(t *testing.T) {
	rec := newTopicRecorder()
	sink := &silentSink{}
	endpoint := reason.NewMockEndpoint()

	_, linear, _ := startSession(t, sessionTestConfig(), endpoint, sink, rec)

	// Open a braking episode, then return to cruising to close it.
	for i := 0; i < 10; i++ {
		linear <- fusion.AccelEvent{TimestampMs: int64(1000 + i*20), X: -0.45 * 9.81}
	}
	linear <- fusion.AccelEvent{TimestampMs: 1300, X: -0.05 * 9.81}

	waitFor(t, func() bool { return rec.count("pacenote/maneuver") > 0 },
		"completed maneuver never published")
	assert.Contains(t, string(rec.last("pacenote/maneuver")), "hard_braking")
}

func TestSessionSpeaksModelCallouts(t *testing.T) {
	rec := newTopicRecorder()
	sink := &silentSink{}
	endpoint := reason.NewMockEndpoint()
	endpoint.NextAction = reason.Action{
		Status:     reason.StatusOK,
		AlertLevel: reason.AlertHigh,
		Message:    "pedestrian near crossing",
		Speech:     "watch the crossing ahead",
	}

	sess, linear, _ := startSession(t, sessionTestConfig(), endpoint, sink, rec)

	waitFor(t, func() bool {
		state, _ := sess.ReasonState()
		return state == reason.StateReady
	}, "dispatcher never became ready")

	// Keep the pipeline in cruising with gentle samples.
	go func() {
		for i := 0; i < 120; i++ {
			linear <- fusion.AccelEvent{TimestampMs: int64(1000 + i*10), X: 0.05}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	waitFor(t, func() bool { return len(sink.said()) > 0 },
		"call-out never reached the speech sink")
	assert.Equal(t, "watch the crossing ahead", sink.said()[0])
}

func TestSessionReflexAlertForcesCritical(t *testing.T) {
	rec := newTopicRecorder()
	sink := &silentSink{}
	sess, linear, _ := startSession(t, sessionTestConfig(), reason.NewMockEndpoint(), sink, rec)

	// Establish cruising first.
	linear <- fusion.AccelEvent{TimestampMs: 1000, X: 0.05}
	waitFor(t, func() bool { return sess.Mode() == sampling.ModeCruising },
		"never reached cruising")

	sess.ReflexAlert("blind spot")
	assert.Equal(t, sampling.ModeCritical, sess.Mode())

	// Gentle telemetry cannot demote the mode while the hold is active.
	linear <- fusion.AccelEvent{TimestampMs: 1100, X: 0.05}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, sampling.ModeCritical, sess.Mode())
}

func TestSessionStopIsIdempotentAndResetsMode(t *testing.T) {
	rec := newTopicRecorder()
	sink := &silentSink{}
	sess, linear, _ := startSession(t, sessionTestConfig(), reason.NewMockEndpoint(), sink, rec)

	linear <- fusion.AccelEvent{TimestampMs: 1000, X: -0.6 * 9.81}
	waitFor(t, func() bool { return sess.Mode() == sampling.ModeCritical },
		"never reached critical")

	close(linear)
	sess.Stop()
	sess.Stop()

	assert.Equal(t, sampling.ModeIdle, sess.Mode())
}
