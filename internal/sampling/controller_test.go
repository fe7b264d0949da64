package sampling

import (
	"testing"
	"time"

	"github.com/relabs-tech/pacenote_computer/internal/telemetry"
)

func testConfig() Config {
	return Config{
		IdlePollInterval: 10 * time.Millisecond,
		CruisingInterval: 500 * time.Millisecond,
		ManeuverInterval: 60 * time.Millisecond,
		CriticalInterval: 20 * time.Millisecond,
		IdleSpeedMS:      2.0,
		ManeuverG:        0.3,
		CriticalG:        0.5,
		ReflexHold:       80 * time.Millisecond,
	}
}

func moving(lonG, latG float64) telemetry.Sample {
	return telemetry.Sample{
		LongitudinalG: lonG,
		LateralG:      latG,
		HasFix:        true,
		SpeedMS:       20.0,
	}
}

func TestModeSelectionPolicy(t *testing.T) {
	cases := []struct {
		name   string
		sample telemetry.Sample
		want   Mode
	}{
		{"stopped selects idle", telemetry.Sample{HasFix: true, SpeedMS: 1.0, LongitudinalG: 0.1}, ModeIdle},
		{"stopped wins over high G", telemetry.Sample{HasFix: true, SpeedMS: 0.5, LongitudinalG: -0.6}, ModeIdle},
		{"low G cruising", moving(0.1, 0.05), ModeCruising},
		{"maneuver band", moving(-0.35, 0), ModeManeuver},
		{"critical band", moving(-0.6, 0), ModeCritical},
		{"combined magnitude counts", moving(0.4, 0.4), ModeCritical},
		{"no fix is never idle", telemetry.Sample{LongitudinalG: 0.05}, ModeCruising},
		{"end to end braking sample", telemetry.Sample{LongitudinalG: -0.5, LateralG: 0.05}, ModeCritical},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(testConfig())
			c.Update(tc.sample)
			if got := c.Mode(); got != tc.want {
				t.Errorf("mode = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestModeChangeRestartsTimerImmediately(t *testing.T) {
	cfg := testConfig()
	c := New(cfg)
	c.Start()
	defer c.Stop()

	// Settle into Cruising: its 500ms period means no capture arrives for
	// a while on its own.
	c.Update(moving(0.05, 0))
	if c.Mode() != ModeCruising {
		t.Fatalf("mode = %s, want cruising", c.Mode())
	}

	// Cross into Critical. The very next capture must fire at the
	// Critical cadence (20ms), not after the stale 500ms interval.
	start := time.Now()
	c.Update(moving(-0.6, 0))

	select {
	case sig := <-c.Captures():
		if sig.Mode != ModeCritical {
			t.Errorf("capture mode = %s, want critical", sig.Mode)
		}
		if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
			t.Errorf("capture after %s, want the new 20ms cadence", elapsed)
		}
	case <-time.After(400 * time.Millisecond):
		t.Fatal("no capture at the critical cadence; stale timer still running")
	}
}

func TestIdleSuspendsCapture(t *testing.T) {
	c := New(testConfig())
	c.Start()
	defer c.Stop()

	c.Update(telemetry.Sample{HasFix: true, SpeedMS: 0})
	if c.Mode() != ModeIdle {
		t.Fatalf("mode = %s, want idle", c.Mode())
	}

	// Several idle polls pass; none may produce a capture.
	select {
	case sig := <-c.Captures():
		t.Fatalf("capture %+v while idle", sig)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestForceCriticalOverridesTelemetry(t *testing.T) {
	c := New(testConfig())

	var criticalReason string
	c.SetCriticalHook(func(reason string) { criticalReason = reason })

	c.Update(moving(0.05, 0))
	if c.Mode() != ModeCruising {
		t.Fatalf("mode = %s, want cruising", c.Mode())
	}

	c.ForceCritical("blind_spot")
	if c.Mode() != ModeCritical {
		t.Errorf("mode after reflex = %s, want critical", c.Mode())
	}
	if criticalReason != "blind_spot" {
		t.Errorf("critical hook reason = %q, want blind_spot", criticalReason)
	}

	// Calm telemetry cannot lower the mode while the hold is active.
	c.Update(moving(0.05, 0))
	if c.Mode() != ModeCritical {
		t.Errorf("mode during hold = %s, want critical", c.Mode())
	}

	// After the hold expires the policy takes over again.
	time.Sleep(120 * time.Millisecond)
	c.Update(moving(0.05, 0))
	if c.Mode() != ModeCruising {
		t.Errorf("mode after hold = %s, want cruising", c.Mode())
	}
}

func TestModeHookFires(t *testing.T) {
	c := New(testConfig())

	var seen []Mode
	c.SetModeHook(func(m Mode) { seen = append(seen, m) })

	c.Update(moving(0.05, 0))  // idle -> cruising
	c.Update(moving(-0.35, 0)) // cruising -> maneuver
	c.Update(moving(-0.35, 0)) // no change

	if len(seen) != 2 || seen[0] != ModeCruising || seen[1] != ModeManeuver {
		t.Errorf("mode hook transitions = %v, want [cruising maneuver]", seen)
	}
}

func TestControllerStopIdempotent(t *testing.T) {
	c := New(testConfig())
	c.Start()
	c.Stop()
	c.Stop()
}
