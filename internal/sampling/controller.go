// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sampling

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/pacenote_computer/internal/telemetry"
)

// Mode is the adaptive vision-sampling state. The set is closed.
type Mode int

const (
	ModeIdle Mode = iota
	ModeCruising
	ModeManeuver
	ModeCritical
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeCruising:
		return "cruising"
	case ModeManeuver:
		return "maneuver"
	case ModeCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// CaptureSignal asks the session to grab the current vision frame and
// hand it to reasoning dispatch.
type CaptureSignal struct {
	Mode Mode
	At   time.Time
}

// Config tunes the controller.
type Config struct {
	IdlePollInterval time.Duration // readiness poll while stopped; no capture
	CruisingInterval time.Duration
	ManeuverInterval time.Duration
	CriticalInterval time.Duration

	IdleSpeedMS float64 // at or below this speed the vehicle counts as stopped
	ManeuverG   float64 // combined |G| above this selects Maneuver
	CriticalG   float64 // combined |G| above this selects Critical

	ReflexHold time.Duration // how long a reflex alert pins Critical
}

// DefaultConfig returns the production sampling cadence table.
func DefaultConfig() Config {
	return Config{
		IdlePollInterval: 1 * time.Second,
		CruisingInterval: 15 * time.Second,
		ManeuverInterval: 3 * time.Second,
		CriticalInterval: 1 * time.Second,
		IdleSpeedMS:      2.0,
		ManeuverG:        0.3,
		CriticalG:        0.5,
		ReflexHold:       3 * time.Second,
	}
}

// Controller selects the sampling mode from each telemetry update and
// runs the capture timer for the active mode. The controller is the
// single writer of the mode; everyone else reads.
//
// The core correctness property: when the mode changes, the running timer
// is restarted immediately with the new period, so the next capture fires
// at the new cadence instead of waiting out the stale interval.
type Controller struct {
	cfg Config

	mu          sync.Mutex
	mode        Mode
	forcedUntil time.Time
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}

	kick     chan struct{}
	captures chan CaptureSignal
	ranOnce  bool

	onMode     func(Mode)
	onCritical func(reason string)

	nowFn func() time.Time
}

// New creates a controller starting in Idle.
func New(cfg Config) *Controller {
	return &Controller{
		cfg:      cfg,
		mode:     ModeIdle,
		kick:     make(chan struct{}, 1),
		captures: make(chan CaptureSignal, 8),
		nowFn:    time.Now,
	}
}

// SetModeHook registers a callback invoked on every mode transition.
// Must be set before Start.
func (c *Controller) SetModeHook(fn func(Mode)) { c.onMode = fn }

// SetCriticalHook registers a callback invoked when a reflex alert forces
// Critical mode (used to trigger speech barge-in). Must be set before Start.
func (c *Controller) SetCriticalHook(fn func(reason string)) { c.onCritical = fn }

// Captures returns the capture signal stream. Signals are dropped, not
// queued, if the consumer is not keeping up. The stream is closed when
// the controller stops.
func (c *Controller) Captures() <-chan CaptureSignal { return c.captures }

// Mode returns the currently active sampling mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Interval returns the capture period for a mode per the cadence table.
func (c *Controller) Interval(m Mode) time.Duration {
	switch m {
	case ModeCruising:
		return c.cfg.CruisingInterval
	case ModeManeuver:
		return c.cfg.ManeuverInterval
	case ModeCritical:
		return c.cfg.CriticalInterval
	default:
		return c.cfg.IdlePollInterval
	}
}

// Start launches the capture timer loop.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	if c.ranOnce {
		// The previous run closed the capture stream on exit.
		c.captures = make(chan CaptureSignal, 8)
	}
	c.ranOnce = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	go c.run(ctx)
}

// Stop cancels the timer loop. Safe to call repeatedly.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.running = false
	c.mu.Unlock()

	cancel()
	<-done
}

// Reset returns a stopped controller to Idle and clears any pending
// reflex hold, so a later Start begins from a clean slate.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.mode = ModeIdle
	c.forcedUntil = time.Time{}
	c.mu.Unlock()
}

// Update evaluates the mode-selection policy against a new telemetry
// sample. Policy order: stopped vehicle selects Idle; combined G past the
// critical threshold selects Critical; past the maneuver threshold,
// Maneuver; otherwise Cruising. A recent reflex alert pins the mode to
// Critical until its hold expires.
func (c *Controller) Update(s telemetry.Sample) {
	g := s.GForce()

	var next Mode
	switch {
	case s.HasFix && s.SpeedMS <= c.cfg.IdleSpeedMS:
		next = ModeIdle
	case g.Magnitude > c.cfg.CriticalG:
		next = ModeCritical
	case g.Magnitude > c.cfg.ManeuverG:
		next = ModeManeuver
	default:
		next = ModeCruising
	}

	c.mu.Lock()
	if c.nowFn().Before(c.forcedUntil) && next < ModeCritical {
		next = ModeCritical
	}
	changed := next != c.mode
	if changed {
		c.mode = next
	}
	c.mu.Unlock()

	if changed {
		c.modeChanged(next)
	}
}

// ForceCritical pins the controller to Critical mode for the reflex hold
// window, regardless of telemetry. Called for blind-spot detections and
// other high-priority local events.
func (c *Controller) ForceCritical(reason string) {
	c.mu.Lock()
	c.forcedUntil = c.nowFn().Add(c.cfg.ReflexHold)
	changed := c.mode != ModeCritical
	c.mode = ModeCritical
	c.mu.Unlock()

	log.Printf("sampling: reflex alert (%s), forcing critical mode", reason)
	if changed {
		c.modeChanged(ModeCritical)
	}
	if c.onCritical != nil {
		c.onCritical(reason)
	}
}

func (c *Controller) modeChanged(m Mode) {
	log.Printf("sampling: mode -> %s (period %s)", m, c.Interval(m))
	// Wake the timer loop so the new period takes effect immediately.
	select {
	case c.kick <- struct{}{}:
	default:
	}
	if c.onMode != nil {
		c.onMode(m)
	}
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.captures)

	timer := time.NewTimer(c.Interval(c.Mode()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-c.kick:
			// Mode changed: abandon the stale interval right away.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.Interval(c.Mode()))

		case <-timer.C:
			mode := c.Mode()
			if mode != ModeIdle {
				select {
				case c.captures <- CaptureSignal{Mode: mode, At: c.nowFn()}:
				default:
					log.Println("sampling: capture consumer behind, dropping signal")
				}
			}
			timer.Reset(c.Interval(mode))
		}
	}
}
