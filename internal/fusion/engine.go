// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/relabs-tech/pacenote_computer/internal/gps"
	"github.com/relabs-tech/pacenote_computer/internal/telemetry"
	"github.com/relabs-tech/pacenote_computer/internal/vehicle"
)

// ErrSensorUnavailable reports that no accelerometer source of any tier
// was offered to the engine. The session owner should surface this for
// user-facing recovery rather than retry blindly.
var ErrSensorUnavailable = errors.New("fusion: no accelerometer source available")

// zeroSignalMagnitude is the linear-acceleration magnitude (m/s²) below
// which a primary-path sample counts toward the dead-sensor streak.
const zeroSignalMagnitude = 1e-3

// Config tunes the fusion engine.
type Config struct {
	// Rotation is the dash-unit mounting rotation in degrees (0/90/180/270).
	Rotation int
	// GravityAlpha is the low-pass coefficient for the fallback gravity
	// filter. The production value is 0.8.
	GravityAlpha float64
	// ZeroStreak is how many consecutive near-zero primary samples force
	// permanent failover to the fallback path. The production value is 100.
	ZeroStreak int
	// SubscriberBuffer sizes each subscriber channel.
	SubscriberBuffer int
}

// DefaultConfig returns the production fusion tuning.
func DefaultConfig() Config {
	return Config{
		Rotation:         0,
		GravityAlpha:     0.8,
		ZeroStreak:       100,
		SubscriberBuffer: 64,
	}
}

// AccelEvent is one accelerometer reading in m/s², device frame.
type AccelEvent struct {
	TimestampMs int64
	X, Y, Z     float64
}

// GyroEvent is one gyroscope reading in rad/s, device frame.
type GyroEvent struct {
	TimestampMs int64
	X, Y, Z     float64
}

// Inputs are the sensor streams the engine fuses. Linear carries
// gravity-free acceleration (primary path); Raw carries gravity-inclusive
// acceleration (fallback path). Either may be nil, but not both. Gyro and
// Fixes feed latest-value slots and never gate sample production: a
// G-force sample is emitted per accelerometer event regardless of
// gyroscope or GPS delivery.
type Inputs struct {
	Linear <-chan AccelEvent
	Raw    <-chan AccelEvent
	Gyro   <-chan GyroEvent
	Fixes  <-chan gps.Fix
}

// Engine fuses raw sensor streams into telemetry samples. It is the
// single writer of the latest-sample snapshot; everything downstream
// reads via Latest or a subscription.
type Engine struct {
	cfg Config

	mu       sync.Mutex
	running  bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}
	subs     []chan telemetry.Sample
	fallback bool

	latest atomic.Pointer[telemetry.Sample]

	// Owned by the run goroutine.
	filter    *gravityFilter
	zeroCount int
	lastRaw   telemetry.Vec3
	lastGyro  GyroEvent
	haveGyro  bool
	lastFix   gps.Fix
	haveFix   bool
	dropped   uint64
}

// NewEngine creates a fusion engine with the given tuning.
func NewEngine(cfg Config) *Engine {
	if cfg.GravityAlpha <= 0 || cfg.GravityAlpha >= 1 {
		cfg.GravityAlpha = 0.8
	}
	if cfg.ZeroStreak <= 0 {
		cfg.ZeroStreak = 100
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 64
	}
	return &Engine{
		cfg:    cfg,
		filter: newGravityFilter(cfg.GravityAlpha),
	}
}

// Subscribe registers a new consumer of the fused sample stream. Samples
// are delivered in arrival order; when a subscriber falls behind its
// buffer, new samples for it are dropped rather than blocking the engine.
// The channel is closed on Stop. Subscribing to a stopped engine returns
// an already-closed channel so ranging consumers terminate instead of
// blocking on a stream that will never produce.
func (e *Engine) Subscribe() <-chan telemetry.Sample {
	ch := make(chan telemetry.Sample, e.cfg.SubscriberBuffer)
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		close(ch)
		return ch
	}
	e.subs = append(e.subs, ch)
	e.mu.Unlock()
	return ch
}

// Latest returns the most recent fused sample, if any has been produced.
func (e *Engine) Latest() (telemetry.Sample, bool) {
	p := e.latest.Load()
	if p == nil {
		return telemetry.Sample{}, false
	}
	return *p, true
}

// FallbackActive reports whether the engine has failed over to the
// gravity-filtered raw path.
func (e *Engine) FallbackActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fallback
}

// Start begins consuming the input streams. A stopped engine may be
// started again; gravity filter state and the failover decision are
// re-initialized for the new session.
func (e *Engine) Start(in Inputs) error {
	if in.Linear == nil && in.Raw == nil {
		return ErrSensorUnavailable
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("fusion: engine already started")
	}

	e.filter.reset()
	e.zeroCount = 0
	e.stopped = false
	e.fallback = in.Linear == nil
	e.haveGyro = false
	e.haveFix = false
	if e.fallback {
		log.Println("fusion: no linear-acceleration source, starting on fallback path")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true

	go e.run(ctx, in)
	return nil
}

// Stop halts the engine and closes all subscriber channels. It is safe
// to call repeatedly.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done

	e.mu.Lock()
	e.running = false
	e.stopped = true
	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context, in Inputs) {
	defer close(e.done)

	linear, raw, gyro, fixes := in.Linear, in.Raw, in.Gyro, in.Fixes

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-linear:
			if !ok {
				linear = nil
				continue
			}
			if e.onLinear(ev) {
				// Failed over for the rest of the session; stop
				// listening to the dead primary stream.
				linear = nil
			}

		case ev, ok := <-raw:
			if !ok {
				raw = nil
				continue
			}
			e.onRaw(ev, linear == nil)

		case g, ok := <-gyro:
			if !ok {
				gyro = nil
				continue
			}
			e.lastGyro = g
			e.haveGyro = true

		case f, ok := <-fixes:
			if !ok {
				fixes = nil
				continue
			}
			e.lastFix = f
			e.haveFix = true
		}
	}
}

// onLinear handles a primary-path event. Returns true once the zero-signal
// streak trips and the engine fails over permanently.
func (e *Engine) onLinear(ev AccelEvent) bool {
	lin := telemetry.Vec3{X: ev.X, Y: ev.Y, Z: ev.Z}

	if lin.Magnitude() < zeroSignalMagnitude {
		e.zeroCount++
		if e.zeroCount >= e.cfg.ZeroStreak {
			e.mu.Lock()
			e.fallback = true
			e.mu.Unlock()
			log.Printf("fusion: WARNING: linear-acceleration stream returned %d near-zero samples, failing over to gravity-filtered raw path", e.zeroCount)
			return true
		}
	} else {
		e.zeroCount = 0
	}

	e.emit(ev.TimestampMs, e.lastRaw, lin)
	return false
}

// onRaw handles a fallback-path event. The gravity filter is kept warm
// even while the primary path is healthy so a failover does not start
// from a cold estimate; samples are only emitted from here when the raw
// path is the active one.
func (e *Engine) onRaw(ev AccelEvent, active bool) {
	rawVec := telemetry.Vec3{X: ev.X, Y: ev.Y, Z: ev.Z}
	e.lastRaw = rawVec
	lin := e.filter.update(rawVec)
	if active {
		e.emit(ev.TimestampMs, rawVec, lin)
	}
}

func (e *Engine) emit(tsMs int64, rawVec, lin telemetry.Vec3) {
	lon, lat := vehicle.MapForRotation(lin.X, lin.Y, e.cfg.Rotation)

	s := telemetry.Sample{
		TimestampMs:   tsMs,
		RawAccel:      rawVec,
		LinearAccel:   lin,
		LongitudinalG: lon / telemetry.StandardGravity,
		LateralG:      lat / telemetry.StandardGravity,
	}
	if e.haveGyro {
		s.AngularRate = telemetry.Vec3{X: e.lastGyro.X, Y: e.lastGyro.Y, Z: e.lastGyro.Z}
		s.YawRateDegS = e.lastGyro.Z * 180.0 / math.Pi
	}
	if e.haveFix && e.lastFix.Valid {
		s.HasFix = true
		s.Latitude = e.lastFix.Latitude
		s.Longitude = e.lastFix.Longitude
		s.AltitudeM = e.lastFix.AltitudeM
		s.SpeedMS = e.lastFix.SpeedMS
		s.BearingDeg = e.lastFix.BearingDeg
		s.AccuracyM = e.lastFix.AccuracyM
	}

	e.latest.Store(&s)

	e.mu.Lock()
	subs := e.subs
	e.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- s:
		default:
			e.dropped++
			if e.dropped%1000 == 1 {
				log.Printf("fusion: slow subscriber, %d samples dropped so far", e.dropped)
			}
		}
	}
}
