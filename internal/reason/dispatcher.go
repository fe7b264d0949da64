// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package reason

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/pacenote_computer/internal/camera"
	"github.com/relabs-tech/pacenote_computer/internal/telemetry"
)

// State of the reasoning readiness machine.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config tunes the dispatcher.
type Config struct {
	// MaxFramesPerSecond caps delivery to the endpoint regardless of
	// sampling mode. The production cap is 5.
	MaxFramesPerSecond float64
	// FrameBufferSize bounds the recent-frame ring. Oldest frames are
	// evicted first. The production size is 10.
	FrameBufferSize int
	// SubscriberBuffer sizes each action subscriber channel.
	SubscriberBuffer int
}

// DefaultConfig returns the production dispatch limits.
func DefaultConfig() Config {
	return Config{
		MaxFramesPerSecond: 5,
		FrameBufferSize:    10,
		SubscriberBuffer:   16,
	}
}

// Dispatcher rate-limits frames, packages each with its telemetry
// context, submits it to the endpoint and publishes the resulting
// actions. Inference errors are per-frame: they are logged, published as
// error-status actions, and never stop the pipeline.
type Dispatcher struct {
	cfg         Config
	endpoint    Endpoint
	minInterval time.Duration

	mu       sync.Mutex
	state    State
	model    string
	errMsg   string
	lastSent time.Time
	buffer   []camera.Frame
	subs     []chan Action
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	nowFn func() time.Time
}

// NewDispatcher creates a dispatcher in the Idle state.
func NewDispatcher(endpoint Endpoint, cfg Config) *Dispatcher {
	if cfg.MaxFramesPerSecond <= 0 {
		cfg.MaxFramesPerSecond = 5
	}
	if cfg.FrameBufferSize <= 0 {
		cfg.FrameBufferSize = 10
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:         cfg,
		endpoint:    endpoint,
		minInterval: time.Duration(float64(time.Second) / cfg.MaxFramesPerSecond),
		ctx:         ctx,
		cancel:      cancel,
		nowFn:       time.Now,
	}
}

// State returns the readiness state and, when Ready, the model identifier.
func (d *Dispatcher) State() (State, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.model
}

// Subscribe registers an action consumer. Actions are dropped for a slow
// subscriber rather than blocking inference completion.
func (d *Dispatcher) Subscribe() <-chan Action {
	ch := make(chan Action, d.cfg.SubscriberBuffer)
	d.mu.Lock()
	d.subs = append(d.subs, ch)
	d.mu.Unlock()
	return ch
}

// Init confirms endpoint readiness asynchronously: Idle -> Initializing,
// then Ready with the model identifier, or Error. Frames offered before
// Ready short-circuit to a not-ready action.
func (d *Dispatcher) Init() {
	d.mu.Lock()
	if d.state == StateInitializing || d.state == StateReady {
		d.mu.Unlock()
		return
	}
	d.state = StateInitializing
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		info, err := d.endpoint.Describe(d.ctx)

		d.mu.Lock()
		defer d.mu.Unlock()
		if err != nil {
			d.state = StateError
			d.errMsg = err.Error()
			log.Printf("reason: endpoint not ready: %v", err)
			return
		}
		d.state = StateReady
		d.model = info.Model
		log.Printf("reason: endpoint ready (model %s)", info.Model)
	}()
}

// Offer hands a frame and its telemetry context to the dispatcher.
// Frames arriving inside the rate-limit window are dropped, not queued;
// the return value reports whether the frame was accepted.
func (d *Dispatcher) Offer(frame camera.Frame, s telemetry.Sample) bool {
	now := d.nowFn()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return false
	}
	if !d.lastSent.IsZero() && now.Sub(d.lastSent) < d.minInterval {
		d.mu.Unlock()
		return false
	}
	d.lastSent = now

	// Bounded recent-frame ring, oldest evicted first.
	d.buffer = append(d.buffer, frame)
	if len(d.buffer) > d.cfg.FrameBufferSize {
		d.buffer = d.buffer[len(d.buffer)-d.cfg.FrameBufferSize:]
	}

	state := d.state
	// Taken while still under the lock so Stop cannot close the
	// subscriber channels under an in-flight publish.
	d.wg.Add(1)
	d.mu.Unlock()

	if state != StateReady {
		d.publish(Action{
			RequestID:   uuid.NewString(),
			Status:      StatusNotReady,
			AlertLevel:  AlertNone,
			Message:     "reasoning " + state.String(),
			TimestampMs: now.UnixMilli(),
		})
		d.wg.Done()
		return true
	}

	go d.process(frame, s)
	return true
}

// RecentFrames returns a copy of the bounded frame ring, newest last.
func (d *Dispatcher) RecentFrames() []camera.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]camera.Frame, len(d.buffer))
	copy(out, d.buffer)
	return out
}

// Stop cancels outstanding inference calls and closes subscriber
// channels. Safe to call repeatedly; Offer afterwards is a no-op.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()

	d.mu.Lock()
	for _, ch := range d.subs {
		close(ch)
	}
	d.subs = nil
	d.mu.Unlock()
}

func (d *Dispatcher) process(frame camera.Frame, s telemetry.Sample) {
	defer d.wg.Done()

	requestID := uuid.NewString()
	action, err := d.endpoint.Analyze(d.ctx, frame, s)
	if err != nil {
		if d.ctx.Err() != nil {
			return // shutting down
		}
		log.Printf("reason: inference error (request %s): %v", requestID, err)
		d.publish(Action{
			RequestID:   requestID,
			Status:      StatusError,
			AlertLevel:  AlertNone,
			Message:     err.Error(),
			TimestampMs: d.nowFn().UnixMilli(),
		})
		return
	}

	action.RequestID = requestID
	if action.Status == "" {
		action.Status = StatusOK
	}
	if action.TimestampMs == 0 {
		action.TimestampMs = d.nowFn().UnixMilli()
	}
	d.publish(action)
}

func (d *Dispatcher) publish(a Action) {
	d.mu.Lock()
	subs := d.subs
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return
	}
	for _, ch := range subs {
		select {
		case ch <- a:
		default:
			log.Println("reason: slow action subscriber, dropping action")
		}
	}
}
