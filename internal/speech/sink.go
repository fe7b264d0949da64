// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package speech

import (
	"log"
	"sync"
	"time"
)

// Sink is the co-driver voice output boundary. Implementations live
// outside this core (a TTS daemon, the cabin head unit); the pipeline
// only issues commands.
type Sink interface {
	// Speak queues a call-out for synthesis.
	Speak(text string) error
	// Interrupt cuts off any in-progress speech immediately.
	Interrupt() error
	// Resume lifts a previous interruption so queued output may flow again.
	Resume() error
}

// BargeIn coordinates interruption of in-progress speech when a critical
// event fires: Interrupt now, then Resume automatically after a quiet
// period with no further critical events. Call-outs arriving while
// suppressed are dropped, not queued; a stale pacenote is worse than
// silence.
type BargeIn struct {
	sink  Sink
	quiet time.Duration

	mu         sync.Mutex
	suppressed bool
	timer      *time.Timer
	window     uint64 // invalidates expired-but-not-yet-run resume callbacks
}

// NewBargeIn wraps a sink with barge-in semantics. quiet is how long
// after the last critical event normal output resumes.
func NewBargeIn(sink Sink, quiet time.Duration) *BargeIn {
	return &BargeIn{sink: sink, quiet: quiet}
}

// CriticalEvent interrupts current speech and (re)starts the quiet
// window. Repeated criticals extend the window. Each call opens a new
// window generation so a previous window's timer callback, already past
// its Stop when this runs, cannot end the new window early.
func (b *BargeIn) CriticalEvent() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.suppressed = true
	b.window++
	window := b.window
	b.timer = time.AfterFunc(b.quiet, func() { b.resume(window) })
	b.mu.Unlock()

	if err := b.sink.Interrupt(); err != nil {
		log.Printf("speech: interrupt failed: %v", err)
	}
}

// Say forwards a call-out unless output is suppressed by a quiet window.
func (b *BargeIn) Say(text string) error {
	if text == "" {
		return nil
	}
	b.mu.Lock()
	suppressed := b.suppressed
	b.mu.Unlock()
	if suppressed {
		log.Printf("speech: suppressed during quiet period: %q", text)
		return nil
	}
	return b.sink.Speak(text)
}

// Suppressed reports whether output is currently held back.
func (b *BargeIn) Suppressed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.suppressed
}

// Stop cancels any pending resume timer. Safe to call repeatedly.
func (b *BargeIn) Stop() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.window++ // orphan any callback already past its Stop
	b.mu.Unlock()
}

func (b *BargeIn) resume(window uint64) {
	b.mu.Lock()
	if window != b.window {
		// A newer critical reopened the window after this timer fired.
		b.mu.Unlock()
		return
	}
	b.suppressed = false
	b.timer = nil
	b.mu.Unlock()

	if err := b.sink.Resume(); err != nil {
		log.Printf("speech: resume failed: %v", err)
	}
}
