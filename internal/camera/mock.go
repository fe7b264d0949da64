// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package camera

import (
	"sync"
	"time"
)

// MockSource generates synthetic frames at a fixed rate, for development
// rigs without a camera daemon and for tests.
type MockSource struct {
	frames   chan Frame
	stopOnce sync.Once
	stop     chan struct{}
}

// NewMockSource starts producing a small placeholder JPEG every interval.
func NewMockSource(interval time.Duration, rotation int) *MockSource {
	m := &MockSource{
		frames: make(chan Frame, 4),
		stop:   make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(m.frames)

		for {
			select {
			case <-m.stop:
				return
			case t := <-ticker.C:
				f := Frame{
					// Bare JPEG SOI/EOI markers; enough for plumbing tests.
					Data:        []byte{0xFF, 0xD8, 0xFF, 0xD9},
					TimestampMs: t.UnixMilli(),
					Rotation:    rotation,
				}
				select {
				case m.frames <- f:
				default:
				}
			}
		}
	}()
	return m
}

func (m *MockSource) Frames() <-chan Frame { return m.frames }

func (m *MockSource) Stop() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

var _ Source = (*MockSource)(nil)
