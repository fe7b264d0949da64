// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package reason

import (
	"context"
	"sync"

	"github.com/relabs-tech/pacenote_computer/internal/camera"
	"github.com/relabs-tech/pacenote_computer/internal/telemetry"
)

// MockEndpoint is a scripted endpoint for tests and bench rigs. It
// tracks calls and can be primed with a fixed action or error.
type MockEndpoint struct {
	mu sync.Mutex

	Model       string
	DescribeErr error
	NextAction  Action
	NextErr     error

	describeCalls int
	analyzeCalls  int
	lastSample    telemetry.Sample
}

// NewMockEndpoint returns a ready endpoint answering with a benign action.
func NewMockEndpoint() *MockEndpoint {
	return &MockEndpoint{
		Model:      "mock-vla-1",
		NextAction: Action{Status: StatusOK, AlertLevel: AlertNone, Message: "clear road", Confidence: 0.9},
	}
}

func (m *MockEndpoint) Describe(ctx context.Context) (ModelInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.describeCalls++
	if m.DescribeErr != nil {
		return ModelInfo{}, m.DescribeErr
	}
	return ModelInfo{Model: m.Model}, nil
}

func (m *MockEndpoint) Analyze(ctx context.Context, frame camera.Frame, s telemetry.Sample) (Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyzeCalls++
	m.lastSample = s
	if m.NextErr != nil {
		return Action{}, m.NextErr
	}
	return m.NextAction, nil
}

// AnalyzeCalls reports how many frames reached the endpoint.
func (m *MockEndpoint) AnalyzeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyzeCalls
}

// LastSample returns the telemetry context of the most recent call.
func (m *MockEndpoint) LastSample() telemetry.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSample
}

var _ Endpoint = (*MockEndpoint)(nil)
