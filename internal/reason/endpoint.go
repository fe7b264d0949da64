// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package reason

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relabs-tech/pacenote_computer/internal/camera"
	"github.com/relabs-tech/pacenote_computer/internal/telemetry"
)

// ModelInfo identifies the reasoning model behind an endpoint.
type ModelInfo struct {
	Model string `json:"model"`
}

// Endpoint is the AI inference boundary. Implementations must tolerate
// being called at the dispatch rate cap and must return errors per call,
// never panic, so the pipeline can absorb failures frame by frame.
type Endpoint interface {
	// Describe reports the model identity; used to confirm readiness.
	Describe(ctx context.Context) (ModelInfo, error)

	// Analyze submits one frame with its telemetry context and returns
	// the reasoning result.
	Analyze(ctx context.Context, frame camera.Frame, s telemetry.Sample) (Action, error)
}

// HTTPEndpoint talks to the reasoning service over HTTP JSON: the frame
// goes inline as base64 alongside the fused telemetry snapshot, and the
// service answers with an alert level, message, optional call-out text
// and a confidence score.
type HTTPEndpoint struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPEndpoint creates a client for the reasoning service.
func NewHTTPEndpoint(baseURL, apiKey string) *HTTPEndpoint {
	return &HTTPEndpoint{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type analyzeRequest struct {
	ImageJPEG  string           `json:"image_jpeg"` // base64
	Telemetry  telemetry.Sample `json:"telemetry"`
	CapturedMs int64            `json:"captured_ms"`
}

type analyzeResponse struct {
	AlertLevel string  `json:"alert_level"`
	Message    string  `json:"message"`
	Speech     string  `json:"speech"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

func (e *HTTPEndpoint) Describe(ctx context.Context) (ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/model", nil)
	if err != nil {
		return ModelInfo{}, err
	}
	e.auth(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("model query failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return ModelInfo{}, fmt.Errorf("model query status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var info ModelInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return ModelInfo{}, fmt.Errorf("model response decode: %w", err)
	}
	if info.Model == "" {
		return ModelInfo{}, fmt.Errorf("model response missing model identifier")
	}
	return info, nil
}

func (e *HTTPEndpoint) Analyze(ctx context.Context, frame camera.Frame, s telemetry.Sample) (Action, error) {
	payload := analyzeRequest{
		ImageJPEG:  base64.StdEncoding.EncodeToString(frame.Data),
		Telemetry:  s,
		CapturedMs: frame.TimestampMs,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return Action{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/analyze", bytes.NewReader(jsonData))
	if err != nil {
		return Action{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	e.auth(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return Action{}, fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return Action{}, fmt.Errorf("analyze status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result analyzeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Action{}, fmt.Errorf("analyze response decode: %w (body: %s)", err, truncate(string(body), 200))
	}
	if result.Error != "" {
		return Action{}, fmt.Errorf("reasoning service error: %s", result.Error)
	}

	conf := result.Confidence
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}
	return Action{
		Status:     StatusOK,
		AlertLevel: ParseAlertLevel(result.AlertLevel),
		Message:    result.Message,
		Speech:     result.Speech,
		Confidence: conf,
	}, nil
}

func (e *HTTPEndpoint) auth(req *http.Request) {
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Endpoint = (*HTTPEndpoint)(nil)
