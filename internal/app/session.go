// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/pacenote_computer/internal/camera"
	"github.com/relabs-tech/pacenote_computer/internal/fusion"
	"github.com/relabs-tech/pacenote_computer/internal/reason"
	"github.com/relabs-tech/pacenote_computer/internal/sampling"
	"github.com/relabs-tech/pacenote_computer/internal/speech"
	"github.com/relabs-tech/pacenote_computer/internal/vehicle"
)

// PublishFunc sends a payload to an out-of-process consumer (MQTT in
// production, a recorder in tests). Implementations must not block.
type PublishFunc func(topic string, payload []byte)

// SessionTopics names the outbound streams a session produces.
type SessionTopics struct {
	Telemetry string
	Maneuver  string
	Mode      string
	Action    string
}

// SessionConfig collects the tuning for every stage of the pipeline.
type SessionConfig struct {
	Fusion     fusion.Config
	Thresholds vehicle.Thresholds
	Sampling   sampling.Config
	Dispatch   reason.Config

	// SpeechQuiet is how long speech stays suppressed after a critical
	// event before call-outs resume.
	SpeechQuiet time.Duration

	Topics SessionTopics
}

// DefaultSessionConfig returns the production pipeline tuning.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Fusion:      fusion.DefaultConfig(),
		Thresholds:  vehicle.DefaultThresholds(),
		Sampling:    sampling.DefaultConfig(),
		Dispatch:    reason.DefaultConfig(),
		SpeechQuiet: 3 * time.Second,
		Topics: SessionTopics{
			Telemetry: "pacenote/telemetry",
			Maneuver:  "pacenote/maneuver",
			Mode:      "pacenote/mode",
			Action:    "pacenote/action",
		},
	}
}

// Session wires the full co-pilot pipeline together: sensor fusion feeds
// the maneuver tracker and the sampling controller, the controller's
// capture timer pairs camera frames with the latest telemetry for the
// reasoning dispatcher, and dispatcher actions drive speech output.
//
// A session owns the lifecycle of every stage. Stop tears them down in
// dependency order and is safe to call more than once.
type Session struct {
	cfg SessionConfig

	engine     *fusion.Engine
	tracker    *vehicle.Tracker
	controller *sampling.Controller
	dispatcher *reason.Dispatcher
	voice      *speech.BargeIn

	cam     camera.Source
	publish PublishFunc

	lastFrame atomic.Pointer[camera.Frame]

	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
}

// NewSession builds a session around the given reasoning endpoint and
// speech sink. publish may be nil when no outbound streams are wanted.
func NewSession(cfg SessionConfig, endpoint reason.Endpoint, sink speech.Sink, publish PublishFunc) *Session {
	if publish == nil {
		publish = func(string, []byte) {}
	}
	return &Session{
		cfg:        cfg,
		engine:     fusion.NewEngine(cfg.Fusion),
		tracker:    vehicle.NewTracker(cfg.Thresholds),
		controller: sampling.New(cfg.Sampling),
		dispatcher: reason.NewDispatcher(endpoint, cfg.Dispatch),
		voice:      speech.NewBargeIn(sink, cfg.SpeechQuiet),
		publish:    publish,
	}
}

// Engine exposes the fusion engine, mainly for status views.
func (s *Session) Engine() *fusion.Engine { return s.engine }

// Mode returns the current sampling mode.
func (s *Session) Mode() sampling.Mode { return s.controller.Mode() }

// ReasonState returns the reasoning readiness state and model identifier.
func (s *Session) ReasonState() (reason.State, string) { return s.dispatcher.State() }

// ReflexAlert pins Critical sampling and interrupts speech for a local
// detection (blind spot, proximity) that must not wait for the model.
func (s *Session) ReflexAlert(cause string) {
	s.controller.ForceCritical(cause)
}

// Start brings the pipeline up. The fusion inputs and camera source are
// supplied by the caller so hardware and mock tiers share one session.
func (s *Session) Start(in fusion.Inputs, cam camera.Source) error {
	if s.started {
		return nil
	}

	s.controller.SetModeHook(func(m sampling.Mode) {
		s.publish(s.cfg.Topics.Mode, []byte(m.String()))
	})
	s.controller.SetCriticalHook(func(string) {
		s.voice.CriticalEvent()
	})

	if err := s.engine.Start(in); err != nil {
		return err
	}

	s.cam = cam
	s.controller.Start()
	s.dispatcher.Init()

	s.wg.Add(4)
	go s.telemetryLoop()
	go s.frameLoop()
	go s.captureLoop()
	go s.actionLoop()

	s.started = true
	return nil
}

// Stop shuts the pipeline down: sensors first, then the capture timer,
// then inference, and finally the mode resets to Idle. Idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.engine.Stop()
		if s.cam != nil {
			if err := s.cam.Stop(); err != nil {
				log.Printf("session: camera stop: %v", err)
			}
		}
		s.controller.Stop()
		s.dispatcher.Stop()
		s.voice.Stop()
		s.wg.Wait()
		s.controller.Reset()
		log.Println("session stopped, mode reset to idle")
	})
}

// telemetryLoop is the single consumer of fused samples: it drives the
// mode policy, tracks maneuver episodes, and republishes telemetry.
func (s *Session) telemetryLoop() {
	defer s.wg.Done()
	for sample := range s.engine.Subscribe() {
		s.controller.Update(sample)

		if m, done := s.tracker.Observe(sample); done {
			log.Printf("maneuver: %s", m)
			s.publishJSON(s.cfg.Topics.Maneuver, m)
		}

		s.publishJSON(s.cfg.Topics.Telemetry, sample)
	}
}

// frameLoop keeps only the newest camera frame; stale frames are of no
// use to the reasoning tier.
func (s *Session) frameLoop() {
	defer s.wg.Done()
	for frame := range s.cam.Frames() {
		f := frame
		s.lastFrame.Store(&f)
	}
}

// captureLoop pairs each capture signal with the freshest frame and
// telemetry snapshot and offers the pair to the dispatcher.
func (s *Session) captureLoop() {
	defer s.wg.Done()
	for range s.controller.Captures() {
		frame := s.lastFrame.Load()
		if frame == nil {
			continue // camera not producing yet
		}
		sample, ok := s.engine.Latest()
		if !ok {
			continue
		}
		s.dispatcher.Offer(*frame, sample)
	}
}

// actionLoop turns reasoning results into published actions and speech.
func (s *Session) actionLoop() {
	defer s.wg.Done()
	for action := range s.dispatcher.Subscribe() {
		s.publishJSON(s.cfg.Topics.Action, action)

		if action.Status != reason.StatusOK {
			continue
		}
		if action.AlertLevel == reason.AlertCritical {
			s.controller.ForceCritical("model critical alert")
		}
		if action.Speech != "" {
			if err := s.voice.Say(action.Speech); err != nil {
				log.Printf("session: speech error: %v", err)
			}
		}
	}
}

func (s *Session) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("session: marshal error on %s: %v", topic, err)
		return
	}
	s.publish(topic, payload)
}
