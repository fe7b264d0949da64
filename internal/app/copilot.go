// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/pacenote_computer/internal/camera"
	"github.com/relabs-tech/pacenote_computer/internal/config"
	"github.com/relabs-tech/pacenote_computer/internal/fusion"
	"github.com/relabs-tech/pacenote_computer/internal/gps"
	"github.com/relabs-tech/pacenote_computer/internal/imu"
	"github.com/relabs-tech/pacenote_computer/internal/reason"
	"github.com/relabs-tech/pacenote_computer/internal/sampling"
	"github.com/relabs-tech/pacenote_computer/internal/speech"
	"github.com/relabs-tech/pacenote_computer/internal/vehicle"
)

// RunCopilot wires the full driving co-pilot: it subscribes to the raw
// IMU, GPS, camera and reflex-alert topics, runs the fusion/sampling/
// reasoning session, and republishes telemetry, maneuvers, mode changes,
// actions and speech over MQTT.
func RunCopilot() error {
	cfg := config.Get()

	// ---- 1) Connect to MQTT broker ----
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDCopilot)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("co-pilot connected to MQTT broker at %s", cfg.MQTTBroker)

	// ---- 2) Build the session from config ----
	sessCfg := sessionConfigFromGlobal(cfg)

	endpoint := reason.NewHTTPEndpoint(cfg.ReasoningURL, cfg.ReasoningAPIKey)
	sink := speech.NewMQTTSink(client, speech.Topics{
		Say:       cfg.TopicSpeechSay,
		Interrupt: cfg.TopicSpeechInterrupt,
		Resume:    cfg.TopicSpeechResume,
	})

	publish := func(topic string, payload []byte) {
		client.Publish(topic, 0, false, payload)
	}

	sess := NewSession(sessCfg, endpoint, sink, publish)

	// ---- 3) Route inbound sensor topics into fusion inputs ----
	linear := make(chan fusion.AccelEvent, 64)
	raw := make(chan fusion.AccelEvent, 64)
	gyro := make(chan fusion.GyroEvent, 64)
	fixes := make(chan gps.Fix, 16)

	imuHandler := func(_ mqtt.Client, msg mqtt.Message) {
		var s imu.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("IMU payload decode error: %v", err)
			return
		}
		ev := fusion.AccelEvent{TimestampMs: s.TimestampMs, X: s.Ax, Y: s.Ay, Z: s.Az}
		if s.Linear {
			select {
			case linear <- ev:
			default:
			}
		} else {
			select {
			case raw <- ev:
			default:
			}
		}
		select {
		case gyro <- fusion.GyroEvent{TimestampMs: s.TimestampMs, X: s.Gx, Y: s.Gy, Z: s.Gz}:
		default:
		}
	}
	if token := client.Subscribe(cfg.TopicIMURaw, 0, imuHandler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.TopicIMURaw, token.Error())
	}

	gpsHandler := func(_ mqtt.Client, msg mqtt.Message) {
		var fix gps.Fix
		if err := json.Unmarshal(msg.Payload(), &fix); err != nil {
			log.Printf("GPS payload decode error: %v", err)
			return
		}
		select {
		case fixes <- fix:
		default:
		}
	}
	if token := client.Subscribe(cfg.TopicGPS, 0, gpsHandler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.TopicGPS, token.Error())
	}

	reflexHandler := func(_ mqtt.Client, msg mqtt.Message) {
		sess.ReflexAlert(string(msg.Payload()))
	}
	if token := client.Subscribe(cfg.TopicReflexAlert, 0, reflexHandler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.TopicReflexAlert, token.Error())
	}

	// ---- 4) Camera frames over MQTT ----
	cam, err := camera.NewMQTTSource(client, cfg.TopicCameraFrames, cfg.DeviceRotation)
	if err != nil {
		return fmt.Errorf("camera source: %w", err)
	}

	// ---- 5) Start and wait for shutdown ----
	inputs := fusion.Inputs{Gyro: gyro, Fixes: fixes}
	if cfg.UseLinearAccel {
		inputs.Linear = linear
		inputs.Raw = raw
	} else {
		inputs.Raw = raw
	}

	if err := sess.Start(inputs, cam); err != nil {
		return fmt.Errorf("session start: %w", err)
	}
	log.Println("co-pilot session running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("shutting down co-pilot")
	sess.Stop()
	return nil
}

// sessionConfigFromGlobal maps the flat KEY=VALUE config onto the
// per-stage tuning structs.
func sessionConfigFromGlobal(cfg *config.Config) SessionConfig {
	return SessionConfig{
		Fusion: fusion.Config{
			Rotation:         cfg.DeviceRotation,
			GravityAlpha:     cfg.GravityAlpha,
			ZeroStreak:       cfg.ZeroSignalStreak,
			SubscriberBuffer: fusion.DefaultConfig().SubscriberBuffer,
		},
		Thresholds: vehicle.Thresholds{
			HardBrakingG:      cfg.HardBrakingG,
			HardAccelerationG: cfg.HardAccelerationG,
			SharpTurnG:        cfg.SharpTurnG,
		},
		Sampling: sampling.Config{
			IdlePollInterval: time.Duration(cfg.IdlePollIntervalMS) * time.Millisecond,
			CruisingInterval: time.Duration(cfg.CruisingIntervalMS) * time.Millisecond,
			ManeuverInterval: time.Duration(cfg.ManeuverIntervalMS) * time.Millisecond,
			CriticalInterval: time.Duration(cfg.CriticalIntervalMS) * time.Millisecond,
			IdleSpeedMS:      cfg.IdleSpeedMS,
			ManeuverG:        cfg.ManeuverG,
			CriticalG:        cfg.CriticalG,
			ReflexHold:       time.Duration(cfg.ReflexHoldMS) * time.Millisecond,
		},
		Dispatch: reason.Config{
			MaxFramesPerSecond: cfg.MaxFramesPerSec,
			FrameBufferSize:    cfg.FrameBufferSize,
			SubscriberBuffer:   reason.DefaultConfig().SubscriberBuffer,
		},
		SpeechQuiet: time.Duration(cfg.SpeechQuietPeriodMS) * time.Millisecond,
		Topics: SessionTopics{
			Telemetry: cfg.TopicTelemetry,
			Maneuver:  cfg.TopicManeuver,
			Mode:      cfg.TopicMode,
			Action:    cfg.TopicAction,
		},
	}
}
