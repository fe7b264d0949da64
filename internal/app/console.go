package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/pacenote_computer/internal/config"
	"github.com/relabs-tech/pacenote_computer/internal/gps"
	"github.com/relabs-tech/pacenote_computer/internal/reason"
	"github.com/relabs-tech/pacenote_computer/internal/telemetry"
	"github.com/relabs-tech/pacenote_computer/internal/vehicle"
)

// RunConsole subscribes to the co-pilot output topics and prints a line
// per message, for bench debugging without the web UI.
func RunConsole() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	subscribe := func(topic string, handler mqtt.MessageHandler) error {
		token := client.Subscribe(topic, 0, handler)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("console: subscribed to %s", topic)
		return nil
	}

	if err := subscribe(cfg.TopicTelemetry, func(_ mqtt.Client, msg mqtt.Message) {
		var s telemetry.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: telemetry unmarshal error: %v", err)
			return
		}
		fmt.Printf(
			"[TELE]  lon=%+6.2fg lat=%+6.2fg yaw=%+7.1f°/s speed=%5.1fm/s fix=%v\n",
			s.LongitudinalG, s.LateralG, s.YawRateDegS, s.SpeedMS, s.HasFix,
		)
	}); err != nil {
		return err
	}

	if err := subscribe(cfg.TopicManeuver, func(_ mqtt.Client, msg mqtt.Message) {
		var m vehicle.Maneuver
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("console: maneuver unmarshal error: %v", err)
			return
		}
		fmt.Printf("[MANV]  %s  dur=%dms\n", m, m.DurationMs)
	}); err != nil {
		return err
	}

	if err := subscribe(cfg.TopicMode, func(_ mqtt.Client, msg mqtt.Message) {
		fmt.Printf("[MODE]  %s\n", msg.Payload())
	}); err != nil {
		return err
	}

	if err := subscribe(cfg.TopicAction, func(_ mqtt.Client, msg mqtt.Message) {
		var a reason.Action
		if err := json.Unmarshal(msg.Payload(), &a); err != nil {
			log.Printf("console: action unmarshal error: %v", err)
			return
		}
		fmt.Printf(
			"[ACT ]  %s level=%s conf=%.2f  %q\n",
			a.Status, a.AlertLevel, a.Confidence, a.Message,
		)
	}); err != nil {
		return err
	}

	if err := subscribe(cfg.TopicGPS, func(_ mqtt.Client, msg mqtt.Message) {
		var f gps.Fix
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("console: gps unmarshal error: %v", err)
			return
		}
		fmt.Printf(
			"[GPS ]  lat=%.6f lon=%.6f speed=%.1fm/s bearing=%.1f° valid=%v\n",
			f.Latitude, f.Longitude, f.SpeedMS, f.BearingDeg, f.Valid,
		)
	}); err != nil {
		return err
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
