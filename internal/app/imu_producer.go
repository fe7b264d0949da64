package app

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/pacenote_computer/internal/config"
	"github.com/relabs-tech/pacenote_computer/internal/sensors"
)

// RunIMUProducer reads the MPU9250 at a fixed rate and publishes scaled
// SI samples as JSON to the raw IMU topic. The accelerometer values are
// gravity-inclusive; gravity removal happens in the co-pilot's fusion
// engine.
func RunIMUProducer() error {
	cfg := config.Get()

	// ---- 1) Initialize the IMU ----
	src, err := sensors.NewMPU9250Source(cfg.IMUSPIDevice, cfg.IMUCSPin)
	if err != nil {
		return err
	}

	// ---- 2) Connect to MQTT broker ----
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDIMU)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("IMU producer connected to MQTT broker at %s", cfg.MQTTBroker)

	// ---- 3) Publish loop ----
	ticker := time.NewTicker(time.Duration(cfg.IMUSampleIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	published := 0
	for range ticker.C {
		sample, err := src.Next()
		if err != nil {
			log.Printf("IMU read error: %v", err)
			continue
		}

		payload, err := json.Marshal(sample)
		if err != nil {
			log.Printf("IMU JSON marshal error: %v", err)
			continue
		}

		if token := client.Publish(cfg.TopicIMURaw, 0, false, payload); token.Wait() && token.Error() != nil {
			log.Printf("IMU publish error: %v", token.Error())
			continue
		}

		published++
		if published%500 == 0 {
			log.Printf("IMU: %d samples published, latest ax=%.2f ay=%.2f az=%.2f m/s²",
				published, sample.Ax, sample.Ay, sample.Az)
		}
	}
	return nil
}
