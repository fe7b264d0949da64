package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/pacenote_computer/internal/config"
	"github.com/relabs-tech/pacenote_computer/internal/gps"
)

// knotsToMS converts NMEA speed-over-ground to m/s.
const knotsToMS = 0.514444

// hdopToMeters is a rough horizontal accuracy estimate: HDOP times a
// nominal 5 m base uncertainty for a consumer receiver.
const hdopToMeters = 5.0

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes combined GPS fixes as JSON to the configured MQTT topic.
func RunGPSProducer() error {
	cfg := config.Get()

	// ---- 1) Connect to MQTT broker ----
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDGPS)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("GPS producer connected to MQTT broker at %s", cfg.MQTTBroker)

	// ---- 2) Open GPS serial port ----
	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("open %s: %w", serialOpts.PortName, gps.ErrPermissionDenied)
		}
		return err
	}
	defer port.Close()
	log.Printf("GPS serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	reader := bufio.NewReader(port)

	// RMC drives position/speed/course; GGA fills in altitude and an
	// accuracy estimate between RMC sentences.
	var altitudeM, accuracyM float64

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("GPS read error: %v", err)
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			// noisy GPS or partial sentences
			continue
		}

		switch sentence.DataType() {
		case nmea.TypeGGA:
			m := sentence.(nmea.GGA)
			altitudeM = m.Altitude
			accuracyM = m.HDOP * hdopToMeters

		case nmea.TypeRMC:
			m := sentence.(nmea.RMC)

			fix := gps.Fix{
				TimestampMs: time.Now().UnixMilli(),
				Latitude:    m.Latitude,
				Longitude:   m.Longitude,
				AltitudeM:   altitudeM,
				SpeedMS:     m.Speed * knotsToMS,
				BearingDeg:  m.Course,
				AccuracyM:   accuracyM,
				Valid:       m.Validity == nmea.ValidRMC,
			}

			payload, err := json.Marshal(fix)
			if err != nil {
				log.Printf("GPS JSON marshal error: %v", err)
				continue
			}

			token := client.Publish(cfg.TopicGPS, 0, true, payload)
			token.Wait()
			if token.Error() != nil {
				log.Printf("GPS publish error: %v", token.Error())
				continue
			}

			log.Printf("published GPS fix: lat=%.6f lon=%.6f speed=%.1f m/s valid=%v",
				fix.Latitude, fix.Longitude, fix.SpeedMS, fix.Valid)
		}
	}
}
