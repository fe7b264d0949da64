// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDCopilot string
	MQTTClientIDGPS     string
	MQTTClientIDIMU     string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string

	// Topics
	TopicTelemetry       string
	TopicManeuver        string
	TopicMode            string
	TopicAction          string
	TopicIMURaw          string
	TopicGPS             string
	TopicReflexAlert     string
	TopicCameraFrames    string
	TopicSpeechSay       string
	TopicSpeechInterrupt string
	TopicSpeechResume    string

	// Mounting / fusion
	DeviceRotation   int     // 0, 90, 180, 270
	GravityAlpha     float64 // low-pass coefficient for gravity estimation
	ZeroSignalStreak int     // consecutive near-zero samples before failover
	UseLinearAccel   bool    // whether a gravity-free accel stream exists

	// Maneuver classifier thresholds (units of g)
	HardBrakingG      float64 // negative
	HardAccelerationG float64
	SharpTurnG        float64

	// Adaptive sampling
	IdlePollIntervalMS  int
	CruisingIntervalMS  int
	ManeuverIntervalMS  int
	CriticalIntervalMS  int
	IdleSpeedMS         float64 // m/s at or below which the car is stopped
	ManeuverG           float64
	CriticalG           float64
	ReflexHoldMS        int
	SpeechQuietPeriodMS int

	// Reasoning dispatch
	MaxFramesPerSec float64
	FrameBufferSize int
	ReasoningURL    string
	ReasoningAPIKey string

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// IMU Hardware
	IMUSPIDevice       string
	IMUCSPin           string
	IMUSampleIntervalMS int

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CAddr          uint16
	DisplayUpdateIntervalMS int
}

// Package-level unexported variables for singleton pattern. External code
// must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// defaults returns a Config prefilled with the production tuning, so a
// deployment only has to override what differs.
func defaults() *Config {
	return &Config{
		MQTTBroker:          "tcp://localhost:1883",
		MQTTClientIDCopilot: "pacenote-copilot",
		MQTTClientIDGPS:     "pacenote-gps-producer",
		MQTTClientIDIMU:     "pacenote-imu-producer",
		MQTTClientIDConsole: "pacenote-console",
		MQTTClientIDWeb:     "pacenote-web",
		MQTTClientIDDisplay: "pacenote-display",

		TopicTelemetry:       "pacenote/telemetry",
		TopicManeuver:        "pacenote/maneuver",
		TopicMode:            "pacenote/mode",
		TopicAction:          "pacenote/action",
		TopicIMURaw:          "pacenote/imu/raw",
		TopicGPS:             "pacenote/gps",
		TopicReflexAlert:     "pacenote/alert/reflex",
		TopicCameraFrames:    "pacenote/camera/jpeg",
		TopicSpeechSay:       "pacenote/speech/say",
		TopicSpeechInterrupt: "pacenote/speech/interrupt",
		TopicSpeechResume:    "pacenote/speech/resume",

		DeviceRotation:   0,
		GravityAlpha:     0.8,
		ZeroSignalStreak: 100,
		UseLinearAccel:   false,

		HardBrakingG:      -0.4,
		HardAccelerationG: 0.35,
		SharpTurnG:        0.3,

		IdlePollIntervalMS:  1000,
		CruisingIntervalMS:  15000,
		ManeuverIntervalMS:  3000,
		CriticalIntervalMS:  1000,
		IdleSpeedMS:         2.0,
		ManeuverG:           0.3,
		CriticalG:           0.5,
		ReflexHoldMS:        3000,
		SpeechQuietPeriodMS: 3000,

		MaxFramesPerSec: 5,
		FrameBufferSize: 10,
		ReasoningURL:    "http://localhost:8090",

		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,

		IMUSPIDevice:        "/dev/spidev0.0",
		IMUCSPin:            "18",
		IMUSampleIntervalMS: 20, // 50 Hz target

		WebServerPort: 8080,

		DisplayI2CAddr:          0x3C,
		DisplayUpdateIntervalMS: 250,
	}
}

// Load reads the configuration file and returns a Config struct.
// Keys not present in the file keep their defaults.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_COPILOT":
		c.MQTTClientIDCopilot = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_IMU":
		c.MQTTClientIDIMU = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_TELEMETRY":
		c.TopicTelemetry = value
	case "TOPIC_MANEUVER":
		c.TopicManeuver = value
	case "TOPIC_MODE":
		c.TopicMode = value
	case "TOPIC_ACTION":
		c.TopicAction = value
	case "TOPIC_IMU_RAW":
		c.TopicIMURaw = value
	case "TOPIC_GPS":
		c.TopicGPS = value
	case "TOPIC_REFLEX_ALERT":
		c.TopicReflexAlert = value
	case "TOPIC_CAMERA_FRAMES":
		c.TopicCameraFrames = value
	case "TOPIC_SPEECH_SAY":
		c.TopicSpeechSay = value
	case "TOPIC_SPEECH_INTERRUPT":
		c.TopicSpeechInterrupt = value
	case "TOPIC_SPEECH_RESUME":
		c.TopicSpeechResume = value

	// Mounting / fusion
	case "DEVICE_ROTATION":
		rot, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DEVICE_ROTATION %q: %w", value, err)
		}
		if rot != 0 && rot != 90 && rot != 180 && rot != 270 {
			return fmt.Errorf("DEVICE_ROTATION must be 0, 90, 180 or 270, got %d", rot)
		}
		c.DeviceRotation = rot
	case "GRAVITY_ALPHA":
		alpha, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid GRAVITY_ALPHA %q: %w", value, err)
		}
		if alpha <= 0 || alpha >= 1 {
			return fmt.Errorf("GRAVITY_ALPHA must be in (0,1), got %v", alpha)
		}
		c.GravityAlpha = alpha
	case "ZERO_SIGNAL_STREAK":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ZERO_SIGNAL_STREAK %q: %w", value, err)
		}
		if n < 1 {
			return fmt.Errorf("ZERO_SIGNAL_STREAK must be >= 1, got %d", n)
		}
		c.ZeroSignalStreak = n
	case "USE_LINEAR_ACCEL":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid USE_LINEAR_ACCEL %q: %w", value, err)
		}
		c.UseLinearAccel = b

	// Classifier thresholds
	case "HARD_BRAKING_G":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid HARD_BRAKING_G %q: %w", value, err)
		}
		if v >= 0 {
			return fmt.Errorf("HARD_BRAKING_G must be negative, got %v", v)
		}
		c.HardBrakingG = v
	case "HARD_ACCELERATION_G":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid HARD_ACCELERATION_G %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("HARD_ACCELERATION_G must be positive, got %v", v)
		}
		c.HardAccelerationG = v
	case "SHARP_TURN_G":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SHARP_TURN_G %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("SHARP_TURN_G must be positive, got %v", v)
		}
		c.SharpTurnG = v

	// Adaptive sampling
	case "IDLE_POLL_INTERVAL_MS":
		return c.setIntervalMS(&c.IdlePollIntervalMS, key, value)
	case "CRUISING_INTERVAL_MS":
		return c.setIntervalMS(&c.CruisingIntervalMS, key, value)
	case "MANEUVER_INTERVAL_MS":
		return c.setIntervalMS(&c.ManeuverIntervalMS, key, value)
	case "CRITICAL_INTERVAL_MS":
		return c.setIntervalMS(&c.CriticalIntervalMS, key, value)
	case "IDLE_SPEED_MS":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid IDLE_SPEED_MS %q: %w", value, err)
		}
		c.IdleSpeedMS = v
	case "MANEUVER_G":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MANEUVER_G %q: %w", value, err)
		}
		c.ManeuverG = v
	case "CRITICAL_G":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid CRITICAL_G %q: %w", value, err)
		}
		c.CriticalG = v
	case "REFLEX_HOLD_MS":
		return c.setIntervalMS(&c.ReflexHoldMS, key, value)
	case "SPEECH_QUIET_PERIOD_MS":
		return c.setIntervalMS(&c.SpeechQuietPeriodMS, key, value)

	// Reasoning dispatch
	case "MAX_FRAMES_PER_SEC":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_FRAMES_PER_SEC %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("MAX_FRAMES_PER_SEC must be positive, got %v", v)
		}
		c.MaxFramesPerSec = v
	case "FRAME_BUFFER_SIZE":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid FRAME_BUFFER_SIZE %q: %w", value, err)
		}
		if n < 1 {
			return fmt.Errorf("FRAME_BUFFER_SIZE must be >= 1, got %d", n)
		}
		c.FrameBufferSize = n
	case "REASONING_URL":
		c.ReasoningURL = value
	case "REASONING_API_KEY":
		c.ReasoningAPIKey = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	// IMU hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_SAMPLE_INTERVAL_MS":
		return c.setIntervalMS(&c.IMUSampleIntervalMS, key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL_MS":
		return c.setIntervalMS(&c.DisplayUpdateIntervalMS, key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func (c *Config) setIntervalMS(dst *int, key, value string) error {
	interval, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if interval < 1 {
		return fmt.Errorf("%s must be >= 1, got %d", key, interval)
	}
	*dst = interval
	return nil
}

// validate checks cross-field consistency.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.ReasoningURL == "" {
		return fmt.Errorf("REASONING_URL is required")
	}
	if c.CriticalG <= c.ManeuverG {
		return fmt.Errorf("CRITICAL_G (%v) must be above MANEUVER_G (%v)", c.CriticalG, c.ManeuverG)
	}
	if c.CriticalIntervalMS > c.ManeuverIntervalMS {
		return fmt.Errorf("CRITICAL_INTERVAL_MS (%d) must not exceed MANEUVER_INTERVAL_MS (%d)", c.CriticalIntervalMS, c.ManeuverIntervalMS)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
