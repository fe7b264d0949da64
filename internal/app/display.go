package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/pacenote_computer/internal/config"
	"github.com/relabs-tech/pacenote_computer/internal/reason"
	"github.com/relabs-tech/pacenote_computer/internal/telemetry"
)

// displayData holds the latest data for the dash display.
type displayData struct {
	mu sync.RWMutex

	sample     telemetry.Sample
	haveSample bool

	mode string

	action     reason.Action
	haveAction bool
}

// RunDisplay drives the small dash OLED: current mode, live G forces and
// the latest alert from the reasoning tier.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	// The upstream driver talks to the controller's fixed 0x3C address.
	if cfg.DisplayI2CAddr != 0x3C {
		log.Printf("display: driver uses fixed I2C address 0x3C, ignoring configured 0x%02X", cfg.DisplayI2CAddr)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Println("display: initialized")

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &displayData{mode: "idle"}

	// Connect to MQTT
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicTelemetry, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s telemetry.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("display: telemetry unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.sample = s
		data.haveSample = true
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}

	token = client.Subscribe(cfg.TopicMode, 0, func(_ mqtt.Client, msg mqtt.Message) {
		data.mu.Lock()
		data.mode = string(msg.Payload())
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}

	token = client.Subscribe(cfg.TopicAction, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var a reason.Action
		if err := json.Unmarshal(msg.Payload(), &a); err != nil {
			log.Printf("display: action unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.action = a
		data.haveAction = true
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Println("display: subscribed to co-pilot topics")

	// Display update loop
	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		snapshot := displayData{
			sample:     data.sample,
			haveSample: data.haveSample,
			mode:       data.mode,
			action:     data.action,
			haveAction: data.haveAction,
		}
		data.mu.RUnlock()

		if err := updateStatusDisplay(dev, &snapshot); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func blankImage() *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}
	return img
}

func updateStatusDisplay(dev *ssd1306.Dev, data *displayData) error {
	img := blankImage()

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(fmt.Sprintf("MODE %s", data.mode)))

	if !data.haveSample {
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
	} else {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte(fmt.Sprintf("Lon %+5.2fg", data.sample.LongitudinalG)))

		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte(fmt.Sprintf("Lat %+5.2fg", data.sample.LateralG)))
	}

	if data.haveAction {
		drawer.Dot = fixed.P(0, 52)
		text := data.action.AlertLevel.String()
		if len(data.action.Message) > 0 {
			msg := data.action.Message
			if len(msg) > 12 {
				msg = msg[:12]
			}
			text = text + " " + msg
		}
		drawer.DrawBytes([]byte(text))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func showSplash(dev *ssd1306.Dev) error {
	img := blankImage()

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Pacenote Pi"))

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("Waiting for"))

	drawer.Dot = fixed.P(25, 56)
	drawer.DrawBytes([]byte("sensors"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
