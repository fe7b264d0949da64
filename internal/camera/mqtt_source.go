package camera

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSource receives JPEG frames published by the camera daemon on an
// MQTT topic. The payload is the raw JPEG; capture time is taken at
// arrival since the camera daemon publishes each frame as it is grabbed.
type MQTTSource struct {
	client   mqtt.Client
	topic    string
	rotation int

	mu       sync.Mutex
	stopped  bool
	frames   chan Frame
	stopOnce sync.Once
	stopErr  error
}

// NewMQTTSource subscribes to the frame topic. The returned source must
// be stopped to unsubscribe.
func NewMQTTSource(client mqtt.Client, topic string, rotation int) (*MQTTSource, error) {
	s := &MQTTSource{
		client:   client,
		topic:    topic,
		rotation: rotation,
		frames:   make(chan Frame, 4),
	}

	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		f := Frame{
			Data:        msg.Payload(),
			TimestampMs: time.Now().UnixMilli(),
			Rotation:    s.rotation,
		}
		// Paho may still invoke the handler after Unsubscribe returns, so
		// the send must be serialized with Stop's close of the channel.
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.stopped {
			return
		}
		// Frames are perishable: drop rather than queue stale ones.
		select {
		case s.frames <- f:
		default:
		}
	})
	token.Wait()
	if token.Error() != nil {
		return nil, token.Error()
	}
	return s, nil
}

func (s *MQTTSource) Frames() <-chan Frame { return s.frames }

// Stop unsubscribes and closes the frame channel. Safe to call repeatedly.
func (s *MQTTSource) Stop() error {
	s.stopOnce.Do(func() {
		token := s.client.Unsubscribe(s.topic)
		token.Wait()
		s.stopErr = token.Error()

		// Any in-flight handler holds the lock through its send; taking it
		// here means no handler can touch the channel once it is closed.
		s.mu.Lock()
		s.stopped = true
		close(s.frames)
		s.mu.Unlock()
	})
	return s.stopErr
}

var _ Source = (*MQTTSource)(nil)
