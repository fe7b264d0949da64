package speech

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Topics for the speech daemon commands.
type Topics struct {
	Say       string
	Interrupt string
	Resume    string
}

// MQTTSink drives the speech daemon over MQTT: call-out text on the say
// topic, empty retained-free signals on the interrupt/resume topics.
type MQTTSink struct {
	client mqtt.Client
	topics Topics
}

// NewMQTTSink creates a sink publishing to the given topics.
func NewMQTTSink(client mqtt.Client, topics Topics) *MQTTSink {
	return &MQTTSink{client: client, topics: topics}
}

func (s *MQTTSink) Speak(text string) error {
	token := s.client.Publish(s.topics.Say, 0, false, []byte(text))
	token.Wait()
	return token.Error()
}

func (s *MQTTSink) Interrupt() error {
	token := s.client.Publish(s.topics.Interrupt, 0, false, []byte{})
	token.Wait()
	return token.Error()
}

func (s *MQTTSink) Resume() error {
	token := s.client.Publish(s.topics.Resume, 0, false, []byte{})
	token.Wait()
	return token.Error()
}

var _ Sink = (*MQTTSink)(nil)
