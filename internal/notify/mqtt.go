package notify

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// disconnectGraceMs is how long Close waits for in-flight publishes.
const disconnectGraceMs = 250

// MQTT publishes events to an MQTT broker, one topic per event kind under
// a common prefix: <prefix>/detections and <prefix>/triggers.
type MQTT struct {
	prefix string
	client mqtt.Client
}

// NewMQTT connects to the broker at brokerURL (for example
// tcp://127.0.0.1:1883) and returns a publisher rooted at prefix.
func NewMQTT(brokerURL, prefix, clientID string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTT{prefix: prefix, client: client}, nil
}

func (m *MQTT) DetectionStarted(event DetectionEvent) error {
	return m.publish(m.prefix+"/detections", event)
}

func (m *MQTT) Triggered(event TriggerEvent) error {
	return m.publish(m.prefix+"/triggers", event)
}

func (m *MQTT) publish(topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	token := m.client.Publish(topic, 0, false, payload)
	token.Wait()
	return token.Error()
}

func (m *MQTT) Close() error {
	m.client.Disconnect(disconnectGraceMs)
	return nil
}
