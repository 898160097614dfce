package output

import (
	"fmt"
	"time"

	"github.com/chrisdamba/urbansim/internal/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/lucsky/cuid"
)

const mqttTimeout = 5 * time.Second

type MQTTOutput struct {
	client      mqtt.Client
	topicPrefix string
}

func NewMQTTOutput(cfg *models.Config) (*MQTTOutput, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID("urbansim-" + cuid.Slug()).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(mqttTimeout) || token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %v", cfg.MQTTBroker, token.Error())
	}
	return NewMQTTOutputWithClient(client, cfg.MQTTTopicPrefix), nil
}

func NewMQTTOutputWithClient(client mqtt.Client, topicPrefix string) *MQTTOutput {
	return &MQTTOutput{client: client, topicPrefix: topicPrefix}
}

func (m *MQTTOutput) WriteMessage(topic string, msg []byte) error {
	full := topic
	if m.topicPrefix != "" {
		full = m.topicPrefix + "/" + topic
	}
	token := m.client.Publish(full, 0, false, msg)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("timed out publishing to %s", full)
	}
	return token.Error()
}

func (m *MQTTOutput) Close() error {
	m.client.Disconnect(250)
	return nil
}
