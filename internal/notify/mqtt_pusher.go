package notify

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"axle-monitor/core/internal/config"
	"axle-monitor/core/internal/domain"
)

const topicPrefix = "axle-monitor/notify/"

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPusher publishes messages on axle-monitor/notify/{recipient}.
type MQTTPusher struct {
	client mqttPublisher
	qos    byte
}

// DialMQTT connects to the configured broker.
func DialMQTT(cfg config.NotificationConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w: %v", domain.ErrUpstreamUnavailable, token.Error())
	}
	return client, nil
}

func NewMQTTPusher(client mqttPublisher) *MQTTPusher {
	return &MQTTPusher{client: client, qos: 1}
}

func (p *MQTTPusher) Name() string { return "mqtt" }

func (p *MQTTPusher) Notify(ctx context.Context, recipient string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	topic := topicPrefix + recipient
	token := p.client.Publish(topic, p.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish to topic %s: %w", topic, ctx.Err())
	}
}
