// internal/notify/mqtt.go
package notify

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-master/internal/registry"
)

const mqttPublishTimeout = 5 * time.Second

// MQTTConfig holds the broker connection settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
}

// ConnectMQTT opens an auto-reconnecting broker connection.
func ConnectMQTT(cfg MQTTConfig, log zerolog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// mqttPublisher adapts a paho client to Publisher.
type mqttPublisher struct {
	client mqtt.Client
	qos    byte
}

func (p mqttPublisher) Publish(topic string, body []byte) error {
	token := p.client.Publish(topic, p.qos, false, body)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return errors.New("mqtt publish timed out")
	}
	return token.Error()
}

// NewMQTTSink publishes changes on <prefix>/<device>/registers/<register> topics at QoS 1.
func NewMQTTSink(client mqtt.Client, prefix string, clock registry.Clock, log zerolog.Logger) *PublishSink {
	return newPublishSink(mqttPublisher{client: client, qos: 1}, prefix, "/", "mqtt", clock, log)
}
