package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const waitTimeout = 10 * time.Second

// Client wraps a paho client with error-returning publish and subscribe
type Client struct {
	client MQTT.Client
	logger *zap.Logger
}

// NewClient connects to the broker
func NewClient(broker, clientID string, logger *zap.Logger) (*Client, error) {
	opts := MQTT.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ MQTT.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})

	c := MQTT.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, token.Error())
	}
	logger.Info("mqtt connected", zap.String("broker", broker), zap.String("client_id", clientID))
	return &Client{client: c, logger: logger}, nil
}

// Publish sends a raw payload
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(waitTimeout) {
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishJSON marshals v and publishes it with QoS 1
func (c *Client) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	return c.Publish(topic, 1, false, payload)
}

// Subscribe registers handler for topic. The handler runs on paho's router goroutine.
func (c *Client) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	token := c.client.Subscribe(topic, qos, func(_ MQTT.Client, msg MQTT.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(waitTimeout) {
		return fmt.Errorf("subscribe to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	c.logger.Debug("mqtt subscribed", zap.String("topic", topic))
	return nil
}

// Unsubscribe removes subscriptions
func (c *Client) Unsubscribe(topics ...string) error {
	token := c.client.Unsubscribe(topics...)
	if !token.WaitTimeout(waitTimeout) {
		return fmt.Errorf("unsubscribe from %s: timed out", strings.Join(topics, ","))
	}
	return token.Error()
}

// Disconnect waits up to 250ms for in-flight work
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

// Topic joins topic levels with "/"
func Topic(levels ...string) string {
	return strings.Join(levels, "/")
}

// LastLevel returns the final level of a topic
func LastLevel(topic string) string {
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
