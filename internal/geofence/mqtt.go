package geofence

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher publishes a raw MQTT payload
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTWatchProvider asks the device agent to add and remove platform geofences
type MQTTWatchProvider struct {
	pub     Publisher
	agentID string
}

// NewMQTTWatchProvider creates a provider publishing under autoflow/<agentID>/geofences
func NewMQTTWatchProvider(pub Publisher, agentID string) *MQTTWatchProvider {
	return &MQTTWatchProvider{pub: pub, agentID: agentID}
}

type watchCommand struct {
	RequestID string  `json:"requestId"`
	Region    *Region `json:"region,omitempty"`
}

func (p *MQTTWatchProvider) topic(op string) string {
	return fmt.Sprintf("autoflow/%s/geofences/%s", p.agentID, op)
}

// AddWatch publishes an add command
func (p *MQTTWatchProvider) AddWatch(ctx context.Context, requestID string, r Region) error {
	return p.send(ctx, "add", watchCommand{RequestID: requestID, Region: &r})
}

// RemoveWatch publishes a remove command
func (p *MQTTWatchProvider) RemoveWatch(ctx context.Context, requestID string) error {
	return p.send(ctx, "remove", watchCommand{RequestID: requestID})
}

func (p *MQTTWatchProvider) send(ctx context.Context, op string, cmd watchCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return p.pub.Publish(p.topic(op), 1, false, payload)
}
