package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"autoflow/internal/models"
	"autoflow/internal/mqtt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventTopic is the MQTT filter event sources publish under; the last level
// names the event kind
const EventTopic = "autoflow/events/+"

var errNoKind = errors.New("event has no kind")

// EventSubscriber is the MQTT surface the engine listens on
type EventSubscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
}

// NormalizeEvent upper-cases kinds and states and fills in id and receipt time
func NormalizeEvent(ev models.Event, now time.Time) (models.Event, error) {
	ev.Kind = strings.ToUpper(strings.TrimSpace(ev.Kind))
	if ev.Kind == "" {
		return ev, errNoKind
	}
	ev.Transition = strings.ToUpper(ev.Transition)
	if state, ok := ev.Fields[models.FieldState]; ok {
		fields := make(map[string]string, len(ev.Fields))
		for k, v := range ev.Fields {
			fields[k] = v
		}
		fields[models.FieldState] = strings.ToUpper(state)
		ev.Fields = fields
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = now
	}
	return ev, nil
}

// DecodeEvent parses an event published on topic. The topic's last level
// takes precedence over a kind in the payload.
func DecodeEvent(topic string, payload []byte, now time.Time) (models.Event, error) {
	var ev models.Event
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &ev); err != nil {
			return ev, fmt.Errorf("decode event on %s: %w", topic, err)
		}
	}
	if kind := mqtt.LastLevel(topic); kind != "" && kind != "+" && kind != "#" {
		ev.Kind = kind
	}
	return NormalizeEvent(ev, now)
}

// SubscribeEvents feeds events published over MQTT into the queue
func (e *Engine) SubscribeEvents(sub EventSubscriber) error {
	return sub.Subscribe(EventTopic, 1, func(topic string, payload []byte) {
		ev, err := DecodeEvent(topic, payload, e.clock())
		if err != nil {
			e.logger.Warn("discarding malformed event", zap.String("topic", topic), zap.Error(err))
			return
		}
		if err := e.Submit(ev); err != nil {
			e.logger.Warn("event not queued", zap.String("event_id", ev.ID), zap.Error(err))
		}
	})
}
