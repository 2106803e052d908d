package effectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subscriber is the MQTT surface the scanner and monitor need
type Subscriber interface {
	Publisher
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topics ...string) error
}

type scanRequest struct {
	RequestID string    `json:"requestId"`
	Address   string    `json:"address"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// scanResult may omit requestId; it is then routed by address alone
type scanResult struct {
	RequestID string `json:"requestId,omitempty"`
	Address   string `json:"address"`
	Found     bool   `json:"found"`
}

type scanWaiter struct {
	address string
	result  chan bool
}

// MQTTScanner asks the device agent to scan for a BLE device. One
// subscription on the result topic serves every in-flight scan.
type MQTTScanner struct {
	client  Subscriber
	agentID string
	logger  *zap.Logger

	mu         sync.Mutex
	subscribed bool
	waiters    map[string]*scanWaiter // by request id
}

// NewMQTTScanner creates a scanner
func NewMQTTScanner(client Subscriber, agentID string, logger *zap.Logger) *MQTTScanner {
	return &MQTTScanner{
		client:  client,
		agentID: agentID,
		logger:  logger,
		waiters: make(map[string]*scanWaiter),
	}
}

func (s *MQTTScanner) resultTopic() string {
	return fmt.Sprintf("autoflow/%s/scan/result", s.agentID)
}

func (s *MQTTScanner) subscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed {
		return nil
	}
	if err := s.client.Subscribe(s.resultTopic(), 1, s.dispatch); err != nil {
		return err
	}
	s.subscribed = true
	return nil
}

func (s *MQTTScanner) dispatch(_ string, payload []byte) {
	var res scanResult
	if err := json.Unmarshal(payload, &res); err != nil {
		s.logger.Debug("ignoring malformed scan result", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.waiters {
		if res.RequestID != "" && res.RequestID != id {
			continue
		}
		if !strings.EqualFold(res.Address, w.address) {
			continue
		}
		select {
		case w.result <- res.Found:
		default:
		}
	}
}

// Scan requests a scan for address and waits for the agent's answer or ctx.
// The caller bounds the wait with a deadline on ctx.
func (s *MQTTScanner) Scan(ctx context.Context, address string) (bool, error) {
	if err := s.subscribe(); err != nil {
		return false, err
	}

	id := uuid.NewString()
	w := &scanWaiter{address: address, result: make(chan bool, 1)}
	s.mu.Lock()
	s.waiters[id] = w
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.waiters, id)
		s.mu.Unlock()
	}()

	payload, err := json.Marshal(scanRequest{RequestID: id, Address: address, IssuedAt: time.Now().UTC()})
	if err != nil {
		return false, err
	}
	requestTopic := fmt.Sprintf("autoflow/%s/scan/request", s.agentID)
	if err := s.client.Publish(requestTopic, 1, false, payload); err != nil {
		return false, err
	}

	select {
	case found := <-w.result:
		return found, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close drops the result subscription
func (s *MQTTScanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.subscribed {
		return nil
	}
	s.subscribed = false
	return s.client.Unsubscribe(s.resultTopic())
}
