package effectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoForeground is returned before the agent has reported a foreground app
var ErrNoForeground = errors.New("no foreground app reported")

type foregroundReport struct {
	Package string `json:"package"`
}

// ForegroundMonitor caches the foreground app the agent reports on
// autoflow/<agent>/foreground. Reports older than maxAge are ignored.
type ForegroundMonitor struct {
	mu      sync.RWMutex
	pkg     string
	seen    time.Time
	maxAge  time.Duration
	clock   func() time.Time
	agentID string
}

// NewForegroundMonitor creates a monitor; call Subscribe to start receiving reports
func NewForegroundMonitor(agentID string, maxAge time.Duration) *ForegroundMonitor {
	return &ForegroundMonitor{agentID: agentID, maxAge: maxAge, clock: time.Now}
}

// Topic is the topic foreground reports arrive on
func (m *ForegroundMonitor) Topic() string {
	return fmt.Sprintf("autoflow/%s/foreground", m.agentID)
}

// Subscribe starts listening for reports
func (m *ForegroundMonitor) Subscribe(client Subscriber) error {
	return client.Subscribe(m.Topic(), 0, m.handle)
}

func (m *ForegroundMonitor) handle(_ string, payload []byte) {
	var r foregroundReport
	if err := json.Unmarshal(payload, &r); err != nil {
		return
	}
	m.mu.Lock()
	m.pkg = r.Package
	m.seen = m.clock()
	m.mu.Unlock()
}

// ForegroundApp returns the last reported package
func (m *ForegroundMonitor) ForegroundApp(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.seen.IsZero() || (m.maxAge > 0 && m.clock().Sub(m.seen) > m.maxAge) {
		return "", ErrNoForeground
	}
	return m.pkg, nil
}
