package models

import "time"

// Event kinds
const (
	EventLocation  = "LOCATION"
	EventWiFi      = "WIFI"
	EventBluetooth = "BLUETOOTH"
	EventTime      = "TIME"
	EventBattery   = "BATTERY"
	EventCall      = "CALL"
)

// KnownEventKind reports whether kind is one the engine understands
func KnownEventKind(kind string) bool {
	switch kind {
	case EventLocation, EventWiFi, EventBluetooth, EventTime, EventBattery, EventCall:
		return true
	}
	return false
}

// Call states reported with a CALL event
const (
	CallRinging = "RINGING"
	CallOffhook = "OFFHOOK"
	CallMissed  = "MISSED"
	CallEnded   = "ENDED"
)

// Location transitions
const (
	TransitionEnter = "ENTER"
	TransitionExit  = "EXIT"
)

// Event field keys
const (
	FieldState   = "state"
	FieldSSID    = "ssid"
	FieldAddress = "address"
	FieldName    = "name"
	FieldNumber  = "number"
	FieldDND     = "dnd" // "true" when the device reports do-not-disturb
)

// Event is a normalised notification from an event source
type Event struct {
	ID         string            `json:"id,omitempty"`
	Kind       string            `json:"kind"`
	Fields     map[string]string `json:"fields,omitempty"`
	Transition string            `json:"transition,omitempty"`
	RegionID   string            `json:"regionId,omitempty"`
	Target     time.Time         `json:"target,omitempty"`
	Level      *int              `json:"level,omitempty"`
	WorkflowID string            `json:"workflowId,omitempty"` // restricts evaluation to one workflow
	ReceivedAt time.Time         `json:"receivedAt,omitempty"`
}

// Field returns a field value or "" when absent
func (e Event) Field(key string) string {
	if e.Fields == nil {
		return ""
	}
	return e.Fields[key]
}
