package models

import "strings"

// Trigger type tags as they appear in stored trigger lists
const (
	TriggerLocation  = "LOCATION"
	TriggerWiFi      = "WIFI"
	TriggerBluetooth = "BLUETOOTH"
	TriggerTime      = "TIME"
	TriggerTimeRange = "TIME_RANGE"
	TriggerBattery   = "BATTERY"
	TriggerManual    = "MANUAL"
)

// WiFi states
const (
	WiFiOn           = "ON"
	WiFiOff          = "OFF"
	WiFiConnected    = "CONNECTED"
	WiFiDisconnected = "DISCONNECTED"
)

// Battery conditions
const (
	BatteryAbove  = "above"
	BatteryBelow  = "below"
	BatteryEquals = "equals"
)

// Location transition modes
const (
	TransitionModeEnter = "enter"
	TransitionModeExit  = "exit"
	TransitionModeBoth  = "both"
)

// Trigger is a single condition that can make a workflow fire.
// The set of implementations is closed; callers switch on the concrete type.
type Trigger interface {
	Type() string
	// EventKind is the event kind this trigger reacts to. Manual triggers return "".
	EventKind() string
	isTrigger()
}

// LocationTrigger fires when the device enters or leaves a circular region
type LocationTrigger struct {
	LocationName   string
	Latitude       float64
	Longitude      float64
	Radius         float64 // metres
	TriggerOnEntry bool
	TriggerOnExit  bool

	// RegionID is bound from the owning workflow at load time and never stored.
	RegionID string
}

// WiFiTrigger fires on a WiFi state change, optionally for one network
type WiFiTrigger struct {
	SSID  *string
	State string
}

// BluetoothTrigger fires when a matching device is seen or connects
type BluetoothTrigger struct {
	DeviceAddress string
	DeviceName    *string
}

// TimeTrigger fires at HH:MM on the given weekdays (every day when empty)
type TimeTrigger struct {
	Time string
	Days []string
}

// TimeRangeTrigger is satisfied while local time is inside [StartTime, EndTime)
type TimeRangeTrigger struct {
	StartTime string
	EndTime   string
	Days      []string
}

// BatteryTrigger compares the battery level against a threshold
type BatteryTrigger struct {
	Level     int
	Condition string
}

// ManualTrigger is only satisfied by an explicit run request
type ManualTrigger struct {
	Value string
}

func (LocationTrigger) Type() string  { return TriggerLocation }
func (WiFiTrigger) Type() string      { return TriggerWiFi }
func (BluetoothTrigger) Type() string { return TriggerBluetooth }
func (TimeTrigger) Type() string      { return TriggerTime }
func (TimeRangeTrigger) Type() string { return TriggerTimeRange }
func (BatteryTrigger) Type() string   { return TriggerBattery }
func (ManualTrigger) Type() string    { return TriggerManual }

func (LocationTrigger) EventKind() string  { return EventLocation }
func (WiFiTrigger) EventKind() string      { return EventWiFi }
func (BluetoothTrigger) EventKind() string { return EventBluetooth }
func (TimeTrigger) EventKind() string      { return EventTime }
func (TimeRangeTrigger) EventKind() string { return EventTime }
func (BatteryTrigger) EventKind() string   { return EventBattery }
func (ManualTrigger) EventKind() string    { return "" }

func (LocationTrigger) isTrigger()  {}
func (WiFiTrigger) isTrigger()      {}
func (BluetoothTrigger) isTrigger() {}
func (TimeTrigger) isTrigger()      {}
func (TimeRangeTrigger) isTrigger() {}
func (BatteryTrigger) isTrigger()   {}
func (ManualTrigger) isTrigger()    {}

// TransitionMode derives the enter/exit/both label from the two flags; it is
// empty when neither is set
func TransitionMode(onEntry, onExit bool) string {
	switch {
	case onEntry && onExit:
		return TransitionModeBoth
	case onExit:
		return TransitionModeExit
	case onEntry:
		return TransitionModeEnter
	}
	return ""
}

// TransitionFlags is the inverse of TransitionMode. ok is false for an
// unknown label.
func TransitionFlags(mode string) (onEntry, onExit, ok bool) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case TransitionModeBoth:
		return true, true, true
	case TransitionModeEnter:
		return true, false, true
	case TransitionModeExit:
		return false, true, true
	}
	return false, false, false
}

// Mode is the stored triggerOn label, always derived from the flags
func (t LocationTrigger) Mode() string {
	return TransitionMode(t.TriggerOnEntry, t.TriggerOnExit)
}

// Comparison normalises Condition, accepting the operator spellings <, > and ==
func (t BatteryTrigger) Comparison() string {
	switch strings.ToLower(strings.TrimSpace(t.Condition)) {
	case "<", BatteryBelow:
		return BatteryBelow
	case ">", BatteryAbove:
		return BatteryAbove
	case "=", "==", BatteryEquals:
		return BatteryEquals
	}
	return t.Condition
}
