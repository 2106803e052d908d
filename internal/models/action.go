package models

import "time"

// Action type tags as they appear in stored action lists
const (
	ActionNotification    = "NOTIFICATION"
	ActionSoundMode       = "SET_SOUND_MODE"
	ActionWiFiToggle      = "TOGGLE_WIFI"
	ActionBluetoothToggle = "TOGGLE_BLUETOOTH"
	ActionBlockApps       = "BLOCK_APPS"
	ActionUnblockApps     = "UNBLOCK_APPS"
	ActionRunScript       = "RUN_SCRIPT"
	ActionBrightness      = "SET_BRIGHTNESS"
	ActionVolume          = "SET_VOLUME"
)

// Sound modes
const (
	SoundNormal  = "Normal"
	SoundVibrate = "Vibrate"
	SoundSilent  = "Silent"
	SoundDND     = "DND"
)

// Notification priorities
const (
	PriorityLow    = "Low"
	PriorityNormal = "Normal"
	PriorityHigh   = "High"
	PriorityUrgent = "Urgent"
)

// Action is one side effect performed when a workflow fires
type Action interface {
	Type() string
	isAction()
}

// NotificationAction posts a notification
type NotificationAction struct {
	Title    string
	Message  string
	Priority string
}

// SoundModeAction switches the ringer mode
type SoundModeAction struct {
	Mode string
}

// WiFiToggleAction turns WiFi on or off
type WiFiToggleAction struct {
	Enabled bool
}

// BluetoothToggleAction turns Bluetooth on or off
type BluetoothToggleAction struct {
	Enabled bool
}

// BlockAppsAction activates the block-list for the given packages.
// A nil Duration blocks until explicitly unblocked.
type BlockAppsAction struct {
	Packages []string
	Duration *time.Duration
}

// UnblockAppsAction clears the block-list
type UnblockAppsAction struct{}

// RunScriptAction runs a user script in the sandbox
type RunScriptAction struct {
	Content string
}

// BrightnessAction sets screen brightness (0-100)
type BrightnessAction struct {
	Level int
}

// VolumeAction sets media volume (0-100)
type VolumeAction struct {
	Level int
}

func (NotificationAction) Type() string    { return ActionNotification }
func (SoundModeAction) Type() string       { return ActionSoundMode }
func (WiFiToggleAction) Type() string      { return ActionWiFiToggle }
func (BluetoothToggleAction) Type() string { return ActionBluetoothToggle }
func (BlockAppsAction) Type() string       { return ActionBlockApps }
func (UnblockAppsAction) Type() string     { return ActionUnblockApps }
func (RunScriptAction) Type() string       { return ActionRunScript }
func (BrightnessAction) Type() string      { return ActionBrightness }
func (VolumeAction) Type() string          { return ActionVolume }

func (NotificationAction) isAction()    {}
func (SoundModeAction) isAction()       {}
func (WiFiToggleAction) isAction()      {}
func (BluetoothToggleAction) isAction() {}
func (BlockAppsAction) isAction()       {}
func (UnblockAppsAction) isAction()     {}
func (RunScriptAction) isAction()       {}
func (BrightnessAction) isAction()      {}
func (VolumeAction) isAction()          {}
