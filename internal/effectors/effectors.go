package effectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"autoflow/internal/blockpolicy"
	"autoflow/internal/models"

	"go.uber.org/zap"
)

// ErrNotPermitted is returned when the device has not granted what an action needs
var ErrNotPermitted = errors.New("permission not granted")

// Effectors performs the side effects of actions on the device
type Effectors interface {
	Permitted(actionType string) bool
	Notify(ctx context.Context, title, message, priority string) error
	SetSoundMode(ctx context.Context, mode string) error
	SetWiFi(ctx context.Context, enabled bool) error
	SetBluetooth(ctx context.Context, enabled bool) error
	BlockApps(ctx context.Context, packages []string, duration *time.Duration) error
	UnblockApps(ctx context.Context) error
	RunScript(ctx context.Context, content string) error
	SetBrightness(ctx context.Context, level int) error
	SetVolume(ctx context.Context, level int) error
}

// Publisher publishes a raw MQTT payload
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Command is the payload sent to the device agent
type Command struct {
	Command  string         `json:"command"`
	Params   map[string]any `json:"params,omitempty"`
	IssuedAt time.Time      `json:"issuedAt"`
}

// Device drives a device agent over MQTT
type Device struct {
	pub       Publisher
	agentID   string
	blocks    *blockpolicy.Store
	scripts   *ScriptRunner
	permitted map[string]bool // nil allows everything
	soundMode atomic.Value    // last mode sent, a string
	logger    *zap.Logger
}

// NewDevice creates a Device. permitted lists the action types the agent has
// granted; an empty list grants all.
func NewDevice(pub Publisher, agentID string, blocks *blockpolicy.Store, scriptTimeout time.Duration, permitted []string, logger *zap.Logger) *Device {
	d := &Device{pub: pub, agentID: agentID, blocks: blocks, logger: logger}
	if len(permitted) > 0 {
		d.permitted = make(map[string]bool, len(permitted))
		for _, p := range permitted {
			d.permitted[p] = true
		}
	}
	d.scripts = NewScriptRunner(scriptTimeout, d.Notify, logger)
	return d
}

// CommandTopic is the topic a command is published on
func (d *Device) CommandTopic(command string) string {
	return fmt.Sprintf("autoflow/%s/commands/%s", d.agentID, command)
}

func (d *Device) send(ctx context.Context, command string, params map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(Command{Command: command, Params: params, IssuedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode %s command: %w", command, err)
	}
	if err := d.pub.Publish(d.CommandTopic(command), 1, false, payload); err != nil {
		return fmt.Errorf("send %s command: %w", command, err)
	}
	d.logger.Debug("command sent", zap.String("command", command))
	return nil
}

// Permitted reports whether actionType may run
func (d *Device) Permitted(actionType string) bool {
	return d.permitted == nil || d.permitted[actionType]
}

// Notify posts a notification
func (d *Device) Notify(ctx context.Context, title, message, priority string) error {
	if priority == "" {
		priority = models.PriorityNormal
	}
	return d.send(ctx, "notify", map[string]any{"title": title, "message": message, "priority": priority})
}

// SetSoundMode switches the ringer mode
func (d *Device) SetSoundMode(ctx context.Context, mode string) error {
	if err := d.send(ctx, "sound_mode", map[string]any{"mode": mode}); err != nil {
		return err
	}
	d.soundMode.Store(mode)
	return nil
}

// SoundMode returns the ringer mode last sent, or "" before any
func (d *Device) SoundMode() string {
	mode, _ := d.soundMode.Load().(string)
	return mode
}

// SendSMS texts number through the agent
func (d *Device) SendSMS(ctx context.Context, number, message string) error {
	return d.send(ctx, "sms", map[string]any{"number": number, "message": message})
}

// SetWiFi toggles WiFi
func (d *Device) SetWiFi(ctx context.Context, enabled bool) error {
	return d.send(ctx, "wifi", map[string]any{"enabled": enabled})
}

// SetBluetooth toggles Bluetooth
func (d *Device) SetBluetooth(ctx context.Context, enabled bool) error {
	return d.send(ctx, "bluetooth", map[string]any{"enabled": enabled})
}

// SetBrightness sets screen brightness
func (d *Device) SetBrightness(ctx context.Context, level int) error {
	return d.send(ctx, "brightness", map[string]any{"level": level})
}

// SetVolume sets media volume
func (d *Device) SetVolume(ctx context.Context, level int) error {
	return d.send(ctx, "volume", map[string]any{"level": level})
}

// BlockApps activates the block-list
func (d *Device) BlockApps(ctx context.Context, packages []string, duration *time.Duration) error {
	return d.blocks.Block(ctx, packages, duration)
}

// UnblockApps clears the block-list
func (d *Device) UnblockApps(ctx context.Context) error {
	return d.blocks.Unblock(ctx)
}

// RunScript runs a user script in the sandbox
func (d *Device) RunScript(ctx context.Context, content string) error {
	return d.scripts.Run(ctx, content)
}

// ShowBlockScreen asks the agent to cover a blocked app
func (d *Device) ShowBlockScreen(ctx context.Context, pkg string) {
	if err := d.send(ctx, "block_screen", map[string]any{"package": pkg}); err != nil {
		d.logger.Warn("block screen command failed", zap.String("package", pkg), zap.Error(err))
	}
}
