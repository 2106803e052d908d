package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"autoflow/internal/models"
)

type notificationWire struct {
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Message  string `json:"message,omitempty"`
	Priority string `json:"priority"`
}

type soundModeWire struct {
	Type string `json:"type"`
	Mode string `json:"mode"`
}

type toggleWire struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

type blockAppsWire struct {
	Type       string   `json:"type"`
	Packages   *[]string `json:"packages,omitempty"`
	DurationMs *int64    `json:"durationMs,omitempty"`
}

type scriptWire struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type levelWire struct {
	Type  string `json:"type"`
	Level int    `json:"level"`
}

// EncodeAction serialises one action to its tagged wire object
func EncodeAction(a models.Action) ([]byte, error) {
	switch ac := a.(type) {
	case models.NotificationAction:
		return json.Marshal(notificationWire{Type: models.ActionNotification, Title: ac.Title, Message: ac.Message, Priority: ac.Priority})
	case models.SoundModeAction:
		return json.Marshal(soundModeWire{Type: models.ActionSoundMode, Mode: ac.Mode})
	case models.WiFiToggleAction:
		return json.Marshal(toggleWire{Type: models.ActionWiFiToggle, Enabled: ac.Enabled})
	case models.BluetoothToggleAction:
		return json.Marshal(toggleWire{Type: models.ActionBluetoothToggle, Enabled: ac.Enabled})
	case models.BlockAppsAction:
		w := blockAppsWire{Type: models.ActionBlockApps, Packages: listPtr(ac.Packages)}
		if ac.Duration != nil {
			ms := ac.Duration.Milliseconds()
			w.DurationMs = &ms
		}
		return json.Marshal(w)
	case models.UnblockAppsAction:
		return json.Marshal(typeTag{Type: models.ActionUnblockApps})
	case models.RunScriptAction:
		return json.Marshal(scriptWire{Type: models.ActionRunScript, Content: ac.Content})
	case models.BrightnessAction:
		return json.Marshal(levelWire{Type: models.ActionBrightness, Level: ac.Level})
	case models.VolumeAction:
		return json.Marshal(levelWire{Type: models.ActionVolume, Level: ac.Level})
	case nil:
		return nil, fmt.Errorf("encode action: nil action")
	default:
		return nil, fmt.Errorf("encode action %T: %w", a, ErrUnknownVariant)
	}
}

// DecodeAction parses one tagged action object
func DecodeAction(raw []byte) (models.Action, error) {
	var tag typeTag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, &DecodeError{Index: -1, Err: err}
	}
	a, err := decodeAction(tag.Type, raw)
	if err != nil {
		return nil, &DecodeError{Index: -1, Type: tag.Type, Err: err}
	}
	return a, nil
}

func decodeAction(typ string, raw []byte) (models.Action, error) {
	switch typ {
	case models.ActionNotification:
		w := notificationWire{Priority: models.PriorityNormal}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return models.NotificationAction{Title: w.Title, Message: w.Message, Priority: w.Priority}, nil
	case models.ActionSoundMode:
		w := soundModeWire{Mode: models.SoundNormal}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return models.SoundModeAction{Mode: w.Mode}, nil
	case models.ActionWiFiToggle, models.ActionBluetoothToggle:
		var w toggleWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		if typ == models.ActionWiFiToggle {
			return models.WiFiToggleAction{Enabled: w.Enabled}, nil
		}
		return models.BluetoothToggleAction{Enabled: w.Enabled}, nil
	case models.ActionBlockApps:
		var w blockAppsWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		a := models.BlockAppsAction{Packages: listVal(w.Packages)}
		if w.DurationMs != nil {
			d := time.Duration(*w.DurationMs) * time.Millisecond
			a.Duration = &d
		}
		return a, nil
	case models.ActionUnblockApps:
		return models.UnblockAppsAction{}, nil
	case models.ActionRunScript:
		var w scriptWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return models.RunScriptAction{Content: w.Content}, nil
	case models.ActionBrightness, models.ActionVolume:
		var w levelWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		if typ == models.ActionBrightness {
			return models.BrightnessAction{Level: w.Level}, nil
		}
		return models.VolumeAction{Level: w.Level}, nil
	default:
		return nil, ErrUnknownVariant
	}
}

// EncodeActions serialises an action list as a JSON array
func EncodeActions(as []models.Action) ([]byte, error) {
	items := make([]json.RawMessage, 0, len(as))
	for i, a := range as {
		b, err := EncodeAction(a)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		items = append(items, b)
	}
	return json.Marshal(items)
}

// DecodeActions parses a stored action array, skipping and reporting bad entries
func DecodeActions(raw []byte) ([]models.Action, []*DecodeError, error) {
	items, err := splitArray(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode action list: %w", err)
	}
	var (
		out  []models.Action
		errs []*DecodeError
	)
	for i, item := range items {
		var tag typeTag
		if err := json.Unmarshal(item, &tag); err != nil {
			errs = append(errs, &DecodeError{Index: i, Err: err})
			continue
		}
		a, err := decodeAction(tag.Type, item)
		if err != nil {
			errs = append(errs, &DecodeError{Index: i, Type: tag.Type, Err: err})
			continue
		}
		out = append(out, a)
	}
	return out, errs, nil
}
