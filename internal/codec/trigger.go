package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"autoflow/internal/models"
)

// Wire structs keep a fixed field order so encoding is byte-stable.

type locationWire struct {
	Type           string  `json:"type"`
	LocationName   string  `json:"locationName"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Radius         float64 `json:"radius"`
	TriggerOnEntry bool    `json:"triggerOnEntry"`
	TriggerOnExit  bool    `json:"triggerOnExit"`
	TriggerOn      string  `json:"triggerOn,omitempty"`
}

type wifiWire struct {
	Type  string  `json:"type"`
	SSID  *string `json:"ssid,omitempty"`
	State string  `json:"state"`
}

type bluetoothWire struct {
	Type          string  `json:"type"`
	DeviceAddress string  `json:"deviceAddress"`
	DeviceName    *string `json:"deviceName,omitempty"`
}

// Days is a pointer so an unset list (any day) and an explicit empty one both
// survive a round trip.
type timeWire struct {
	Type string    `json:"type"`
	Time string    `json:"time"`
	Days *[]string `json:"days,omitempty"`
}

type timeRangeWire struct {
	Type      string   `json:"type"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
	Days      *[]string `json:"days,omitempty"`
}

type batteryWire struct {
	Type      string `json:"type"`
	Level     int    `json:"level"`
	Condition string `json:"condition"`
}

type manualWire struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type typeTag struct {
	Type string `json:"type"`
}

// EncodeTrigger serialises one trigger to its tagged wire object
func EncodeTrigger(t models.Trigger) ([]byte, error) {
	switch tr := t.(type) {
	case models.LocationTrigger:
		return json.Marshal(locationWire{
			Type:           models.TriggerLocation,
			LocationName:   tr.LocationName,
			Latitude:       tr.Latitude,
			Longitude:      tr.Longitude,
			Radius:         tr.Radius,
			TriggerOnEntry: tr.TriggerOnEntry,
			TriggerOnExit:  tr.TriggerOnExit,
			TriggerOn:      tr.Mode(),
		})
	case models.WiFiTrigger:
		return json.Marshal(wifiWire{Type: models.TriggerWiFi, SSID: tr.SSID, State: tr.State})
	case models.BluetoothTrigger:
		return json.Marshal(bluetoothWire{Type: models.TriggerBluetooth, DeviceAddress: tr.DeviceAddress, DeviceName: tr.DeviceName})
	case models.TimeTrigger:
		return json.Marshal(timeWire{Type: models.TriggerTime, Time: tr.Time, Days: listPtr(tr.Days)})
	case models.TimeRangeTrigger:
		return json.Marshal(timeRangeWire{Type: models.TriggerTimeRange, StartTime: tr.StartTime, EndTime: tr.EndTime, Days: listPtr(tr.Days)})
	case models.BatteryTrigger:
		return json.Marshal(batteryWire{Type: models.TriggerBattery, Level: tr.Level, Condition: tr.Condition})
	case models.ManualTrigger:
		return json.Marshal(manualWire{Type: models.TriggerManual, Value: tr.Value})
	case nil:
		return nil, fmt.Errorf("encode trigger: nil trigger")
	default:
		return nil, fmt.Errorf("encode trigger %T: %w", t, ErrUnknownVariant)
	}
}

// DecodeTrigger parses one tagged wire object. Missing optional fields take
// their documented defaults.
func DecodeTrigger(raw []byte) (models.Trigger, error) {
	var tag typeTag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, &DecodeError{Index: -1, Err: err}
	}
	t, err := decodeTrigger(tag.Type, raw)
	if err != nil {
		return nil, &DecodeError{Index: -1, Type: tag.Type, Err: err}
	}
	return t, nil
}

func decodeTrigger(typ string, raw []byte) (models.Trigger, error) {
	switch typ {
	case models.TriggerLocation:
		w := locationWire{LocationName: "Unknown", Radius: 100, TriggerOnEntry: true}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		// the label wins over the flags so both always agree
		if onEntry, onExit, ok := models.TransitionFlags(w.TriggerOn); ok {
			w.TriggerOnEntry, w.TriggerOnExit = onEntry, onExit
		}
		return models.LocationTrigger{
			LocationName:   w.LocationName,
			Latitude:       w.Latitude,
			Longitude:      w.Longitude,
			Radius:         w.Radius,
			TriggerOnEntry: w.TriggerOnEntry,
			TriggerOnExit:  w.TriggerOnExit,
		}, nil
	case models.TriggerWiFi:
		w := wifiWire{State: models.WiFiConnected}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return models.WiFiTrigger{SSID: w.SSID, State: w.State}, nil
	case models.TriggerBluetooth:
		var w bluetoothWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return models.BluetoothTrigger{DeviceAddress: w.DeviceAddress, DeviceName: w.DeviceName}, nil
	case models.TriggerTime:
		var w timeWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return models.TimeTrigger{Time: w.Time, Days: listVal(w.Days)}, nil
	case models.TriggerTimeRange:
		w := timeRangeWire{StartTime: "22:00", EndTime: "07:00"}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return models.TimeRangeTrigger{StartTime: w.StartTime, EndTime: w.EndTime, Days: listVal(w.Days)}, nil
	case models.TriggerBattery:
		w := batteryWire{Level: 50, Condition: models.BatteryBelow}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return models.BatteryTrigger{Level: w.Level, Condition: w.Condition}, nil
	case models.TriggerManual:
		w := manualWire{Value: "quick_action"}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return models.ManualTrigger{Value: w.Value}, nil
	default:
		return nil, ErrUnknownVariant
	}
}

// EncodeTriggers serialises a trigger list as a JSON array
func EncodeTriggers(ts []models.Trigger) ([]byte, error) {
	items := make([]json.RawMessage, 0, len(ts))
	for i, t := range ts {
		b, err := EncodeTrigger(t)
		if err != nil {
			return nil, fmt.Errorf("trigger %d: %w", i, err)
		}
		items = append(items, b)
	}
	return json.Marshal(items)
}

// DecodeTriggers parses a stored trigger array. Entries that fail to decode are
// skipped and reported; the returned error is set only when the array itself
// is unreadable.
func DecodeTriggers(raw []byte) ([]models.Trigger, []*DecodeError, error) {
	items, err := splitArray(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode trigger list: %w", err)
	}
	var (
		out  []models.Trigger
		errs []*DecodeError
	)
	for i, item := range items {
		var tag typeTag
		if err := json.Unmarshal(item, &tag); err != nil {
			errs = append(errs, &DecodeError{Index: i, Err: err})
			continue
		}
		t, err := decodeTrigger(tag.Type, item)
		if err != nil {
			errs = append(errs, &DecodeError{Index: i, Type: tag.Type, Err: err})
			continue
		}
		out = append(out, t)
	}
	return out, errs, nil
}

func splitArray(raw []byte) ([]json.RawMessage, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func listPtr(l []string) *[]string {
	if l == nil {
		return nil
	}
	return &l
}

func listVal(p *[]string) []string {
	if p == nil {
		return nil
	}
	return *p
}
