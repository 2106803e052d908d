package validation

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"autoflow/internal/models"
)

type locationValue struct {
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Radius      *float64 `json:"radius"`
	Coordinates string   `json:"coordinates"`
}

type wifiValue struct {
	SSID  *string `json:"ssid"`
	State string  `json:"state"`
}

type bluetoothValue struct {
	DeviceAddress string  `json:"deviceAddress"`
	DeviceName    *string `json:"deviceName"`
}

// ValidateTriggerValue checks the textual value a trigger was built from, as
// submitted by clients that send a type tag plus a raw value string.
func (v *Validator) ValidateTriggerValue(triggerType, value string, now time.Time) error {
	value = strings.TrimSpace(value)
	switch triggerType {
	case models.TriggerTime:
		return v.timeValue(value, now)
	case models.TriggerLocation:
		return v.locationValue(value)
	case models.TriggerWiFi:
		return v.wifiValue(value)
	case models.TriggerBluetooth:
		return v.bluetoothValue(value)
	case models.TriggerBattery:
		level, err := strconv.Atoi(value)
		if err != nil {
			return invalid("value", "battery level must be an integer")
		}
		return v.check("value", level, "gte=0,lte=100")
	case models.TriggerManual, models.TriggerTimeRange:
		return nil
	default:
		return invalid("type", "unknown trigger type %q", triggerType)
	}
}

func (v *Validator) timeValue(value string, now time.Time) error {
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return invalid("value", "time must be a millisecond timestamp")
	}
	// bounds are computed from now so a far-off ts cannot overflow
	nowMs, limit := now.UnixMilli(), v.limits.MaxHorizon.Milliseconds()
	if ts < nowMs-limit || ts > nowMs+limit {
		return invalid("value", "time must be within %s of now", v.limits.MaxHorizon)
	}
	return nil
}

func (v *Validator) locationValue(value string) error {
	if coordinatesPattern.MatchString(value) {
		return v.coordinateText(value)
	}

	var loc locationValue
	if err := json.Unmarshal([]byte(value), &loc); err != nil {
		return invalid("value", "location must be lat,lon[,radius] or a JSON object")
	}
	if loc.Latitude == nil || loc.Longitude == nil {
		if loc.Coordinates != "" && coordinatesPattern.MatchString(loc.Coordinates) {
			return v.coordinateText(loc.Coordinates)
		}
		return invalid("value", "location requires latitude and longitude")
	}
	if err := v.checkCoordinates(*loc.Latitude, *loc.Longitude); err != nil {
		return err
	}
	if loc.Radius != nil {
		return v.checkRadius(*loc.Radius)
	}
	return nil
}

func (v *Validator) coordinateText(value string) error {
	parts := strings.Split(value, ",")
	nums := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return invalid("value", "invalid coordinate %q", p)
		}
		nums[i] = f
	}
	if err := v.checkCoordinates(nums[0], nums[1]); err != nil {
		return err
	}
	if len(nums) == 3 {
		return v.checkRadius(nums[2])
	}
	return nil
}

func isWiFiState(s string) bool {
	switch strings.ToUpper(s) {
	case models.WiFiOn, models.WiFiOff, models.WiFiConnected, models.WiFiDisconnected:
		return true
	}
	return false
}

func (v *Validator) wifiValue(value string) error {
	if strings.HasPrefix(value, "{") {
		var w wifiValue
		if err := json.Unmarshal([]byte(value), &w); err != nil {
			return invalid("value", "invalid WiFi JSON")
		}
		if w.State != "" && !isWiFiState(w.State) {
			return invalid("state", "unknown WiFi state %q", w.State)
		}
		if w.SSID != nil {
			return v.check("ssid", *w.SSID, "min=1,max=32")
		}
		if w.State == "" {
			return invalid("value", "WiFi trigger needs a state or SSID")
		}
		return nil
	}
	if isWiFiState(value) {
		return nil
	}
	return v.check("ssid", value, "min=1,max=32")
}

func (v *Validator) bluetoothValue(value string) error {
	if strings.HasPrefix(value, "{") {
		var b bluetoothValue
		if err := json.Unmarshal([]byte(value), &b); err != nil {
			return invalid("value", "invalid Bluetooth JSON")
		}
		if b.DeviceAddress != "" {
			return v.check("deviceAddress", b.DeviceAddress, "btmac")
		}
		if b.DeviceName != nil {
			return v.check("deviceName", *b.DeviceName, "min=1,max=248")
		}
		return invalid("value", "device address or name is required")
	}
	if IsMAC(value) {
		return nil
	}
	return v.check("value", value, "min=1,max=248")
}
