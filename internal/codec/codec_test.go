package codec

import (
	"errors"
	"testing"
	"time"

	"autoflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestTriggerRoundTrip(t *testing.T) {
	triggers := []models.Trigger{
		models.LocationTrigger{LocationName: "Office", Latitude: 52.5200066, Longitude: -13.404954, Radius: 250, TriggerOnEntry: true, TriggerOnExit: true},
		models.LocationTrigger{LocationName: "Gym", Latitude: -90, Longitude: 180, Radius: 50, TriggerOnExit: true},
		models.WiFiTrigger{SSID: strPtr("HomeNet"), State: models.WiFiConnected},
		models.WiFiTrigger{State: models.WiFiOff},
		models.BluetoothTrigger{DeviceAddress: "00:11:22:33:44:55", DeviceName: strPtr("Car Kit")},
		models.BluetoothTrigger{DeviceAddress: "AA-BB-CC-DD-EE-FF"},
		models.TimeTrigger{Time: "07:30", Days: []string{"MONDAY", "FRIDAY"}},
		models.TimeTrigger{Time: "23:59"},
		models.TimeRangeTrigger{StartTime: "22:00", EndTime: "06:30", Days: []string{"SATURDAY"}},
		models.BatteryTrigger{Level: 15, Condition: models.BatteryBelow},
		models.BatteryTrigger{Level: 100, Condition: models.BatteryEquals},
		models.ManualTrigger{Value: "quick_action"},

		// values as callers build them, not as the codec would canonicalise them
		models.LocationTrigger{LocationName: "Park", Radius: 100, TriggerOnEntry: true},
		models.LocationTrigger{LocationName: "Nowhere", Radius: 100},
		models.TimeTrigger{Time: "06:00", Days: []string{}},
		models.TimeRangeTrigger{StartTime: "09:00", EndTime: "17:00", Days: []string{}},
		models.WiFiTrigger{State: "connected"},
		models.WiFiTrigger{SSID: strPtr(""), State: models.WiFiOn},
		models.BluetoothTrigger{DeviceAddress: "00:11:22:33:44:55", DeviceName: strPtr("")},
		models.BatteryTrigger{Level: 80, Condition: "<"},
	}

	for _, tr := range triggers {
		t.Run(tr.Type(), func(t *testing.T) {
			b, err := EncodeTrigger(tr)
			require.NoError(t, err)

			got, err := DecodeTrigger(b)
			require.NoError(t, err)
			assert.Equal(t, tr, got)

			again, err := EncodeTrigger(got)
			require.NoError(t, err)
			assert.Equal(t, string(b), string(again))
		})
	}
}

func TestActionRoundTrip(t *testing.T) {
	d := 90 * time.Minute
	actions := []models.Action{
		models.NotificationAction{Title: "Home", Message: "Welcome back", Priority: models.PriorityHigh},
		models.NotificationAction{Message: "only a message", Priority: models.PriorityNormal},
		models.SoundModeAction{Mode: models.SoundVibrate},
		models.WiFiToggleAction{Enabled: true},
		models.WiFiToggleAction{},
		models.BluetoothToggleAction{Enabled: true},
		models.BlockAppsAction{Packages: []string{"com.social.app", "com.video.app"}, Duration: &d},
		models.BlockAppsAction{Packages: []string{"com.game"}},
		models.BlockAppsAction{Packages: []string{}},
		models.UnblockAppsAction{},
		models.RunScriptAction{Content: `notify("hi", "there")`},
		models.BrightnessAction{Level: 0},
		models.VolumeAction{Level: 100},
	}

	for _, a := range actions {
		t.Run(a.Type(), func(t *testing.T) {
			b, err := EncodeAction(a)
			require.NoError(t, err)

			got, err := DecodeAction(b)
			require.NoError(t, err)
			assert.Equal(t, a, got)
		})
	}
}

func TestEncodeTriggerFieldOrder(t *testing.T) {
	b, err := EncodeTrigger(models.WiFiTrigger{SSID: strPtr("X"), State: models.WiFiOn})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"WIFI","ssid":"X","state":"ON"}`, string(b))

	b, err = EncodeTrigger(models.TimeTrigger{Time: "08:00"})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"TIME","time":"08:00"}`, string(b))

	b, err = EncodeTrigger(models.TimeTrigger{Time: "08:00", Days: []string{}})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"TIME","time":"08:00","days":[]}`, string(b))

	b, err = EncodeTrigger(models.LocationTrigger{LocationName: "Home", Radius: 100, TriggerOnExit: true})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"LOCATION","locationName":"Home","latitude":0,"longitude":0,"radius":100,"triggerOnEntry":false,"triggerOnExit":true,"triggerOn":"exit"}`, string(b))
}

func TestDecodeTriggerDefaults(t *testing.T) {
	tr, err := DecodeTrigger([]byte(`{"type":"LOCATION","latitude":1.5,"longitude":2.5}`))
	require.NoError(t, err)
	assert.Equal(t, models.LocationTrigger{
		LocationName:   "Unknown",
		Latitude:       1.5,
		Longitude:      2.5,
		Radius:         100,
		TriggerOnEntry: true,
	}, tr)

	tr, err = DecodeTrigger([]byte(`{"type":"BATTERY"}`))
	require.NoError(t, err)
	assert.Equal(t, models.BatteryTrigger{Level: 50, Condition: models.BatteryBelow}, tr)

	tr, err = DecodeTrigger([]byte(`{"type":"BATTERY","level":20,"condition":">"}`))
	require.NoError(t, err)
	assert.Equal(t, models.BatteryTrigger{Level: 20, Condition: ">"}, tr)
	assert.Equal(t, models.BatteryAbove, tr.(models.BatteryTrigger).Comparison())

	tr, err = DecodeTrigger([]byte(`{"type":"MANUAL"}`))
	require.NoError(t, err)
	assert.Equal(t, models.ManualTrigger{Value: "quick_action"}, tr)

	tr, err = DecodeTrigger([]byte(`{"type":"WIFI","ssid":"","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, models.WiFiTrigger{SSID: strPtr(""), State: models.WiFiConnected}, tr)

	tr, err = DecodeTrigger([]byte(`{"type":"TIME_RANGE"}`))
	require.NoError(t, err)
	assert.Equal(t, models.TimeRangeTrigger{StartTime: "22:00", EndTime: "07:00"}, tr)
}

func TestDecodeLocationLabelDecidesFlags(t *testing.T) {
	tr, err := DecodeTrigger([]byte(`{"type":"LOCATION","latitude":1,"longitude":2,"radius":100,"triggerOn":"exit"}`))
	require.NoError(t, err)
	loc := tr.(models.LocationTrigger)
	assert.False(t, loc.TriggerOnEntry)
	assert.True(t, loc.TriggerOnExit)
	assert.Equal(t, models.TransitionModeExit, loc.Mode())

	tr, err = DecodeTrigger([]byte(`{"type":"LOCATION","triggerOnEntry":true,"triggerOnExit":false,"triggerOn":"BOTH"}`))
	require.NoError(t, err)
	loc = tr.(models.LocationTrigger)
	assert.True(t, loc.TriggerOnEntry)
	assert.True(t, loc.TriggerOnExit)

	tr, err = DecodeTrigger([]byte(`{"type":"LOCATION","triggerOnExit":true,"triggerOn":"sideways"}`))
	require.NoError(t, err)
	loc = tr.(models.LocationTrigger)
	assert.True(t, loc.TriggerOnEntry)
	assert.True(t, loc.TriggerOnExit)
}

func TestDecodeTriggerUnknownVariant(t *testing.T) {
	_, err := DecodeTrigger([]byte(`{"type":"TELEPORT","where":"mars"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownVariant))

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "TELEPORT", de.Type)
}

func TestDecodeTriggersSkipsBadEntries(t *testing.T) {
	raw := []byte(`[{"type":"LEGACY_NFC","tag":"abc"},{"type":"TIME","time":"06:45","days":[]}]`)

	triggers, errs, err := DecodeTriggers(raw)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, models.TimeTrigger{Time: "06:45", Days: []string{}}, triggers[0])

	require.Len(t, errs, 1)
	assert.Equal(t, 0, errs[0].Index)
	assert.ErrorIs(t, errs[0], ErrUnknownVariant)
}

func TestDecodeTriggersMalformedEntry(t *testing.T) {
	raw := []byte(`[{"type":"BATTERY","level":"high"},{"type":"WIFI","state":"OFF"}]`)

	triggers, errs, err := DecodeTriggers(raw)
	require.NoError(t, err)
	assert.Equal(t, []models.Trigger{models.WiFiTrigger{State: models.WiFiOff}}, triggers)
	require.Len(t, errs, 1)
	assert.Equal(t, models.TriggerBattery, errs[0].Type)
	assert.False(t, errors.Is(errs[0], ErrUnknownVariant))
}

func TestDecodeTriggersCorruptList(t *testing.T) {
	_, _, err := DecodeTriggers([]byte(`{"not":"an array"`))
	assert.Error(t, err)

	triggers, errs, err := DecodeTriggers(nil)
	require.NoError(t, err)
	assert.Empty(t, triggers)
	assert.Empty(t, errs)
}

func TestTriggerListRoundTrip(t *testing.T) {
	in := []models.Trigger{
		models.WiFiTrigger{SSID: strPtr("Cafe"), State: models.WiFiConnected},
		models.BatteryTrigger{Level: 30, Condition: models.BatteryBelow},
	}
	b, err := EncodeTriggers(in)
	require.NoError(t, err)

	out, errs, err := DecodeTriggers(b)
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, in, out)
}

func TestDecodeActionsSkipsUnknown(t *testing.T) {
	raw := []byte(`[{"type":"LAUNCH_ROCKET"},{"type":"NOTIFICATION","title":"X"}]`)

	actions, errs, err := DecodeActions(raw)
	require.NoError(t, err)
	assert.Equal(t, []models.Action{models.NotificationAction{Title: "X", Priority: models.PriorityNormal}}, actions)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnknownVariant)
}

func TestEncodeNil(t *testing.T) {
	_, err := EncodeTrigger(nil)
	assert.Error(t, err)
	_, err = EncodeAction(nil)
	assert.Error(t, err)
}
