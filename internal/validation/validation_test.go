package validation

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"autoflow/internal/config"
	"autoflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupValidator(t *testing.T) *Validator {
	t.Helper()
	return New(config.DefaultLimits())
}

func strPtr(s string) *string { return &s }

func location(lat, lon, radius float64) models.LocationTrigger {
	return models.LocationTrigger{LocationName: "X", Latitude: lat, Longitude: lon, Radius: radius, TriggerOnEntry: true}
}

func TestLocationBoundaries(t *testing.T) {
	v := setupValidator(t)

	tests := []struct {
		name    string
		trigger models.LocationTrigger
		valid   bool
	}{
		{"north pole", location(90, 0, 100), true},
		{"south pole", location(-90, 0, 100), true},
		{"date line east", location(0, 180, 100), true},
		{"date line west", location(0, -180, 100), true},
		{"lat just over", location(90.0001, 0, 100), false},
		{"lat just under", location(-90.0001, 0, 100), false},
		{"lon just over", location(0, 180.0001, 100), false},
		{"lon just under", location(0, -180.0001, 100), false},
		{"radius min", location(10, 10, 50), true},
		{"radius max", location(10, 10, 5000), true},
		{"radius below min", location(10, 10, 49.9), false},
		{"radius above max", location(10, 10, 5000.1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateTrigger(tt.trigger)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			assert.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
		})
	}
}

func TestLocationNeedsTransition(t *testing.T) {
	v := setupValidator(t)
	tr := location(1, 1, 100)
	tr.TriggerOnEntry = false
	assert.Error(t, v.ValidateTrigger(tr))
}

func TestBatteryBoundaries(t *testing.T) {
	v := setupValidator(t)
	for _, level := range []int{0, 100} {
		assert.NoError(t, v.ValidateTrigger(models.BatteryTrigger{Level: level, Condition: models.BatteryBelow}))
		assert.NoError(t, v.ValidateTriggerValue(models.TriggerBattery, strconv.Itoa(level), time.Now()))
	}
	for _, level := range []int{-1, 101} {
		assert.Error(t, v.ValidateTrigger(models.BatteryTrigger{Level: level, Condition: models.BatteryBelow}))
		assert.Error(t, v.ValidateTriggerValue(models.TriggerBattery, strconv.Itoa(level), time.Now()))
	}
	assert.Error(t, v.ValidateTriggerValue(models.TriggerBattery, "half", time.Now()))
	assert.Error(t, v.ValidateTrigger(models.BatteryTrigger{Level: 10, Condition: "around"}))
	assert.NoError(t, v.ValidateTrigger(models.BatteryTrigger{Level: 10, Condition: "<"}))
}

func TestWiFiAndBluetoothStoredForms(t *testing.T) {
	v := setupValidator(t)
	assert.NoError(t, v.ValidateTrigger(models.WiFiTrigger{State: "connected"}))
	assert.NoError(t, v.ValidateTrigger(models.WiFiTrigger{SSID: strPtr(""), State: models.WiFiOn}))
	assert.Error(t, v.ValidateTrigger(models.WiFiTrigger{State: "flapping"}))
	assert.Error(t, v.ValidateTrigger(models.WiFiTrigger{SSID: strPtr(strings.Repeat("x", 33)), State: models.WiFiOn}))
	assert.Error(t, v.ValidateTrigger(models.BluetoothTrigger{DeviceName: strPtr("")}))
}

func TestMACPattern(t *testing.T) {
	assert.True(t, IsMAC("00:11:22:33:44:55"))
	assert.True(t, IsMAC("00-11-22-33-44-55"))
	assert.False(t, IsMAC("00:11:22:33:44"))
	assert.False(t, IsMAC("zz:11:22:33:44:55"))

	v := setupValidator(t)
	assert.NoError(t, v.ValidateTrigger(models.BluetoothTrigger{DeviceAddress: "aa:bb:cc:dd:ee:ff"}))
	assert.Error(t, v.ValidateTrigger(models.BluetoothTrigger{DeviceAddress: "00:11:22:33:44"}))
	assert.NoError(t, v.ValidateTrigger(models.BluetoothTrigger{DeviceName: strPtr("Headphones")}))
	assert.Error(t, v.ValidateTrigger(models.BluetoothTrigger{}))
}

func TestTimeValueHorizon(t *testing.T) {
	v := setupValidator(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ms := func(d time.Duration) string { return strconv.FormatInt(now.Add(d).UnixMilli(), 10) }

	assert.NoError(t, v.ValidateTriggerValue(models.TriggerTime, ms(time.Hour), now))
	assert.NoError(t, v.ValidateTriggerValue(models.TriggerTime, ms(-time.Hour), now))
	assert.NoError(t, v.ValidateTriggerValue(models.TriggerTime, ms(365*24*time.Hour), now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerTime, ms(366*24*time.Hour), now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerTime, ms(-366*24*time.Hour), now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerTime, "tomorrow", now))

	// far enough out that a nanosecond duration would wrap around
	far := strconv.FormatInt(now.UnixMilli()+18446744073709, 10)
	assert.Error(t, v.ValidateTriggerValue(models.TriggerTime, far, now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerTime, strconv.FormatInt(math.MaxInt64, 10), now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerTime, strconv.FormatInt(math.MinInt64, 10), now))
}

func TestLocationValueForms(t *testing.T) {
	v := setupValidator(t)
	now := time.Now()

	assert.NoError(t, v.ValidateTriggerValue(models.TriggerLocation, "52.52,13.40", now))
	assert.NoError(t, v.ValidateTriggerValue(models.TriggerLocation, "52.52,13.40,200", now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerLocation, "91,13.40", now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerLocation, "52.52,13.40,10", now))
	assert.NoError(t, v.ValidateTriggerValue(models.TriggerLocation, `{"latitude":-90,"longitude":180}`, now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerLocation, `{"latitude":90.0001,"longitude":0}`, now))
	assert.NoError(t, v.ValidateTriggerValue(models.TriggerLocation, `{"coordinates":"1.5,2.5"}`, now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerLocation, `{"name":"home"}`, now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerLocation, "home", now))
}

func TestWiFiValue(t *testing.T) {
	v := setupValidator(t)
	now := time.Now()

	assert.NoError(t, v.ValidateTriggerValue(models.TriggerWiFi, "connected", now))
	assert.NoError(t, v.ValidateTriggerValue(models.TriggerWiFi, "Office-5G", now))
	assert.NoError(t, v.ValidateTriggerValue(models.TriggerWiFi, strings.Repeat("s", 32), now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerWiFi, strings.Repeat("s", 33), now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerWiFi, "", now))
	assert.NoError(t, v.ValidateTriggerValue(models.TriggerWiFi, `{"ssid":"Home","state":"CONNECTED"}`, now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerWiFi, `{"state":"FLAPPING"}`, now))
}

func TestBluetoothValue(t *testing.T) {
	v := setupValidator(t)
	now := time.Now()

	assert.NoError(t, v.ValidateTriggerValue(models.TriggerBluetooth, "00-11-22-33-44-55", now))
	assert.NoError(t, v.ValidateTriggerValue(models.TriggerBluetooth, "My Car", now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerBluetooth, strings.Repeat("n", 249), now))
	assert.Error(t, v.ValidateTriggerValue(models.TriggerBluetooth, `{"deviceAddress":"zz:11:22:33:44:55"}`, now))
}

func TestAlwaysValidTypes(t *testing.T) {
	v := setupValidator(t)
	assert.NoError(t, v.ValidateTriggerValue(models.TriggerManual, "", time.Now()))
	assert.NoError(t, v.ValidateTriggerValue(models.TriggerTimeRange, "anything", time.Now()))
	assert.Error(t, v.ValidateTriggerValue("NFC", "tag", time.Now()))
}

func TestTimeTriggers(t *testing.T) {
	v := setupValidator(t)
	assert.NoError(t, v.ValidateTrigger(models.TimeTrigger{Time: "00:00"}))
	assert.NoError(t, v.ValidateTrigger(models.TimeTrigger{Time: "23:59", Days: []string{"MONDAY", "sat"}}))
	assert.Error(t, v.ValidateTrigger(models.TimeTrigger{Time: "24:00"}))
	assert.Error(t, v.ValidateTrigger(models.TimeTrigger{Time: "7:30"}))
	assert.Error(t, v.ValidateTrigger(models.TimeTrigger{Time: "07:30", Days: []string{"FUNDAY"}}))
	assert.NoError(t, v.ValidateTrigger(models.TimeRangeTrigger{StartTime: "22:00", EndTime: "07:00"}))
	assert.Error(t, v.ValidateTrigger(models.TimeRangeTrigger{StartTime: "22:00", EndTime: "7"}))
}

func TestValidateAction(t *testing.T) {
	v := setupValidator(t)
	zero := time.Duration(0)

	assert.NoError(t, v.ValidateAction(models.NotificationAction{Title: "Hi"}))
	assert.Error(t, v.ValidateAction(models.NotificationAction{Priority: models.PriorityLow}))
	assert.Error(t, v.ValidateAction(models.NotificationAction{Title: strings.Repeat("t", 51)}))
	assert.Error(t, v.ValidateAction(models.NotificationAction{Message: strings.Repeat("m", 201)}))
	assert.Error(t, v.ValidateAction(models.NotificationAction{Title: "x", Priority: "Critical"}))
	assert.NoError(t, v.ValidateAction(models.SoundModeAction{Mode: models.SoundDND}))
	assert.Error(t, v.ValidateAction(models.SoundModeAction{Mode: "Loud"}))
	assert.NoError(t, v.ValidateAction(models.BlockAppsAction{Packages: []string{"com.a"}}))
	assert.Error(t, v.ValidateAction(models.BlockAppsAction{}))
	assert.Error(t, v.ValidateAction(models.BlockAppsAction{Packages: []string{"com.a"}, Duration: &zero}))
	assert.Error(t, v.ValidateAction(models.RunScriptAction{Content: "  "}))
	assert.NoError(t, v.ValidateAction(models.BrightnessAction{Level: 100}))
	assert.Error(t, v.ValidateAction(models.VolumeAction{Level: 101}))
	assert.NoError(t, v.ValidateAction(models.UnblockAppsAction{}))
}

func validWorkflow() *models.Workflow {
	return &models.Workflow{
		Name:     "Arrive home",
		Enabled:  true,
		Logic:    models.LogicOR,
		Triggers: []models.Trigger{models.WiFiTrigger{SSID: strPtr("Home"), State: models.WiFiConnected}},
		Actions:  []models.Action{models.NotificationAction{Title: "Welcome"}},
	}
}

func TestValidateWorkflow(t *testing.T) {
	v := setupValidator(t)
	require.NoError(t, v.ValidateWorkflow(validWorkflow()))

	tests := []struct {
		name   string
		mutate func(*models.Workflow)
		field  string
	}{
		{"blank name", func(w *models.Workflow) { w.Name = "   " }, "name"},
		{"long name", func(w *models.Workflow) { w.Name = strings.Repeat("n", 101) }, "name"},
		{"no triggers", func(w *models.Workflow) { w.Triggers = nil }, "triggers"},
		{"too many triggers", func(w *models.Workflow) {
			for len(w.Triggers) <= 10 {
				w.Triggers = append(w.Triggers, models.ManualTrigger{Value: "quick_action"})
			}
		}, "triggers"},
		{"no actions", func(w *models.Workflow) { w.Actions = nil }, "actions"},
		{"too many actions", func(w *models.Workflow) {
			for len(w.Actions) <= 10 {
				w.Actions = append(w.Actions, models.UnblockAppsAction{})
			}
		}, "actions"},
		{"bad logic", func(w *models.Workflow) { w.Logic = "XOR" }, "logic"},
		{"bad trigger", func(w *models.Workflow) {
			w.Triggers = append(w.Triggers, models.BatteryTrigger{Level: 101, Condition: models.BatteryAbove})
		}, "triggers[1].level"},
		{"two locations", func(w *models.Workflow) {
			w.Triggers = []models.Trigger{location(1, 1, 100), location(2, 2, 100)}
		}, "triggers"},
		{"bad action", func(w *models.Workflow) { w.Actions[0] = models.VolumeAction{Level: -1} }, "actions[0].level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := validWorkflow()
			tt.mutate(wf)
			err := v.ValidateWorkflow(wf)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}
