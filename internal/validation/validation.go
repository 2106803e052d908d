package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"autoflow/internal/config"
	"autoflow/internal/models"

	"github.com/go-playground/validator/v10"
)

var (
	macPattern         = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)
	coordinatesPattern = regexp.MustCompile(`^-?\d+\.?\d*,-?\d+\.?\d*(,-?\d+\.?\d*)?$`)
	clockPattern       = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// ValidationError is a user-correctable problem with a trigger, action or workflow
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validator checks triggers, actions and workflows against configured limits. It does no I/O.
type Validator struct {
	limits   config.Limits
	validate *validator.Validate
}

// New creates a Validator
func New(limits config.Limits) *Validator {
	v := validator.New()
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return clockPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("btmac", func(fl validator.FieldLevel) bool {
		return macPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseWeekday(fl.Field().String())
		return ok
	})
	return &Validator{limits: limits, validate: v}
}

// IsMAC reports whether s is a colon or dash separated MAC address
func IsMAC(s string) bool {
	return macPattern.MatchString(s)
}

// check runs a validator tag against one value and converts the failure
func (v *Validator) check(field string, value any, tag string) error {
	err := v.validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return &ValidationError{Field: field, Reason: reason(fieldErrs[0])}
	}
	return &ValidationError{Field: field, Reason: err.Error()}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param()
	case "max":
		return "must have at most " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "hhmm":
		return "must be HH:MM"
	case "btmac":
		return "must be a MAC address like 00:11:22:33:44:55"
	case "weekday":
		return "must be a weekday name"
	default:
		return "failed " + fe.Tag()
	}
}

// ValidateWorkflow checks the workflow shape and then every trigger and action
func (v *Validator) ValidateWorkflow(wf *models.Workflow) error {
	if wf == nil {
		return invalid("", "workflow is required")
	}
	if strings.TrimSpace(wf.Name) == "" {
		return invalid("name", "Workflow name cannot be empty")
	}
	if err := v.check("name", strings.TrimSpace(wf.Name), fmt.Sprintf("max=%d", v.limits.MaxNameLength)); err != nil {
		return err
	}
	if len(wf.Triggers) == 0 {
		return invalid("triggers", "At least one trigger is required")
	}
	if err := v.check("triggers", wf.Triggers, fmt.Sprintf("max=%d", v.limits.MaxTriggers)); err != nil {
		return err
	}
	if len(wf.Actions) == 0 {
		return invalid("actions", "At least one action is required")
	}
	if err := v.check("actions", wf.Actions, fmt.Sprintf("max=%d", v.limits.MaxActions)); err != nil {
		return err
	}
	if err := v.check("logic", wf.Logic, "oneof=AND OR"); err != nil {
		return err
	}

	locations := 0
	for i, t := range wf.Triggers {
		if _, ok := t.(models.LocationTrigger); ok {
			locations++
		}
		if err := v.ValidateTrigger(t); err != nil {
			return prefix(fmt.Sprintf("triggers[%d]", i), err)
		}
	}
	if locations > 1 {
		return invalid("triggers", "only one location trigger is allowed per workflow")
	}

	for i, a := range wf.Actions {
		if err := v.ValidateAction(a); err != nil {
			return prefix(fmt.Sprintf("actions[%d]", i), err)
		}
	}
	return nil
}

func prefix(p string, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		field := p
		if ve.Field != "" {
			field = p + "." + ve.Field
		}
		return &ValidationError{Field: field, Reason: ve.Reason}
	}
	return err
}

// ValidateTrigger checks a typed trigger
func (v *Validator) ValidateTrigger(t models.Trigger) error {
	switch tr := t.(type) {
	case models.LocationTrigger:
		if err := v.checkCoordinates(tr.Latitude, tr.Longitude); err != nil {
			return err
		}
		if err := v.checkRadius(tr.Radius); err != nil {
			return err
		}
		if !tr.TriggerOnEntry && !tr.TriggerOnExit {
			return invalid("triggerOn", "location trigger must fire on entry, exit or both")
		}
		return nil
	case models.WiFiTrigger:
		if err := v.check("state", strings.ToUpper(tr.State), "oneof=ON OFF CONNECTED DISCONNECTED"); err != nil {
			return err
		}
		if tr.SSID != nil {
			return v.check("ssid", *tr.SSID, "max=32")
		}
		return nil
	case models.BluetoothTrigger:
		named := tr.DeviceName != nil && *tr.DeviceName != ""
		if tr.DeviceAddress == "" && !named {
			return invalid("deviceAddress", "device address or name is required")
		}
		if tr.DeviceAddress != "" {
			if err := v.check("deviceAddress", tr.DeviceAddress, "btmac"); err != nil {
				return err
			}
		}
		if named {
			return v.check("deviceName", *tr.DeviceName, "max=248")
		}
		return nil
	case models.TimeTrigger:
		if err := v.check("time", tr.Time, "hhmm"); err != nil {
			return err
		}
		return v.check("days", tr.Days, "omitempty,dive,weekday")
	case models.TimeRangeTrigger:
		if err := v.check("startTime", tr.StartTime, "hhmm"); err != nil {
			return err
		}
		if err := v.check("endTime", tr.EndTime, "hhmm"); err != nil {
			return err
		}
		return v.check("days", tr.Days, "omitempty,dive,weekday")
	case models.BatteryTrigger:
		if err := v.check("level", tr.Level, "gte=0,lte=100"); err != nil {
			return err
		}
		return v.check("condition", tr.Comparison(), "oneof=above below equals")
	case models.ManualTrigger:
		return nil
	case nil:
		return invalid("type", "trigger is required")
	default:
		return invalid("type", "unsupported trigger %T", t)
	}
}

// ValidateAction checks a typed action
func (v *Validator) ValidateAction(a models.Action) error {
	switch ac := a.(type) {
	case models.NotificationAction:
		if strings.TrimSpace(ac.Title) == "" && strings.TrimSpace(ac.Message) == "" {
			return invalid("title", "Notification must have title or message")
		}
		if err := v.check("title", ac.Title, fmt.Sprintf("max=%d", v.limits.MaxTitleLength)); err != nil {
			return err
		}
		if err := v.check("message", ac.Message, fmt.Sprintf("max=%d", v.limits.MaxMessageLength)); err != nil {
			return err
		}
		return v.check("priority", ac.Priority, "omitempty,oneof=Low Normal High Urgent")
	case models.SoundModeAction:
		return v.check("mode", ac.Mode, "oneof=Normal Vibrate Silent DND")
	case models.WiFiToggleAction, models.BluetoothToggleAction, models.UnblockAppsAction:
		return nil
	case models.BlockAppsAction:
		if err := v.check("packages", ac.Packages, "min=1,dive,required"); err != nil {
			return err
		}
		if ac.Duration != nil && *ac.Duration <= 0 {
			return invalid("durationMs", "duration must be positive")
		}
		return nil
	case models.RunScriptAction:
		if strings.TrimSpace(ac.Content) == "" {
			return invalid("content", "Script content cannot be empty")
		}
		return nil
	case models.BrightnessAction:
		return v.check("level", ac.Level, "gte=0,lte=100")
	case models.VolumeAction:
		return v.check("level", ac.Level, "gte=0,lte=100")
	case nil:
		return invalid("type", "action is required")
	default:
		return invalid("type", "unsupported action %T", a)
	}
}

func (v *Validator) checkCoordinates(lat, lon float64) error {
	if err := v.check("latitude", lat, "gte=-90,lte=90"); err != nil {
		return err
	}
	return v.check("longitude", lon, "gte=-180,lte=180")
}

func (v *Validator) checkRadius(r float64) error {
	if r < v.limits.MinRadius || r > v.limits.MaxRadius {
		return invalid("radius", "must be between %v and %v metres", v.limits.MinRadius, v.limits.MaxRadius)
	}
	return nil
}
