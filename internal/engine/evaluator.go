package engine

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"autoflow/internal/models"
)

// TriggerState remembers satisfied triggers of AND workflows across events
type TriggerState interface {
	// Satisfy records idxs as satisfied and reports, atomically, whether all
	// n triggers are; a complete set is cleared so only one caller fires.
	Satisfy(ctx context.Context, workflowID string, idxs []int, n int, ttl time.Duration) (bool, error)
	Reset(ctx context.Context, workflowID string) error
}

// Matcher decides whether triggers are satisfied by an event
type Matcher struct {
	window   time.Duration
	stateTTL time.Duration
	loc      *time.Location
	clock    func() time.Time
}

// NewMatcher creates a Matcher. window bounds how late a time event may be
// evaluated; stateTTL is how long an AND trigger stays satisfied.
func NewMatcher(window, stateTTL time.Duration, loc *time.Location) *Matcher {
	if loc == nil {
		loc = time.Local
	}
	return &Matcher{window: window, stateTTL: stateTTL, loc: loc, clock: time.Now}
}

// Matches reports whether one trigger is satisfied by ev
func (m *Matcher) Matches(t models.Trigger, ev models.Event) bool {
	if t == nil || t.EventKind() == "" || t.EventKind() != ev.Kind {
		return false
	}

	switch tr := t.(type) {
	case models.WiFiTrigger:
		if !strings.EqualFold(ev.Field(models.FieldState), tr.State) {
			return false
		}
		// an empty SSID means any network
		return tr.SSID == nil || *tr.SSID == "" || ev.Field(models.FieldSSID) == *tr.SSID

	case models.BluetoothTrigger:
		if tr.DeviceAddress != "" && !strings.EqualFold(ev.Field(models.FieldAddress), tr.DeviceAddress) {
			return false
		}
		if tr.DeviceName != nil && *tr.DeviceName != "" && ev.Field(models.FieldName) != *tr.DeviceName {
			return false
		}
		return true

	case models.LocationTrigger:
		if tr.RegionID == "" || ev.RegionID != tr.RegionID {
			return false
		}
		switch strings.ToUpper(ev.Transition) {
		case models.TransitionEnter:
			return tr.TriggerOnEntry
		case models.TransitionExit:
			return tr.TriggerOnExit
		}
		return false

	case models.TimeTrigger:
		target, ok := m.inWindow(ev.Target)
		if !ok {
			return false
		}
		mins, ok := models.ParseClock(tr.Time)
		if !ok || target.Hour()*60+target.Minute() != mins {
			return false
		}
		return models.DayAllowed(tr.Days, target.Weekday())

	case models.TimeRangeTrigger:
		target, ok := m.inWindow(ev.Target)
		if !ok {
			return false
		}
		return inRange(tr, target)

	case models.BatteryTrigger:
		level, ok := eventLevel(ev)
		if !ok {
			return false
		}
		switch tr.Comparison() {
		case models.BatteryAbove:
			return level > tr.Level
		case models.BatteryBelow:
			return level < tr.Level
		case models.BatteryEquals:
			return level == tr.Level
		}
		return false
	}
	return false
}

// inWindow checks that target has passed and is no older than the window,
// returning it in the matcher's location
func (m *Matcher) inWindow(target time.Time) (time.Time, bool) {
	if target.IsZero() {
		return time.Time{}, false
	}
	elapsed := m.clock().Sub(target)
	if elapsed < 0 || elapsed > m.window {
		return time.Time{}, false
	}
	return target.In(m.loc), true
}

func inRange(tr models.TimeRangeTrigger, t time.Time) bool {
	start, ok1 := models.ParseClock(tr.StartTime)
	end, ok2 := models.ParseClock(tr.EndTime)
	if !ok1 || !ok2 {
		return false
	}
	mins := t.Hour()*60 + t.Minute()
	day := t.Weekday()

	switch {
	case start == end:
		// whole day
	case start < end:
		if mins < start || mins >= end {
			return false
		}
	default:
		// wraps midnight; the early-morning part belongs to the previous day
		if mins >= start {
			break
		}
		if mins >= end {
			return false
		}
		day = (day + 6) % 7
	}
	return models.DayAllowed(tr.Days, day)
}

func eventLevel(ev models.Event) (int, bool) {
	if ev.Level != nil {
		return *ev.Level, true
	}
	if raw := ev.Field("level"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Evaluate combines the workflow's triggers against ev. For AND workflows a
// non-nil state carries satisfied triggers across events; the marks are
// cleared when the workflow fires.
func (m *Matcher) Evaluate(ctx context.Context, wf *models.Workflow, ev models.Event, state TriggerState) (bool, error) {
	if len(wf.Triggers) == 0 {
		return false, nil
	}

	matched := make(map[int]bool)
	for i, t := range wf.Triggers {
		if m.Matches(t, ev) {
			matched[i] = true
		}
	}

	if wf.Logic != models.LogicAND {
		return len(matched) > 0, nil
	}

	if state == nil {
		return len(matched) == len(wf.Triggers), nil
	}
	if len(matched) == 0 {
		return false, nil
	}

	idxs := make([]int, 0, len(matched))
	for idx := range matched {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	return state.Satisfy(ctx, wf.ID, idxs, len(wf.Triggers), m.stateTTL)
}
