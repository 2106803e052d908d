package models

import "time"

// Trigger combination logic
const (
	LogicAND = "AND"
	LogicOR  = "OR"
)

// Workflow is a stored automation: triggers, how they combine, and the actions to run
type Workflow struct {
	ID        string
	Name      string
	Enabled   bool
	Triggers  []Trigger
	Logic     string
	Actions   []Action
	ModeID    *string // owning automation mode, if any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RegionID is the geofence request id registered for a workflow's location trigger
func RegionID(workflowID string) string {
	return "workflow_" + workflowID
}

// HasTrigger reports whether any trigger reacts to the given event kind
func (w *Workflow) HasTrigger(kind string) bool {
	for _, t := range w.Triggers {
		if t.EventKind() == kind {
			return true
		}
	}
	return false
}

// LocationTrigger returns the workflow's location trigger, if any
func (w *Workflow) LocationTrigger() (LocationTrigger, bool) {
	for _, t := range w.Triggers {
		if lt, ok := t.(LocationTrigger); ok {
			return lt, true
		}
	}
	return LocationTrigger{}, false
}

// TimeTriggers returns the TIME and TIME_RANGE triggers with their list positions
func (w *Workflow) TimeTriggers() map[int]Trigger {
	out := make(map[int]Trigger)
	for i, t := range w.Triggers {
		switch t.(type) {
		case TimeTrigger, TimeRangeTrigger:
			out[i] = t
		}
	}
	return out
}

// BindRegions stamps location triggers with the workflow's region id
func (w *Workflow) BindRegions() {
	for i, t := range w.Triggers {
		if lt, ok := t.(LocationTrigger); ok {
			lt.RegionID = RegionID(w.ID)
			w.Triggers[i] = lt
		}
	}
}
