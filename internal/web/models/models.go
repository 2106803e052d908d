package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"autoflow/internal/codec"
	"autoflow/internal/db"
	"autoflow/internal/models"
	"autoflow/internal/validation"
)

// WorkflowRequest is the body of create and full-replacement edits. Triggers
// and Actions use the stored wire format.
type WorkflowRequest struct {
	Name     string          `json:"name"`
	Enabled  *bool           `json:"enabled"`
	Logic    string          `json:"logic"`
	Triggers json.RawMessage `json:"triggers"`
	Actions  json.RawMessage `json:"actions"`
	ModeID   *string         `json:"modeId"`
}

// ToWorkflow decodes the request. Any trigger or action that does not decode
// is reported as a *validation.ValidationError; nothing is silently dropped.
func (r WorkflowRequest) ToWorkflow() (*models.Workflow, error) {
	triggers, terrs, err := codec.DecodeTriggers(r.Triggers)
	if err != nil {
		return nil, &validation.ValidationError{Field: "triggers", Reason: "must be an array of trigger objects"}
	}
	if len(terrs) > 0 {
		return nil, decodeFailure("triggers", terrs[0])
	}

	actions, aerrs, err := codec.DecodeActions(r.Actions)
	if err != nil {
		return nil, &validation.ValidationError{Field: "actions", Reason: "must be an array of action objects"}
	}
	if len(aerrs) > 0 {
		return nil, decodeFailure("actions", aerrs[0])
	}

	logic := strings.ToUpper(strings.TrimSpace(r.Logic))
	if logic == "" {
		logic = models.LogicOR
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &models.Workflow{
		Name:     strings.TrimSpace(r.Name),
		Enabled:  enabled,
		Logic:    logic,
		Triggers: triggers,
		Actions:  actions,
		ModeID:   r.ModeID,
	}, nil
}

func decodeFailure(list string, de *codec.DecodeError) error {
	reason := de.Err.Error()
	if de.Type != "" {
		reason = fmt.Sprintf("%s: %s", de.Type, reason)
	}
	return &validation.ValidationError{Field: fmt.Sprintf("%s[%d]", list, de.Index), Reason: reason}
}

// EnabledRequest toggles a workflow
type EnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// TriggerValueRequest checks one builder input before it becomes a trigger
type TriggerValueRequest struct {
	Type  string `json:"type" binding:"required"`
	Value string `json:"value"`
}

// WorkflowResponse is the API view of a stored workflow
type WorkflowResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Enabled      bool            `json:"enabled"`
	Logic        string          `json:"logic"`
	Triggers     json.RawMessage `json:"triggers"`
	Actions      json.RawMessage `json:"actions"`
	ModeID       *string         `json:"modeId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	NextRun      *time.Time      `json:"nextRun,omitempty"`
	DecodeErrors []string        `json:"decodeErrors,omitempty"`
	Corrupt      string          `json:"corrupt,omitempty"`
}

// FromRecord renders a stored record
func FromRecord(rec *db.Record) (WorkflowResponse, error) {
	wf := rec.Workflow
	triggers, err := codec.EncodeTriggers(wf.Triggers)
	if err != nil {
		return WorkflowResponse{}, err
	}
	actions, err := codec.EncodeActions(wf.Actions)
	if err != nil {
		return WorkflowResponse{}, err
	}
	resp := WorkflowResponse{
		ID:        wf.ID,
		Name:      wf.Name,
		Enabled:   wf.Enabled,
		Logic:     wf.Logic,
		Triggers:  triggers,
		Actions:   actions,
		ModeID:    wf.ModeID,
		CreatedAt: wf.CreatedAt,
		UpdatedAt: wf.UpdatedAt,
	}
	for _, de := range rec.DecodeErrors {
		resp.DecodeErrors = append(resp.DecodeErrors, de.Error())
	}
	if rec.Corrupt != nil {
		resp.Corrupt = rec.Corrupt.Error()
	}
	return resp, nil
}
