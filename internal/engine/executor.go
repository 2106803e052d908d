package engine

import (
	"context"
	"fmt"
	"time"

	"autoflow/internal/effectors"
	"autoflow/internal/models"

	"go.uber.org/zap"
)

// Scanner probes for a nearby BLE device
type Scanner interface {
	Scan(ctx context.Context, address string) (bool, error)
}

// ExecutionResult summarises one run of a workflow's actions
type ExecutionResult struct {
	WorkflowID string
	Executed   int
	Failed     int
	Skipped    int
	Errors     []*ExecutionError
}

// OK reports whether every attempted action succeeded
func (r ExecutionResult) OK() bool {
	return r.Failed == 0
}

// Executor runs actions against the device effectors
type Executor struct {
	effectors    effectors.Effectors
	scanner      Scanner
	window       time.Duration
	probeTimeout time.Duration
	metrics      *Metrics
	logger       *zap.Logger
}

// NewExecutor creates an Executor. scanner may be nil when probing is unsupported.
func NewExecutor(eff effectors.Effectors, scanner Scanner, window, probeTimeout time.Duration, metrics *Metrics, logger *zap.Logger) *Executor {
	return &Executor{
		effectors:    eff,
		scanner:      scanner,
		window:       window,
		probeTimeout: probeTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

// Execute runs the workflow's actions in order. A failed action does not stop the rest.
func (x *Executor) Execute(ctx context.Context, wf *models.Workflow) ExecutionResult {
	res := ExecutionResult{WorkflowID: wf.ID}
	for i, a := range wf.Actions {
		if a == nil {
			res.Skipped++
			continue
		}
		log := x.logger.With(
			zap.String("workflow_id", wf.ID),
			zap.Int("action_index", i),
			zap.String("action_type", a.Type()))

		if !x.effectors.Permitted(a.Type()) {
			res.Failed++
			res.Errors = append(res.Errors, &ExecutionError{WorkflowID: wf.ID, ActionIndex: i, ActionType: a.Type(), Err: effectors.ErrNotPermitted})
			x.metrics.action(a.Type(), "denied")
			log.Warn("action not permitted")
			continue
		}

		handled, err := x.run(ctx, wf, a)
		switch {
		case !handled:
			res.Skipped++
			x.metrics.action(a.Type(), "skipped")
			log.Warn("unsupported action skipped")
		case err != nil:
			res.Failed++
			res.Errors = append(res.Errors, &ExecutionError{WorkflowID: wf.ID, ActionIndex: i, ActionType: a.Type(), Err: err})
			x.metrics.action(a.Type(), "failed")
			log.Error("action failed", zap.Error(err))
		default:
			res.Executed++
			x.metrics.action(a.Type(), "ok")
			log.Debug("action executed")
		}
	}

	x.logger.Info("workflow executed",
		zap.String("workflow_id", wf.ID),
		zap.Int("executed", res.Executed),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped))
	return res
}

// run maps one action to its effector call. handled is false for unknown actions.
func (x *Executor) run(ctx context.Context, wf *models.Workflow, a models.Action) (handled bool, err error) {
	switch ac := a.(type) {
	case models.NotificationAction:
		return true, x.effectors.Notify(ctx, ac.Title, ac.Message, ac.Priority)
	case models.SoundModeAction:
		return true, x.effectors.SetSoundMode(ctx, ac.Mode)
	case models.WiFiToggleAction:
		return true, x.effectors.SetWiFi(ctx, ac.Enabled)
	case models.BluetoothToggleAction:
		return true, x.effectors.SetBluetooth(ctx, ac.Enabled)
	case models.BlockAppsAction:
		return true, x.effectors.BlockApps(ctx, ac.Packages, ac.Duration)
	case models.UnblockAppsAction:
		return true, x.effectors.UnblockApps(ctx)
	case models.RunScriptAction:
		return true, x.effectors.RunScript(ctx, ac.Content)
	case models.BrightnessAction:
		return true, x.effectors.SetBrightness(ctx, ac.Level)
	case models.VolumeAction:
		return true, x.effectors.SetVolume(ctx, ac.Level)
	}
	return false, nil
}

// CheckWindow returns ErrNotYet before target and a *ScheduleMiss once the
// match window after target has passed
func (x *Executor) CheckWindow(target, now time.Time) error {
	if now.Before(target) {
		return ErrNotYet
	}
	if late := now.Sub(target); late > x.window {
		return &ScheduleMiss{Target: target, Late: late}
	}
	return nil
}

// Probe scans for address, giving up after the probe timeout
func (x *Executor) Probe(ctx context.Context, workflowID, address string) (bool, error) {
	if x.scanner == nil {
		return false, &ExecutionError{WorkflowID: workflowID, ActionIndex: -1, ActionType: models.TriggerBluetooth, Err: fmt.Errorf("no scanner configured")}
	}
	ctx, cancel := context.WithTimeout(ctx, x.probeTimeout)
	defer cancel()

	found, err := x.scanner.Scan(ctx, address)
	if err != nil {
		x.logger.Warn("bluetooth probe failed",
			zap.String("workflow_id", workflowID),
			zap.String("address", address),
			zap.Error(err))
		return false, &ExecutionError{WorkflowID: workflowID, ActionIndex: -1, ActionType: models.TriggerBluetooth, Err: err}
	}
	return found, nil
}
