package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"autoflow/internal/db"
	"autoflow/internal/geofence"
	"autoflow/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkflowSource is the read side of the workflow store
type WorkflowSource interface {
	List(ctx context.Context, enabledOnly bool) ([]*db.Record, error)
	Get(ctx context.Context, id string) (*db.Record, error)
}

// Geofences arms and disarms location watches
type Geofences interface {
	Arm(ctx context.Context, workflowID string, region geofence.Region) error
	Disarm(ctx context.Context, workflowID string) error
	DisarmAll(ctx context.Context) error
	Count() int
}

// Schedules keeps cron entries for time triggers in sync with workflows
type Schedules interface {
	AddOrUpdateWorkflow(wf *models.Workflow) error
	RemoveWorkflow(workflowID string)
	ReloadWorkflows(wfs []*models.Workflow) error
}

// CallHandler reacts to call state changes outside workflow matching
type CallHandler interface {
	HandleCall(ctx context.Context, ev models.Event) error
}

// Options wires an Engine. State, Geofences, Schedules and Calls are optional.
type Options struct {
	Store     WorkflowSource
	Matcher   *Matcher
	Executor  *Executor
	State     TriggerState
	Geofences Geofences
	Schedules Schedules
	Calls     CallHandler
	Metrics   *Metrics
	Logger    *zap.Logger
	Workers   int
	QueueSize int
}

// DispatchResult describes one evaluation pass
type DispatchResult struct {
	EventID   string
	Evaluated int
	Skipped   int
	Matched   []string
	Results   []ExecutionResult
}

// Engine dispatches events to matching workflows
type Engine struct {
	store     WorkflowSource
	matcher   *Matcher
	executor  *Executor
	state     TriggerState
	geofences Geofences
	schedules Schedules
	calls     CallHandler
	metrics   *Metrics
	logger    *zap.Logger
	clock     func() time.Time

	workers  int
	queue    chan models.Event
	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewEngine creates an engine; call Start to begin draining the queue
func NewEngine(opts Options) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		store:     opts.Store,
		matcher:   opts.Matcher,
		executor:  opts.Executor,
		state:     opts.State,
		geofences: opts.Geofences,
		schedules: opts.Schedules,
		calls:     opts.Calls,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		clock:     time.Now,
		workers:   opts.Workers,
		queue:     make(chan models.Event, opts.QueueSize),
		quit:      make(chan struct{}),
	}
}

// Start restores geofences and schedules from the store and starts the workers
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Restore(ctx); err != nil {
		return err
	}
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	e.logger.Info("engine started", zap.Int("workers", e.workers), zap.Int("queue_size", cap(e.queue)))
	return nil
}

// Stop stops the workers. Events still queued are dropped; an evaluation in
// progress runs to completion.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.quit)
		e.wg.Wait()
		e.logger.Info("engine stopped", zap.Int("dropped_events", len(e.queue)))
	})
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.quit:
			return
		case ev := <-e.queue:
			if _, err := e.OnEvent(context.Background(), ev); err != nil {
				e.logger.Error("evaluation pass failed",
					zap.String("event_id", ev.ID),
					zap.String("event_kind", ev.Kind),
					zap.Error(err))
			}
		}
	}
}

// Submit queues an event for evaluation without blocking the caller
func (e *Engine) Submit(ev models.Event) error {
	select {
	case <-e.quit:
		return ErrStopped
	default:
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = e.clock()
	}
	select {
	case e.queue <- ev:
		return nil
	default:
		e.logger.Warn("event dropped, queue full", zap.String("event_kind", ev.Kind))
		return ErrQueueFull
	}
}

func (e *Engine) candidates(ctx context.Context, ev models.Event) ([]*db.Record, error) {
	if ev.WorkflowID == "" {
		return e.store.List(ctx, true)
	}
	rec, err := e.store.Get(ctx, ev.WorkflowID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []*db.Record{rec}, nil
}

// OnEvent runs one evaluation pass: load enabled workflows, match, execute.
// A store failure aborts the pass; a bad workflow only skips itself.
func (e *Engine) OnEvent(ctx context.Context, ev models.Event) (DispatchResult, error) {
	res := DispatchResult{EventID: ev.ID}
	e.metrics.event(ev.Kind)

	if ev.Kind == models.EventCall && e.calls != nil {
		if err := e.calls.HandleCall(ctx, ev); err != nil {
			e.logger.Warn("call handling failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}

	records, err := e.candidates(ctx, ev)
	if err != nil {
		return res, fmt.Errorf("load workflows: %w", err)
	}

	var matched []*models.Workflow
	for _, rec := range records {
		wf := rec.Workflow
		log := e.logger.With(zap.String("workflow_id", wf.ID), zap.String("event_kind", ev.Kind))

		switch {
		case rec.Corrupt != nil:
			log.Warn("skipping workflow with unreadable trigger list", zap.Error(rec.Corrupt))
			res.Skipped++
			continue
		case !wf.Enabled:
			continue
		case len(wf.Triggers) == 0:
			log.Warn("skipping workflow without usable triggers", zap.Int("decode_errors", len(rec.DecodeErrors)))
			res.Skipped++
			continue
		}

		wf.BindRegions()
		res.Evaluated++
		fired, err := e.matcher.Evaluate(ctx, wf, ev, e.state)
		if err != nil {
			log.Warn("trigger state unavailable", zap.Error(err))
		}
		if fired {
			matched = append(matched, wf)
		}
	}

	for _, wf := range matched {
		e.metrics.workflowMatched()
		res.Matched = append(res.Matched, wf.ID)
		e.logger.Info("workflow matched",
			zap.String("workflow_id", wf.ID),
			zap.String("workflow_name", wf.Name),
			zap.String("event_kind", ev.Kind))
		res.Results = append(res.Results, e.executor.Execute(ctx, wf))
	}
	return res, nil
}

// RunNow executes a workflow's actions immediately, bypassing trigger matching
func (e *Engine) RunNow(ctx context.Context, workflowID string) (ExecutionResult, error) {
	rec, err := e.store.Get(ctx, workflowID)
	if err != nil {
		return ExecutionResult{}, err
	}
	if !rec.Workflow.Enabled {
		return ExecutionResult{}, ErrWorkflowDisabled
	}
	e.logger.Info("manual run", zap.String("workflow_id", workflowID))
	return e.executor.Execute(ctx, rec.Workflow), nil
}

// ScanAndRun probes for the workflow's Bluetooth device and, when it is found,
// evaluates the workflow against the sighting. A nil result means not found.
func (e *Engine) ScanAndRun(ctx context.Context, workflowID string) (*DispatchResult, error) {
	rec, err := e.store.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !rec.Workflow.Enabled {
		return nil, ErrWorkflowDisabled
	}

	var target *models.BluetoothTrigger
	for _, t := range rec.Workflow.Triggers {
		if bt, ok := t.(models.BluetoothTrigger); ok && bt.DeviceAddress != "" {
			target = &bt
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("workflow %s has no bluetooth device address to probe", workflowID)
	}

	found, err := e.executor.Probe(ctx, workflowID, target.DeviceAddress)
	if err != nil {
		return nil, err
	}
	if !found {
		e.logger.Info("bluetooth device not found", zap.String("workflow_id", workflowID))
		return nil, nil
	}

	fields := map[string]string{models.FieldAddress: target.DeviceAddress}
	if target.DeviceName != nil {
		fields[models.FieldName] = *target.DeviceName
	}
	res, err := e.OnEvent(ctx, models.Event{
		ID:         uuid.NewString(),
		Kind:       models.EventBluetooth,
		Fields:     fields,
		WorkflowID: workflowID,
		ReceivedAt: e.clock(),
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// HandleAlarm is the alarm backend callback for a time trigger. It returns
// ErrNotYet before target and *ScheduleMiss once the window has passed.
func (e *Engine) HandleAlarm(ctx context.Context, workflowID string, target time.Time) error {
	if err := e.executor.CheckWindow(target, e.clock()); err != nil {
		var miss *ScheduleMiss
		if errors.As(err, &miss) {
			miss.WorkflowID = workflowID
			e.logger.Warn("schedule missed",
				zap.String("workflow_id", workflowID),
				zap.Time("target", target),
				zap.Duration("late", miss.Late))
		}
		return err
	}

	res, err := e.OnEvent(ctx, models.Event{
		ID:         uuid.NewString(),
		Kind:       models.EventTime,
		Target:     target,
		WorkflowID: workflowID,
		ReceivedAt: e.clock(),
	})
	if err != nil {
		return err
	}
	if len(res.Matched) == 0 {
		e.logger.Debug("alarm did not match", zap.String("workflow_id", workflowID), zap.Time("target", target))
	}
	return nil
}

// WorkflowSaved brings geofences, schedules and trigger state in line with a
// created or edited workflow. A *geofence.CapacityError is returned as is.
func (e *Engine) WorkflowSaved(ctx context.Context, wf *models.Workflow) error {
	wf.BindRegions()
	var errs []error

	if err := e.syncGeofence(ctx, wf); err != nil {
		var capErr *geofence.CapacityError
		if errors.As(err, &capErr) {
			return err
		}
		errs = append(errs, err)
	}

	if e.schedules != nil {
		if err := e.schedules.AddOrUpdateWorkflow(wf); err != nil {
			errs = append(errs, err)
		}
	}

	if e.state != nil {
		if err := e.state.Reset(ctx, wf.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) syncGeofence(ctx context.Context, wf *models.Workflow) error {
	if e.geofences == nil {
		return nil
	}
	defer func() { e.metrics.armed(e.geofences.Count()) }()

	if lt, ok := wf.LocationTrigger(); ok && wf.Enabled {
		return e.geofences.Arm(ctx, wf.ID, geofence.RegionFromTrigger(lt))
	}
	return e.geofences.Disarm(ctx, wf.ID)
}

// WorkflowDeleted releases everything held for a workflow
func (e *Engine) WorkflowDeleted(ctx context.Context, workflowID string) error {
	var errs []error
	if e.geofences != nil {
		if err := e.geofences.Disarm(ctx, workflowID); err != nil {
			errs = append(errs, err)
		}
		e.metrics.armed(e.geofences.Count())
	}
	if e.schedules != nil {
		e.schedules.RemoveWorkflow(workflowID)
	}
	if e.state != nil {
		if err := e.state.Reset(ctx, workflowID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DisarmAll tears down every geofence watch
func (e *Engine) DisarmAll(ctx context.Context) error {
	if e.geofences == nil {
		return nil
	}
	err := e.geofences.DisarmAll(ctx)
	e.metrics.armed(e.geofences.Count())
	return err
}

// Restore arms geofences and reloads schedules for every enabled workflow.
// Individual failures are logged; only a store failure is returned.
func (e *Engine) Restore(ctx context.Context) error {
	records, err := e.store.List(ctx, true)
	if err != nil {
		return fmt.Errorf("restore workflows: %w", err)
	}

	var wfs []*models.Workflow
	for _, rec := range records {
		if rec.Corrupt != nil {
			continue
		}
		wf := rec.Workflow
		wf.BindRegions()
		if err := e.syncGeofence(ctx, wf); err != nil {
			e.logger.Warn("restore geofence failed", zap.String("workflow_id", wf.ID), zap.Error(err))
		}
		wfs = append(wfs, wf)
	}

	if e.schedules != nil {
		if err := e.schedules.ReloadWorkflows(wfs); err != nil {
			e.logger.Warn("some schedules could not be restored", zap.Error(err))
		}
	}
	e.logger.Info("workflows restored", zap.Int("restored", len(wfs)), zap.Int("total", len(records)))
	return nil
}
