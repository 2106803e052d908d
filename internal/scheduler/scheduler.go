package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"autoflow/internal/automation"
	"autoflow/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// AlarmBackend delivers a fired schedule to whoever evaluates it
type AlarmBackend interface {
	ScheduleAlarm(ctx context.Context, workflowID string, target time.Time) error
}

// AlarmFunc adapts a function to AlarmBackend
type AlarmFunc func(ctx context.Context, workflowID string, target time.Time) error

// ScheduleAlarm calls f
func (f AlarmFunc) ScheduleAlarm(ctx context.Context, workflowID string, target time.Time) error {
	return f(ctx, workflowID, target)
}

// Scheduler keeps one cron entry per time trigger of every enabled workflow
type Scheduler struct {
	cron       *cron.Cron
	backend    AlarmBackend
	loc        *time.Location
	logger     *zap.Logger
	clock      func() time.Time
	jobMap     map[string]cron.EntryID // schedule id -> cron entry
	byWorkflow map[string][]string     // workflow id -> schedule ids
	jobMapMux  sync.RWMutex
}

// NewScheduler creates a scheduler that evaluates cron expressions in loc
func NewScheduler(backend AlarmBackend, loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(loc)),
		backend:    backend,
		loc:        loc,
		logger:     logger,
		clock:      time.Now,
		jobMap:     make(map[string]cron.EntryID),
		byWorkflow: make(map[string][]string),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron scheduler started", zap.String("location", s.loc.String()))
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("cron scheduler stopped")
}

func (s *Scheduler) fire(sch automation.Schedule) func() {
	workflowID := sch.WorkflowID
	scheduleID := sch.ID()
	return func() {
		target := s.clock().In(s.loc).Truncate(time.Minute)
		s.logger.Debug("schedule fired",
			zap.String("schedule_id", scheduleID),
			zap.Time("target", target))
		if err := s.backend.ScheduleAlarm(context.Background(), workflowID, target); err != nil {
			s.logger.Error("failed to schedule alarm",
				zap.String("workflow_id", workflowID),
				zap.String("schedule_id", scheduleID),
				zap.Error(err))
		}
	}
}

// AddOrUpdateWorkflow replaces the workflow's cron entries. Disabled workflows
// and workflows without time triggers end up with none.
func (s *Scheduler) AddOrUpdateWorkflow(wf *models.Workflow) error {
	s.RemoveWorkflow(wf.ID)
	if !wf.Enabled {
		return nil
	}
	return s.addSchedules(wf.ID, automation.ExtractSchedules(wf))
}

// addSchedules registers all of a workflow's schedules or, if one fails, none
func (s *Scheduler) addSchedules(workflowID string, schedules []automation.Schedule) error {
	s.jobMapMux.Lock()
	defer s.jobMapMux.Unlock()

	for _, sch := range schedules {
		spec := sch.CronExpression()
		entryID, err := s.cron.AddFunc(spec, s.fire(sch))
		if err != nil {
			s.logger.Error("failed to add schedule",
				zap.String("schedule_id", sch.ID()),
				zap.String("cron", spec),
				zap.Error(err))
			s.removeLocked(workflowID)
			return err
		}
		s.jobMap[sch.ID()] = entryID
		s.byWorkflow[workflowID] = append(s.byWorkflow[workflowID], sch.ID())
		s.logger.Info("schedule added",
			zap.String("schedule_id", sch.ID()),
			zap.String("cron", spec),
			zap.Int("entry_id", int(entryID)))
	}
	return nil
}

// RemoveWorkflow drops every cron entry belonging to a workflow
func (s *Scheduler) RemoveWorkflow(workflowID string) {
	s.jobMapMux.Lock()
	defer s.jobMapMux.Unlock()
	s.removeLocked(workflowID)
}

func (s *Scheduler) removeLocked(workflowID string) {
	for _, scheduleID := range s.byWorkflow[workflowID] {
		if entryID, ok := s.jobMap[scheduleID]; ok {
			s.cron.Remove(entryID)
			delete(s.jobMap, scheduleID)
			s.logger.Debug("schedule removed", zap.String("schedule_id", scheduleID))
		}
	}
	delete(s.byWorkflow, workflowID)
}

// ReloadWorkflows drops every cron entry and schedules wfs from scratch.
// Workflows that fail to schedule are skipped and reported together.
func (s *Scheduler) ReloadWorkflows(wfs []*models.Workflow) error {
	s.jobMapMux.Lock()
	for _, entryID := range s.jobMap {
		s.cron.Remove(entryID)
	}
	s.jobMap = make(map[string]cron.EntryID)
	s.byWorkflow = make(map[string][]string)
	s.jobMapMux.Unlock()

	var errs []error
	for _, wf := range wfs {
		if err := s.AddOrUpdateWorkflow(wf); err != nil {
			errs = append(errs, fmt.Errorf("schedule workflow %s: %w", wf.ID, err))
		}
	}
	s.logger.Info("schedules reloaded", zap.Int("workflows", len(wfs)), zap.Int("jobs", s.JobCount()))
	return errors.Join(errs...)
}

// JobCount returns the number of scheduled cron entries
func (s *Scheduler) JobCount() int {
	s.jobMapMux.RLock()
	defer s.jobMapMux.RUnlock()
	return len(s.jobMap)
}

// Next returns the next fire time of a workflow's earliest schedule
func (s *Scheduler) Next(workflowID string) (time.Time, bool) {
	s.jobMapMux.RLock()
	defer s.jobMapMux.RUnlock()

	var next time.Time
	for _, scheduleID := range s.byWorkflow[workflowID] {
		entry := s.cron.Entry(s.jobMap[scheduleID])
		t := entry.Schedule.Next(s.clock().In(s.loc))
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next, !next.IsZero()
}
