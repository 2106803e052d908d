package geofence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"autoflow/internal/models"

	"go.uber.org/zap"
)

// Region is a circular area to watch
type Region struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
	OnEntry   bool    `json:"onEntry"`
	OnExit    bool    `json:"onExit"`
}

// RegionFromTrigger builds the watch region for a location trigger
func RegionFromTrigger(t models.LocationTrigger) Region {
	return Region{
		Latitude:  t.Latitude,
		Longitude: t.Longitude,
		Radius:    t.Radius,
		OnEntry:   t.TriggerOnEntry,
		OnExit:    t.TriggerOnExit,
	}
}

// WatchProvider is the platform side that actually watches regions
type WatchProvider interface {
	AddWatch(ctx context.Context, requestID string, r Region) error
	RemoveWatch(ctx context.Context, requestID string) error
}

// CapacityError is returned when arming would exceed the registration cap
type CapacityError struct {
	Limit      int
	WorkflowID string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("geofence limit of %d reached, cannot arm workflow %s", e.Limit, e.WorkflowID)
}

// Registration is one armed watch
type Registration struct {
	WorkflowID string
	RequestID  string
	Region     Region
	ArmedAt    time.Time
}

// Registry tracks armed watches and enforces the cap. All mutations are serialised.
type Registry struct {
	mu        sync.Mutex
	provider  WatchProvider
	watches   map[string]Registration
	max       int
	minRadius float64
	maxRadius float64
	logger    *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(provider WatchProvider, maxRegistrations int, minRadius, maxRadius float64, logger *zap.Logger) *Registry {
	return &Registry{
		provider:  provider,
		watches:   make(map[string]Registration),
		max:       maxRegistrations,
		minRadius: minRadius,
		maxRadius: maxRadius,
		logger:    logger,
	}
}

// Arm registers or replaces the watch for a workflow
func (r *Registry) Arm(ctx context.Context, workflowID string, region Region) error {
	if !region.OnEntry && !region.OnExit {
		return fmt.Errorf("arm %s: region has no transition types", workflowID)
	}
	region.Radius = math.Max(r.minRadius, math.Min(r.maxRadius, region.Radius))

	r.mu.Lock()
	defer r.mu.Unlock()

	_, rearm := r.watches[workflowID]
	if !rearm && len(r.watches) >= r.max {
		r.logger.Warn("geofence capacity reached",
			zap.String("workflow_id", workflowID), zap.Int("limit", r.max))
		return &CapacityError{Limit: r.max, WorkflowID: workflowID}
	}

	requestID := models.RegionID(workflowID)
	if err := r.provider.AddWatch(ctx, requestID, region); err != nil {
		return fmt.Errorf("arm %s: %w", workflowID, err)
	}
	r.watches[workflowID] = Registration{
		WorkflowID: workflowID,
		RequestID:  requestID,
		Region:     region,
		ArmedAt:    time.Now(),
	}
	r.logger.Info("geofence armed",
		zap.String("workflow_id", workflowID),
		zap.Float64("radius", region.Radius),
		zap.Bool("rearm", rearm))
	return nil
}

// Disarm removes the workflow's watch. Disarming an unknown workflow is a no-op.
func (r *Registry) Disarm(ctx context.Context, workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.watches[workflowID]
	if !ok {
		return nil
	}
	if err := r.provider.RemoveWatch(ctx, reg.RequestID); err != nil {
		return fmt.Errorf("disarm %s: %w", workflowID, err)
	}
	delete(r.watches, workflowID)
	r.logger.Info("geofence disarmed", zap.String("workflow_id", workflowID))
	return nil
}

// DisarmAll removes every watch. Provider failures are logged and returned
// joined; the registry ends up empty either way.
func (r *Registry) DisarmAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, reg := range r.watches {
		if err := r.provider.RemoveWatch(ctx, reg.RequestID); err != nil {
			r.logger.Error("geofence disarm failed", zap.String("workflow_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("disarm %s: %w", id, err))
		}
	}
	r.logger.Info("all geofences disarmed", zap.Int("count", len(r.watches)), zap.Int("failures", len(errs)))
	r.watches = make(map[string]Registration)
	return errors.Join(errs...)
}

// Count returns the number of armed watches
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}

// Armed returns the registration for a workflow
func (r *Registry) Armed(workflowID string) (Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.watches[workflowID]
	return reg, ok
}
