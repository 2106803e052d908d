package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQueueFull is returned by Submit when the event queue is saturated
	ErrQueueFull = errors.New("event queue full")
	// ErrNotYet is returned for an alarm callback that arrives before its target
	ErrNotYet = errors.New("target time not reached")
	// ErrWorkflowDisabled is returned when running a disabled workflow
	ErrWorkflowDisabled = errors.New("workflow is disabled")
	// ErrStopped is returned by Submit after Stop
	ErrStopped = errors.New("engine stopped")
)

// ExecutionError records one failed action
type ExecutionError struct {
	WorkflowID  string
	ActionIndex int
	ActionType  string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("workflow %s action %d (%s): %v", e.WorkflowID, e.ActionIndex, e.ActionType, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ScheduleMiss is returned when a time callback fires after its window closed. It is terminal.
type ScheduleMiss struct {
	WorkflowID string
	Target     time.Time
	Late       time.Duration
}

func (e *ScheduleMiss) Error() string {
	return fmt.Sprintf("workflow %s missed schedule %s by %s", e.WorkflowID, e.Target.Format(time.RFC3339), e.Late)
}
