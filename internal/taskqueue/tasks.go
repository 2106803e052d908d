package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TypeAlarmFire is the task type of a time trigger alarm
const TypeAlarmFire = "alarm:fire"

// AlarmPayload identifies the workflow to evaluate and the minute it was scheduled for
type AlarmPayload struct {
	WorkflowID string    `json:"workflowId"`
	Target     time.Time `json:"target"`
}

// NewAlarmTask builds the task for one alarm
func NewAlarmTask(workflowID string, target time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(AlarmPayload{WorkflowID: workflowID, Target: target})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAlarmFire, payload), nil
}

// alarmTaskID dedupes alarms for the same workflow and minute
func alarmTaskID(workflowID string, target time.Time) string {
	return fmt.Sprintf("alarm:%s:%d", workflowID, target.Unix())
}

// Queue enqueues alarms on the Redis-backed task queue
type Queue struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
	logger   *zap.Logger
}

// NewQueue connects an asynq client to redisAddr
func NewQueue(redisAddr string, maxRetry int, timeout time.Duration, logger *zap.Logger) *Queue {
	return &Queue{
		client:   asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		maxRetry: maxRetry,
		timeout:  timeout,
		logger:   logger,
	}
}

// ScheduleAlarm enqueues an alarm to be processed at target. Scheduling the
// same workflow and minute twice is a no-op.
func (q *Queue) ScheduleAlarm(ctx context.Context, workflowID string, target time.Time) error {
	task, err := NewAlarmTask(workflowID, target)
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(target),
		asynq.TaskID(alarmTaskID(workflowID, target)),
		asynq.MaxRetry(q.maxRetry),
		asynq.Timeout(q.timeout))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		q.logger.Debug("alarm already queued", zap.String("workflow_id", workflowID), zap.Time("target", target))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue alarm for %s: %w", workflowID, err)
	}
	q.logger.Debug("alarm queued",
		zap.String("task_id", info.ID),
		zap.String("workflow_id", workflowID),
		zap.Time("target", target))
	return nil
}

// Close releases the client connection
func (q *Queue) Close() error {
	return q.client.Close()
}
