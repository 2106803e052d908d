package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"autoflow/internal/engine"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// AlarmHandler evaluates a workflow for a fired alarm
type AlarmHandler interface {
	HandleAlarm(ctx context.Context, workflowID string, target time.Time) error
}

// Worker processes alarm tasks
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler AlarmHandler
	logger  *zap.Logger
}

// NewWorker creates a worker; call Start to begin processing
func NewWorker(redisAddr string, concurrency int, handler AlarmHandler, logger *zap.Logger) *Worker {
	w := &Worker{
		mux:     asynq.NewServeMux(),
		handler: handler,
		logger:  logger,
	}
	w.server = asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency:    concurrency,
		RetryDelayFunc: retryDelay,
		Logger:         logger.Sugar(),
	})
	w.mux.HandleFunc(TypeAlarmFire, w.HandleAlarmTask)
	return w
}

// Start starts processing in the background
func (w *Worker) Start() error {
	w.logger.Info("task workers starting")
	return w.server.Start(w.mux)
}

// Shutdown stops accepting tasks and waits for in-flight ones
func (w *Worker) Shutdown() {
	w.server.Shutdown()
	w.logger.Info("task workers stopped")
}

// HandleAlarmTask runs one alarm. An early alarm is retried; a missed one is
// dropped without retry.
func (w *Worker) HandleAlarmTask(ctx context.Context, t *asynq.Task) error {
	var p AlarmPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode alarm payload: %v: %w", err, asynq.SkipRetry)
	}

	err := w.handler.HandleAlarm(ctx, p.WorkflowID, p.Target)
	var miss *engine.ScheduleMiss
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrNotYet):
		w.logger.Debug("alarm early, retrying", zap.String("workflow_id", p.WorkflowID), zap.Time("target", p.Target))
		return err
	case errors.As(err, &miss):
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		w.logger.Error("alarm handling failed", zap.String("workflow_id", p.WorkflowID), zap.Error(err))
		return err
	}
}

// retryDelay retries an early alarm at its target and everything else with
// asynq's default backoff
func retryDelay(n int, err error, t *asynq.Task) time.Duration {
	if errors.Is(err, engine.ErrNotYet) {
		var p AlarmPayload
		if json.Unmarshal(t.Payload(), &p) == nil {
			if d := time.Until(p.Target); d > time.Second {
				return d
			}
		}
		return time.Second
	}
	return asynq.DefaultRetryDelayFunc(n, err, t)
}
