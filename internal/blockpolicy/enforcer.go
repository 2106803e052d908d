package blockpolicy

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ForegroundMonitor reports the package currently in the foreground
type ForegroundMonitor interface {
	ForegroundApp(ctx context.Context) (string, error)
}

// Enforcer polls the foreground app and reports blocked ones
type Enforcer struct {
	store     *Store
	monitor   ForegroundMonitor
	interval  time.Duration
	onBlocked func(ctx context.Context, pkg string)
	logger    *zap.Logger

	last string
}

// NewEnforcer creates an Enforcer. onBlocked is called once each time a blocked
// package comes to the foreground.
func NewEnforcer(store *Store, monitor ForegroundMonitor, interval time.Duration, onBlocked func(ctx context.Context, pkg string), logger *zap.Logger) *Enforcer {
	return &Enforcer{store: store, monitor: monitor, interval: interval, onBlocked: onBlocked, logger: logger}
}

// Run polls until ctx is done
func (e *Enforcer) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Check(ctx)
		}
	}
}

// Check runs one poll and returns the blocked foreground package, if any
func (e *Enforcer) Check(ctx context.Context) (string, bool) {
	pkg, err := e.monitor.ForegroundApp(ctx)
	if err != nil {
		e.logger.Debug("foreground app unavailable", zap.Error(err))
		return "", false
	}
	if pkg == "" || !e.store.IsBlocked(pkg) {
		e.last = ""
		return "", false
	}
	if pkg != e.last {
		e.last = pkg
		e.logger.Info("blocked app in foreground", zap.String("package", pkg))
		if e.onBlocked != nil {
			e.onBlocked(ctx, pkg)
		}
	}
	return pkg, true
}
