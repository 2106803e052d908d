package effectors

import (
	"context"
	"fmt"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"go.uber.org/zap"
)

// ScriptRunner executes RUN_SCRIPT actions with Tengo. Scripts get the text,
// math and times modules plus notify(title, message) and log(...).
type ScriptRunner struct {
	timeout time.Duration
	notify  func(ctx context.Context, title, message, priority string) error
	logger  *zap.Logger
}

// NewScriptRunner creates a runner. notify may be nil.
func NewScriptRunner(timeout time.Duration, notify func(ctx context.Context, title, message, priority string) error, logger *zap.Logger) *ScriptRunner {
	return &ScriptRunner{timeout: timeout, notify: notify, logger: logger}
}

// Run compiles and runs content, aborting when the timeout elapses
func (r *ScriptRunner) Run(ctx context.Context, content string) error {
	script := tengo.NewScript([]byte(content))
	script.SetImports(stdlib.GetModuleMap("text", "math", "times"))

	if err := script.Add("notify", &tengo.UserFunction{
		Name: "notify",
		Value: func(args ...tengo.Object) (tengo.Object, error) {
			if len(args) != 2 {
				return nil, tengo.ErrWrongNumArguments
			}
			title, ok1 := tengo.ToString(args[0])
			message, ok2 := tengo.ToString(args[1])
			if !ok1 || !ok2 {
				return nil, tengo.ErrInvalidArgumentType{Name: "title", Expected: "string", Found: args[0].TypeName()}
			}
			if r.notify == nil {
				return tengo.FalseValue, nil
			}
			if err := r.notify(ctx, title, message, ""); err != nil {
				r.logger.Warn("script notify failed", zap.Error(err))
				return tengo.FalseValue, nil
			}
			return tengo.TrueValue, nil
		},
	}); err != nil {
		return fmt.Errorf("bind notify: %w", err)
	}

	if err := script.Add("log", &tengo.UserFunction{
		Name: "log",
		Value: func(args ...tengo.Object) (tengo.Object, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				s, _ := tengo.ToString(a)
				parts[i] = s
			}
			r.logger.Info("script log", zap.Strings("args", parts))
			return tengo.UndefinedValue, nil
		},
	}); err != nil {
		return fmt.Errorf("bind log: %w", err)
	}

	compiled, err := script.Compile()
	if err != nil {
		return fmt.Errorf("compile script: %w", err)
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if err := compiled.RunContext(runCtx); err != nil {
		return fmt.Errorf("run script: %w", err)
	}
	return nil
}
