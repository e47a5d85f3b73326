package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sandrun/internal/extension"
	"sandrun/internal/namespace"
	"sandrun/internal/policy"
	"sandrun/internal/sandbox/hostapi"
	"sandrun/internal/sbxerr"
)

// Options configures a Runner.
type Options struct {
	Policy    *policy.Policy
	Limits    Limits
	Resolver  *namespace.Resolver
	ExtAllow  []string
	Extension extension.Context
	Files     hostapi.Config
	Logger    zerolog.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes scripts under interception and governance. One Runner
// serves one process instance; executions are sequential.
type Runner struct {
	opts        Options
	interceptor *Interceptor
	governor    *Governor
}

// NewRunner builds a Runner. The policy is validated here so an
// inconsistent deny-list never reaches an execution.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Policy == nil {
		opts.Policy = policy.Default()
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		opts:        opts,
		interceptor: NewInterceptor(opts.Policy, opts.Resolver, opts.ExtAllow, opts.Extension, opts.Logger),
		governor:    NewGovernor(opts.Limits, opts.Logger),
	}, nil
}

// Execute runs one script source under full interception and governance.
// The returned error, if any, is one of the sbxerr taxonomy.
func (r *Runner) Execute(ctx context.Context, src, scriptName string) error {
	vm := goja.New()

	release, err := r.governor.Install(vm)
	if err != nil {
		return err
	}
	// Governor teardown runs on every exit path, fault included.
	defer release()

	executionID := uuid.NewString()
	hctx := &hostapi.Context{
		Ctx:         ctx,
		Policy:      r.opts.Policy,
		Logger:      r.opts.Logger,
		ScriptName:  scriptName,
		ExecutionID: executionID,
		Config:      r.opts.Files,
		Stdout:      r.opts.Stdout,
		Stderr:      r.opts.Stderr,
	}
	hctx.SetStdin(r.opts.Stdin)
	r.opts.Logger.Debug().Str("execution_id", executionID).Str("script", scriptName).Msg("execution starting")

	if err := r.interceptor.Install(vm, hctx); err != nil {
		return &sbxerr.ExecutionError{Script: scriptName, Cause: err}
	}
	defer r.interceptor.Uninstall(vm)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(&sbxerr.ExecutionError{Script: scriptName, Cause: ctx.Err()})
		case <-done:
		}
	}()

	_, err = vm.RunScript(scriptName, src)
	return mapRunError(err, scriptName)
}

// ExecuteFile reads a file and executes its contents as one unit.
func (r *Runner) ExecuteFile(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return &sbxerr.ExecutionError{Script: path, Cause: fmt.Errorf("read script file: %w", err)}
	}
	return r.Execute(ctx, string(content), filepath.Base(path))
}

// ExecuteModule resolves a module by name and runs it as the entry point.
func (r *Runner) ExecuteModule(ctx context.Context, name string) error {
	if r.opts.Resolver == nil {
		return &sbxerr.ExecutionError{Script: name, Cause: sbxerr.ErrModuleNotFound}
	}
	// The entry require goes through the same interceptor path as any
	// in-script import, so policy and isolation apply unchanged.
	return r.Execute(ctx, fmt.Sprintf("require(%q);", name), name)
}

// mapRunError converts interpreter errors into the sandbox error taxonomy.
func mapRunError(err error, scriptName string) error {
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		switch v := interrupted.Value().(type) {
		case *sbxerr.TimeoutError:
			return v
		case *sbxerr.ResourceExceededError:
			return v
		case *sbxerr.ExecutionError:
			return v
		default:
			return &sbxerr.ExecutionError{Script: scriptName, Cause: fmt.Errorf("interrupted: %v", interrupted.Value())}
		}
	}

	var stackOverflow *goja.StackOverflowError
	if errors.As(err, &stackOverflow) {
		return &sbxerr.ResourceExceededError{Kind: sbxerr.LimitStack}
	}

	var syntaxErr *goja.CompilerSyntaxError
	if errors.As(err, &syntaxErr) {
		return &sbxerr.ScriptSyntaxError{File: scriptName, Message: syntaxErr.Error()}
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		if v := exception.Value(); v != nil {
			if denied, ok := v.Export().(*sbxerr.CapabilityDeniedError); ok {
				return denied
			}
		}
		return &sbxerr.ExecutionError{Script: scriptName, Cause: fmt.Errorf("exception: %s", exception.String())}
	}

	return &sbxerr.ExecutionError{Script: scriptName, Cause: err}
}
