package sandbox

import (
	"context"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"sandrun/internal/sandbox/hostapi"
	"sandrun/internal/sbxerr"
)

// Session keeps one runtime alive across evaluations, for the interactive
// fallback. Interception is installed once; each evaluation is governed
// separately so a slow line hits the wall deadline without killing the
// session's state.
type Session struct {
	runner *Runner
	vm     *goja.Runtime
}

// NewSession builds an intercepted runtime with no script loaded.
func (r *Runner) NewSession(ctx context.Context) (*Session, error) {
	vm := goja.New()

	hctx := &hostapi.Context{
		Ctx:         ctx,
		Policy:      r.opts.Policy,
		Logger:      r.opts.Logger,
		ScriptName:  "repl",
		ExecutionID: uuid.NewString(),
		Config:      r.opts.Files,
		Stdout:      r.opts.Stdout,
		Stderr:      r.opts.Stderr,
	}
	hctx.SetStdin(r.opts.Stdin)

	if err := r.interceptor.Install(vm, hctx); err != nil {
		return nil, &sbxerr.ExecutionError{Script: "repl", Cause: err}
	}
	return &Session{runner: r, vm: vm}, nil
}

// Eval runs one line and returns its value's display form, empty for
// undefined. Errors follow the sbxerr taxonomy.
func (s *Session) Eval(line string) (string, error) {
	release, err := s.runner.governor.Install(s.vm)
	if err != nil {
		return "", err
	}
	defer release()

	v, err := s.vm.RunScript("repl", line)
	if err != nil {
		return "", mapRunError(err, "repl")
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	return v.String(), nil
}

// Close removes the host surface from the session runtime.
func (s *Session) Close() {
	s.runner.interceptor.Uninstall(s.vm)
}
