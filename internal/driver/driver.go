package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"sandrun/internal/audit"
	"sandrun/internal/sandbox"
	"sandrun/internal/sbxerr"
)

// Options configures a Driver.
type Options struct {
	Runner   *sandbox.Runner
	Recorder *audit.Recorder
	Version  string
	Logger   zerolog.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Driver resolves the invocation mode and runs exactly one execution.
// Script output goes to stdout; every fault message goes to stderr.
type Driver struct {
	opts Options
}

// New builds a Driver. Nil streams default to the process streams.
func New(opts Options) *Driver {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Driver{opts: opts}
}

// Run executes the invocation described by argv and returns its terminal
// outcome. Faults are printed here, once, at the boundary; callers only
// propagate the exit code.
func (d *Driver) Run(ctx context.Context, argv []string) Outcome {
	req, err := ResolveMode(argv)
	if err != nil {
		fmt.Fprintf(d.opts.Stderr, "sandrun: %v\n", err)
		return Outcome{Status: StatusRuntimeError, Detail: err.Error(), ExitCode: 1}
	}

	d.opts.Logger.Debug().Str("mode", string(req.Mode)).Msg("invocation resolved")
	start := time.Now()

	var runErr error
	switch req.Mode {
	case ModeVersion:
		fmt.Fprintf(d.opts.Stdout, "sandrun %s (goja)\n", d.opts.Version)
		return Outcome{Status: StatusCompleted}
	case ModePassthrough:
		out := d.passthrough(req)
		d.record(req, out, start)
		return out
	case ModeStream:
		runErr = d.runStream(ctx)
	case ModeInline:
		runErr = d.opts.Runner.Execute(ctx, req.Payload, "<inline>")
	case ModeModule:
		runErr = d.opts.Runner.ExecuteModule(ctx, req.Payload)
	case ModeFile:
		runErr = d.opts.Runner.ExecuteFile(ctx, req.Payload)
	}

	out := outcomeFromError(runErr)
	if out.ExitCode != 0 {
		fmt.Fprintf(d.opts.Stderr, "sandrun: %v\n", runErr)
	}
	d.record(req, out, start)
	return out
}

// runStream executes the whole input stream as one unit. An empty stream
// falls back to the interactive loop on a terminal and is a no-op
// otherwise.
func (d *Driver) runStream(ctx context.Context) error {
	src, err := readStream(d.opts.Stdin)
	if errors.Is(err, sbxerr.ErrEmptyStream) {
		if stdinIsTerminal(d.opts.Stdin) {
			return d.repl(ctx)
		}
		return nil
	}
	if err != nil {
		return &sbxerr.ExecutionError{Script: "<stdin>", Cause: err}
	}
	return d.opts.Runner.Execute(ctx, src, "<stdin>")
}

func readStream(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", sbxerr.ErrEmptyStream
	}
	return string(data), nil
}

// passthrough hands the vector to a bare runtime with no interception and
// no governance. The first non-flag argument is the script; unknown flags
// before it are not interpreted.
func (d *Driver) passthrough(req Request) Outcome {
	var script string
	for _, arg := range req.Argv {
		if arg != "" && arg[0] != '-' {
			script = arg
			break
		}
	}
	if script == "" {
		err := fmt.Errorf("unsupported flag: %s", req.Argv[0])
		fmt.Fprintf(d.opts.Stderr, "sandrun: %v\n", err)
		return Outcome{Status: StatusRuntimeError, Detail: err.Error(), ExitCode: 1}
	}

	src, err := os.ReadFile(script)
	if err != nil {
		fmt.Fprintf(d.opts.Stderr, "sandrun: %v\n", err)
		return Outcome{Status: StatusRuntimeError, Detail: err.Error(), ExitCode: 1}
	}

	vm := goja.New()
	_ = vm.Set("print", func(args ...interface{}) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		fmt.Fprintln(d.opts.Stdout, strings.Join(parts, " "))
	})

	if _, err := vm.RunScript(script, string(src)); err != nil {
		fmt.Fprintf(d.opts.Stderr, "sandrun: %v\n", err)
		return Outcome{Status: StatusRuntimeError, Detail: err.Error(), ExitCode: 1}
	}
	return Outcome{Status: StatusCompleted}
}

// record writes the audit entry. Best-effort; a nil recorder is inert.
func (d *Driver) record(req Request, out Outcome, start time.Time) {
	script := req.Payload
	if script == "" {
		script = "<stdin>"
	}
	d.opts.Recorder.Record(audit.Entry{
		StartedAt: start,
		Mode:      string(req.Mode),
		Script:    script,
		Status:    string(out.Status),
		Detail:    out.Detail,
		ExitCode:  out.ExitCode,
		Duration:  time.Since(start),
	})
}
