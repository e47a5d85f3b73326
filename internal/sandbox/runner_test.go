package sandbox

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sandrun/internal/policy"
	"sandrun/internal/sbxerr"
)

func newTestRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	opts.Logger = zerolog.Nop()
	r, err := NewRunner(opts)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	return r
}

func TestExecutePrintRoundTrip(t *testing.T) {
	var stdout bytes.Buffer
	r := newTestRunner(t, Options{Stdout: &stdout})

	if err := r.Execute(context.Background(), "print(1+1)", "inline"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "2" {
		t.Errorf("stdout = %q, want %q", got, "2")
	}
}

func TestHardDeniedImports(t *testing.T) {
	for _, module := range []string{"child_process", "net", "dgram", "vm", "worker_threads"} {
		t.Run(module, func(t *testing.T) {
			r := newTestRunner(t, Options{})
			err := r.Execute(context.Background(), "require('"+module+"')", "inline")

			var denied *sbxerr.CapabilityDeniedError
			if !errors.As(err, &denied) {
				t.Fatalf("expected CapabilityDeniedError, got %v", err)
			}
			if denied.Capability != module {
				t.Errorf("denied capability = %q, want %q", denied.Capability, module)
			}
		})
	}
}

func TestFunctionDeniedEval(t *testing.T) {
	r := newTestRunner(t, Options{})

	err := r.Execute(context.Background(), "eval('1+1')", "inline")
	var denied *sbxerr.CapabilityDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected CapabilityDeniedError, got %v", err)
	}
	if denied.Capability != "eval" {
		t.Errorf("denied capability = %q, want eval", denied.Capability)
	}
}

func TestFunctionDeniedConstructor(t *testing.T) {
	r := newTestRunner(t, Options{})

	err := r.Execute(context.Background(), "Function('return 1')()", "inline")
	var denied *sbxerr.CapabilityDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected CapabilityDeniedError, got %v", err)
	}
}

func TestEvalDelegatesWhenAllowed(t *testing.T) {
	var stdout bytes.Buffer
	permissive := policy.New(nil, nil, nil)
	r := newTestRunner(t, Options{Policy: permissive, Stdout: &stdout})

	if err := r.Execute(context.Background(), "print(eval('20+22'))", "inline"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "42" {
		t.Errorf("stdout = %q, want 42", got)
	}
}

func TestSelectivelyDeniedOSMembers(t *testing.T) {
	var stdout bytes.Buffer
	r := newTestRunner(t, Options{Stdout: &stdout})

	// The module imports fine and benign members work.
	if err := r.Execute(context.Background(), "var os = require('os'); print(os.platform())", "inline"); err != nil {
		t.Fatalf("benign os member failed: %v", err)
	}
	if stdout.Len() == 0 {
		t.Error("expected platform output")
	}

	// The denied member raises.
	err := r.Execute(context.Background(), "require('os').kill(1)", "inline")
	var denied *sbxerr.CapabilityDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected CapabilityDeniedError, got %v", err)
	}
	if denied.Capability != "os.kill" {
		t.Errorf("denied capability = %q, want os.kill", denied.Capability)
	}
}

func TestDenialIsCatchableInScript(t *testing.T) {
	var stdout bytes.Buffer
	r := newTestRunner(t, Options{Stdout: &stdout})

	script := `
		try {
			require('child_process');
			print('unreachable');
		} catch (e) {
			print('caught', e.capability, e.tier);
		}
	`
	if err := r.Execute(context.Background(), script, "inline"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	got := strings.TrimSpace(stdout.String())
	if got != "caught child_process hard-denied" {
		t.Errorf("stdout = %q", got)
	}
}

func TestDenialDoesNotCorruptSubsequentExecution(t *testing.T) {
	var stdout bytes.Buffer
	r := newTestRunner(t, Options{Stdout: &stdout})

	script := `
		try { require('net'); } catch (e) {}
		print('still running');
	`
	if err := r.Execute(context.Background(), script, "inline"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "still running") {
		t.Errorf("execution state corrupted after denial: %q", stdout.String())
	}
}

func TestTimeoutInterruptsTightLoop(t *testing.T) {
	r := newTestRunner(t, Options{Limits: Limits{MaxWall: 100 * time.Millisecond}})

	start := time.Now()
	err := r.Execute(context.Background(), "while(true) {}", "inline")
	elapsed := time.Since(start)

	var timeout *sbxerr.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("timeout fired after %v, want bounded overshoot of 100ms", elapsed)
	}
}

func TestMemoryCeilingInterruptsAllocation(t *testing.T) {
	r := newTestRunner(t, Options{Limits: Limits{
		MaxAddressSpaceBytes: 64 * 1024 * 1024,
		MaxWall:              20 * time.Second,
	}})

	script := `var a = []; while (true) { a.push(new Array(4096).fill(1)); }`
	err := r.Execute(context.Background(), script, "inline")

	var exceeded *sbxerr.ResourceExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ResourceExceededError, got %v", err)
	}
	if exceeded.Kind != sbxerr.LimitMemory {
		t.Errorf("kind = %q, want memory", exceeded.Kind)
	}
}

func TestRecursionCeiling(t *testing.T) {
	r := newTestRunner(t, Options{Limits: Limits{MaxStackDepth: 128}})

	err := r.Execute(context.Background(), "function f() { return f(); } f()", "inline")

	var exceeded *sbxerr.ResourceExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ResourceExceededError, got %v", err)
	}
	if exceeded.Kind != sbxerr.LimitStack {
		t.Errorf("kind = %q, want stack", exceeded.Kind)
	}
}

func TestSyntaxErrorMapped(t *testing.T) {
	r := newTestRunner(t, Options{})

	err := r.Execute(context.Background(), "notvalid(((", "inline")
	var syntaxErr *sbxerr.ScriptSyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected ScriptSyntaxError, got %v", err)
	}
}

func TestRuntimeErrorMapped(t *testing.T) {
	r := newTestRunner(t, Options{})

	err := r.Execute(context.Background(), "throw new Error('boom')", "inline")
	var execErr *sbxerr.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if !strings.Contains(execErr.Error(), "boom") {
		t.Errorf("error does not carry message: %v", execErr)
	}
}

func TestInvalidPolicyRejectedAtConstruction(t *testing.T) {
	bad := policy.New(
		[]policy.Capability{"os"},
		nil,
		[]policy.Capability{"os.kill"},
	)
	if _, err := NewRunner(Options{Policy: bad}); err == nil {
		t.Fatal("expected NewRunner to reject an inconsistent policy")
	}
}

func TestExecuteFileMissing(t *testing.T) {
	r := newTestRunner(t, Options{})

	err := r.ExecuteFile(context.Background(), "/nonexistent/script.js")
	var execErr *sbxerr.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
}
