package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"sandrun/internal/extension"
	"sandrun/internal/namespace"
	"sandrun/internal/policy"
	"sandrun/internal/sbxerr"
)

func writeModule(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
}

func newResolver(t *testing.T, trusted []namespace.Segment, scratch string) *namespace.Resolver {
	t.Helper()
	r, err := namespace.New(trusted, scratch, "", zerolog.Nop())
	if err != nil {
		t.Fatalf("namespace.New failed: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRequireLoadsNamespaceModule(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "greeter.js", `module.exports = { greet: function(n) { return 'hello ' + n; } };`)

	var stdout bytes.Buffer
	r := newTestRunner(t, Options{
		Resolver: newResolver(t, nil, dir),
		Stdout:   &stdout,
	})

	script := `var g = require('greeter'); print(g.greet('world'));`
	if err := r.Execute(context.Background(), script, "inline"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "hello world" {
		t.Errorf("stdout = %q", got)
	}
}

func TestRequireCachesModulePerRuntime(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "counter.js", `
		if (typeof globalThis.loads === 'undefined') { globalThis.loads = 0; }
		globalThis.loads += 1;
		module.exports = {};
	`)

	var stdout bytes.Buffer
	r := newTestRunner(t, Options{
		Resolver: newResolver(t, nil, dir),
		Stdout:   &stdout,
	})

	script := `require('counter'); require('counter'); print(globalThis.loads);`
	if err := r.Execute(context.Background(), script, "inline"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "1" {
		t.Errorf("module evaluated %s times, want 1", got)
	}
}

func TestTransitiveRequireStaysInProviderSegment(t *testing.T) {
	root := t.TempDir()
	dirA := filepath.Join(root, "gurobi")
	dirB := filepath.Join(root, "cbc")

	// Both providers ship "proto" at conflicting pinned versions; solver.js
	// in A must see A's copy even though B also carries the name.
	writeModule(t, dirA, namespace.ManifestFile, "name: gurobi\nversion: 1.0.0\npins:\n  proto: 3.20.1\n")
	writeModule(t, dirA, "proto.js", `module.exports = 'proto-A';`)
	writeModule(t, dirA, "solver.js", `module.exports = require('proto');`)
	writeModule(t, dirB, namespace.ManifestFile, "name: cbc\nversion: 1.0.0\npins:\n  proto: 4.25.0\n")
	writeModule(t, dirB, "proto.js", `module.exports = 'proto-B';`)

	resolver := newResolver(t, []namespace.Segment{
		{Provider: "cbc", Dir: dirB, Isolated: true},
		{Provider: "gurobi", Dir: dirA, Isolated: true},
	}, "")

	var stdout bytes.Buffer
	r := newTestRunner(t, Options{Resolver: resolver, Stdout: &stdout})

	script := `print(require('solver'));`
	if err := r.Execute(context.Background(), script, "inline"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "proto-A" {
		t.Errorf("transitive require crossed provider segments: %q", got)
	}
}

func TestRequireUnknownModule(t *testing.T) {
	r := newTestRunner(t, Options{Resolver: newResolver(t, nil, t.TempDir())})

	err := r.Execute(context.Background(), "require('ghost')", "inline")
	var execErr *sbxerr.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
}

func TestWhitelistedExtensionLoads(t *testing.T) {
	name := "testsolver_whitelisted"
	err := extension.Register(extension.Registration{
		Name:     name,
		Provider: "testsolver",
		Loader: func(vm *goja.Runtime, ctx extension.Context) (goja.Value, error) {
			obj := vm.NewObject()
			_ = obj.Set("license", ctx.LicensePath)
			return obj, nil
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	var stdout bytes.Buffer
	r := newTestRunner(t, Options{
		ExtAllow:  []string{name},
		Extension: extension.Context{LicensePath: "/etc/solver.lic"},
		Stdout:    &stdout,
	})

	script := `print(require('` + name + `').license);`
	if err := r.Execute(context.Background(), script, "inline"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "/etc/solver.lic" {
		t.Errorf("license path = %q", got)
	}
}

func TestUnwhitelistedExtensionDenied(t *testing.T) {
	name := "testsolver_unlisted"
	err := extension.Register(extension.Registration{
		Name: name,
		Loader: func(vm *goja.Runtime, ctx extension.Context) (goja.Value, error) {
			return vm.NewObject(), nil
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	r := newTestRunner(t, Options{})

	execErr := r.Execute(context.Background(), "require('"+name+"')", "inline")
	var denied *sbxerr.CapabilityDeniedError
	if !errors.As(execErr, &denied) {
		t.Fatalf("expected CapabilityDeniedError, got %v", execErr)
	}
	if denied.Capability != name {
		t.Errorf("denied capability = %q, want %q", denied.Capability, name)
	}
}

func TestFileOpenIsFunctionDenied(t *testing.T) {
	r := newTestRunner(t, Options{})

	err := r.Execute(context.Background(), "fs.open('/tmp/anything')", "inline")
	var denied *sbxerr.CapabilityDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected CapabilityDeniedError, got %v", err)
	}
	if denied.Capability != "fs.open" {
		t.Errorf("denied capability = %q, want fs.open", denied.Capability)
	}
}

func TestReadlineIsFunctionDenied(t *testing.T) {
	r := newTestRunner(t, Options{Stdin: strings.NewReader("input\n")})

	err := r.Execute(context.Background(), "readline()", "inline")
	var denied *sbxerr.CapabilityDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected CapabilityDeniedError, got %v", err)
	}
}

func TestReadlineWorksWhenAllowed(t *testing.T) {
	var stdout bytes.Buffer
	r := newTestRunner(t, Options{
		Policy: policy.New(nil, nil, nil),
		Stdin:  strings.NewReader("alice\n"),
		Stdout: &stdout,
	})

	if err := r.Execute(context.Background(), "print(readline())", "inline"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "alice" {
		t.Errorf("stdout = %q, want alice", got)
	}
}
