// Package hostapi provides the host surface injected into the sandboxed
// runtime: console output, gated filesystem access, interactive input and
// the os module. Every dangerous entry point re-checks the capability
// policy at call time; a denial is thrown as a catchable structured value.
package hostapi

import (
	"bufio"
	"context"
	"io"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"sandrun/internal/policy"
	"sandrun/internal/sbxerr"
)

// Config holds host API configuration.
type Config struct {
	// AllowedPaths is the list of allowed file system roots.
	AllowedPaths []string
	// MaxWriteSize is the maximum file write size in bytes.
	MaxWriteSize int64
}

// DefaultConfig returns default host API configuration.
func DefaultConfig() Config {
	return Config{
		AllowedPaths: []string{"/tmp"},
		MaxWriteSize: 10 * 1024 * 1024, // 10MB
	}
}

// Context holds the execution context for host APIs.
type Context struct {
	Ctx         context.Context
	Policy      *policy.Policy
	Logger      zerolog.Logger
	ScriptName  string
	ExecutionID string
	Config      Config

	Stdout io.Writer
	Stderr io.Writer

	stdin *bufio.Reader
}

// SetStdin attaches the interactive input stream.
func (c *Context) SetStdin(r io.Reader) {
	if r != nil {
		c.stdin = bufio.NewReader(r)
	}
}

// Register injects all host APIs into the given runtime.
func Register(vm *goja.Runtime, hctx *Context) error {
	if err := registerConsole(vm, hctx); err != nil {
		return err
	}
	if err := registerFS(vm, hctx); err != nil {
		return err
	}
	if err := registerInput(vm, hctx); err != nil {
		return err
	}
	return nil
}

// Unregister removes host API globals from the runtime.
func Unregister(vm *goja.Runtime) {
	global := vm.GlobalObject()
	_ = global.Delete("console")
	_ = global.Delete("print")
	_ = global.Delete("fs")
	_ = global.Delete("readline")
}

// Deny throws a structured capability denial inside the runtime. The thrown
// value is catchable by the executed code and surfaces unchanged at the Go
// boundary.
func Deny(vm *goja.Runtime, name policy.Capability, tier policy.Tier) {
	panic(vm.ToValue(&sbxerr.CapabilityDeniedError{
		Capability: string(name),
		Tier:       tier.String(),
	}))
}

// CheckCapability consults the policy and throws on denial. It must be
// called on every invocation, not once at registration: the runtime allows
// re-binding names after interception is installed.
func CheckCapability(vm *goja.Runtime, p *policy.Policy, name policy.Capability) {
	if tier := p.Lookup(name); tier != policy.TierAllowed {
		Deny(vm, name, tier)
	}
}
