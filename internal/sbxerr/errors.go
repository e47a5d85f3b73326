// Package sbxerr provides error types for the sandbox packages.
// This package exists to avoid import cycles between sandbox and
// sandbox/hostapi.
package sbxerr

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for sandbox operations.
var (
	// ErrGovernorInstalled indicates the resource governor is already armed.
	ErrGovernorInstalled = errors.New("sandbox: governor already installed")

	// ErrModuleNotFound indicates the requested module could not be resolved
	// on any namespace segment.
	ErrModuleNotFound = errors.New("sandbox: module not found")

	// ErrEmptyStream indicates stream mode received no input.
	ErrEmptyStream = errors.New("sandbox: empty input stream")
)

// LimitKind names a resource ceiling.
type LimitKind string

const (
	LimitMemory LimitKind = "memory"
	LimitCPU    LimitKind = "cpu"
	LimitStack  LimitKind = "stack"
	LimitWall   LimitKind = "wall"
)

// CapabilityDeniedError indicates an attempted use of a denied capability.
// It is raised inside the interpreter as a catchable value and surfaces
// unchanged at the Go boundary.
type CapabilityDeniedError struct {
	Capability string `json:"capability"`
	Tier       string `json:"tier"`
}

func (e *CapabilityDeniedError) Error() string {
	return fmt.Sprintf("sandbox: capability denied: %s", e.Capability)
}

// Is implements errors.Is for CapabilityDeniedError.
func (e *CapabilityDeniedError) Is(target error) bool {
	_, ok := target.(*CapabilityDeniedError)
	return ok
}

// ErrCapabilityDenied is a sentinel for errors.Is matching.
var ErrCapabilityDenied = &CapabilityDeniedError{}

// ResourceExceededError indicates an address-space, CPU-time or call-stack
// ceiling was hit. Fatal to the current execution.
type ResourceExceededError struct {
	Kind LimitKind `json:"kind"`
}

func (e *ResourceExceededError) Error() string {
	return fmt.Sprintf("sandbox: resource limit exceeded: %s", e.Kind)
}

// Is implements errors.Is for ResourceExceededError.
func (e *ResourceExceededError) Is(target error) bool {
	_, ok := target.(*ResourceExceededError)
	return ok
}

// ErrResourceExceeded is a sentinel for errors.Is matching.
var ErrResourceExceeded = &ResourceExceededError{}

// TimeoutError indicates the wall-clock deadline elapsed. It is raised via
// an asynchronous interrupt, so it fires even against non-yielding loops.
type TimeoutError struct {
	Limit time.Duration `json:"limit"`
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sandbox: wall-clock deadline exceeded (%s)", e.Limit)
}

// Is implements errors.Is for TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)
	return ok
}

// ErrTimeout is a sentinel for errors.Is matching.
var ErrTimeout = &TimeoutError{}

// ScriptSyntaxError indicates the payload failed to compile.
type ScriptSyntaxError struct {
	File    string
	Message string
}

func (e *ScriptSyntaxError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("sandbox: syntax error in %s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("sandbox: syntax error: %s", e.Message)
}

// Is implements errors.Is for ScriptSyntaxError.
func (e *ScriptSyntaxError) Is(target error) bool {
	_, ok := target.(*ScriptSyntaxError)
	return ok
}

// ErrScriptSyntax is a sentinel for errors.Is matching.
var ErrScriptSyntax = &ScriptSyntaxError{}

// ExecutionError wraps any other uncaught fault from executed code.
type ExecutionError struct {
	Script string
	Cause  error
}

func (e *ExecutionError) Error() string {
	if e.Script != "" {
		return fmt.Sprintf("sandbox: execution error in %s: %v", e.Script, e.Cause)
	}
	return fmt.Sprintf("sandbox: execution error: %v", e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for ExecutionError.
func (e *ExecutionError) Is(target error) bool {
	_, ok := target.(*ExecutionError)
	return ok
}

// ErrExecution is a sentinel for errors.Is matching.
var ErrExecution = &ExecutionError{}

// PathNotAllowedError indicates a file path outside the allowed roots.
type PathNotAllowedError struct {
	Path string
}

func (e *PathNotAllowedError) Error() string {
	return fmt.Sprintf("sandbox: path not allowed: %s", e.Path)
}

// Is implements errors.Is for PathNotAllowedError.
func (e *PathNotAllowedError) Is(target error) bool {
	_, ok := target.(*PathNotAllowedError)
	return ok
}

// ErrPathNotAllowed is a sentinel for errors.Is matching.
var ErrPathNotAllowed = &PathNotAllowedError{}
