package driver

import (
	"errors"

	"sandrun/internal/sbxerr"
)

// Status is the terminal classification of one execution.
type Status string

const (
	StatusCompleted        Status = "completed"
	StatusCapabilityDenied Status = "capability_denied"
	StatusResourceExceeded Status = "resource_exceeded"
	StatusTimeout          Status = "timeout"
	StatusRuntimeError     Status = "runtime_error"
)

// Outcome is produced once per request and never mutated afterwards.
// Detail carries the denied capability name, the exceeded limit kind, or
// the fault message; it is safe to log.
type Outcome struct {
	Status   Status
	Detail   string
	ExitCode int
}

// outcomeFromError classifies a runner error into an Outcome. A nil error
// is a completed execution with exit code 0; every fault exits 1.
func outcomeFromError(err error) Outcome {
	if err == nil {
		return Outcome{Status: StatusCompleted}
	}

	var denied *sbxerr.CapabilityDeniedError
	if errors.As(err, &denied) {
		return Outcome{Status: StatusCapabilityDenied, Detail: denied.Capability, ExitCode: 1}
	}

	var timeout *sbxerr.TimeoutError
	if errors.As(err, &timeout) {
		return Outcome{Status: StatusTimeout, Detail: timeout.Limit.String(), ExitCode: 1}
	}

	var exceeded *sbxerr.ResourceExceededError
	if errors.As(err, &exceeded) {
		return Outcome{Status: StatusResourceExceeded, Detail: string(exceeded.Kind), ExitCode: 1}
	}

	return Outcome{Status: StatusRuntimeError, Detail: err.Error(), ExitCode: 1}
}
