package sandbox

import (
	"runtime"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"sandrun/internal/sbxerr"
)

// Limits holds the resource ceilings for one execution. Zero values fall
// back to defaults at install time.
type Limits struct {
	MaxAddressSpaceBytes uint64
	MaxCPU               time.Duration
	MaxWall              time.Duration
	MaxStackDepth        int
}

// DefaultLimits returns the stock resource ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxAddressSpaceBytes: 256 * 1024 * 1024,
		MaxCPU:               10 * time.Second,
		MaxWall:              30 * time.Second,
		MaxStackDepth:        2048,
	}
}

// Tighten returns the element-wise minimum of l and o, ignoring zero
// fields. Limits only ever tighten over the process lifetime.
func (l Limits) Tighten(o Limits) Limits {
	out := l
	if o.MaxAddressSpaceBytes > 0 && (out.MaxAddressSpaceBytes == 0 || o.MaxAddressSpaceBytes < out.MaxAddressSpaceBytes) {
		out.MaxAddressSpaceBytes = o.MaxAddressSpaceBytes
	}
	if o.MaxCPU > 0 && (out.MaxCPU == 0 || o.MaxCPU < out.MaxCPU) {
		out.MaxCPU = o.MaxCPU
	}
	if o.MaxWall > 0 && (out.MaxWall == 0 || o.MaxWall < out.MaxWall) {
		out.MaxWall = o.MaxWall
	}
	if o.MaxStackDepth > 0 && (out.MaxStackDepth == 0 || o.MaxStackDepth < out.MaxStackDepth) {
		out.MaxStackDepth = o.MaxStackDepth
	}
	return out
}

// watchdogInterval is how often the memory/CPU samplers run.
const watchdogInterval = 20 * time.Millisecond

// Governor enforces the resource ceilings around one execution. The
// wall-clock deadline fires through the runtime's asynchronous interrupt,
// so it terminates tight loops that never yield. Memory and CPU are
// sampled and interrupted before the OS-level rlimit backstop would kill
// the process uncatchably.
type Governor struct {
	limits Limits
	logger zerolog.Logger

	mu    sync.Mutex
	armed bool
}

// NewGovernor builds a governor with the given ceilings. Zero fields take
// defaults.
func NewGovernor(limits Limits, logger zerolog.Logger) *Governor {
	return &Governor{
		limits: DefaultLimits().Tighten(limits),
		logger: logger,
	}
}

// Limits returns the effective ceilings.
func (g *Governor) Limits() Limits {
	return g.limits
}

// Install arms enforcement on the given runtime and returns a release
// function that must run on every exit path. Installing an already-armed
// governor is rejected so a second install cannot double-subtract the
// remaining budget.
func (g *Governor) Install(vm *goja.Runtime) (release func(), err error) {
	g.mu.Lock()
	if g.armed {
		g.mu.Unlock()
		return func() {}, sbxerr.ErrGovernorInstalled
	}
	g.armed = true
	g.mu.Unlock()

	vm.SetMaxCallStackSize(g.limits.MaxStackDepth)
	applyProcessLimits(g.limits, g.logger)

	// Wall-clock deadline: asynchronous, preemptive, fires even against a
	// non-yielding loop.
	timer := time.AfterFunc(g.limits.MaxWall, func() {
		vm.Interrupt(&sbxerr.TimeoutError{Limit: g.limits.MaxWall})
	})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.watchdog(vm, stop)
	}()

	var once sync.Once
	release = func() {
		once.Do(func() {
			// Disarm before anything else: a leaked armed timer must never
			// fire against unrelated later work.
			timer.Stop()
			close(stop)
			wg.Wait()
			vm.ClearInterrupt()

			g.mu.Lock()
			g.armed = false
			g.mu.Unlock()
		})
	}
	return release, nil
}

// watchdog samples heap usage and process CPU time, interrupting the
// runtime on a breach.
func (g *Governor) watchdog(vm *goja.Runtime, stop <-chan struct{}) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	baseCPU, _ := processCPUTime()

	for {
		select {
		case <-ticker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			if ms.HeapAlloc > g.limits.MaxAddressSpaceBytes {
				vm.Interrupt(&sbxerr.ResourceExceededError{Kind: sbxerr.LimitMemory})
				return
			}

			if cpu, ok := processCPUTime(); ok && cpu-baseCPU > g.limits.MaxCPU {
				vm.Interrupt(&sbxerr.ResourceExceededError{Kind: sbxerr.LimitCPU})
				return
			}
		case <-stop:
			return
		}
	}
}
