// Package extension is the import-time hook for native solver bindings.
// An extension registers a loader under a module name; the sandbox only
// decides whether the import is admitted (policy plus whitelist) and where
// it resolves. Solver logic never lives here.
package extension

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dop251/goja"
)

// Context carries the host-provisioned facts an extension may need when it
// attaches to a runtime. LicensePath points at the licensing artifact for
// restricted commercial solvers; it may be empty.
type Context struct {
	LicensePath string
}

// Loader builds the extension's module value inside the given runtime.
type Loader func(vm *goja.Runtime, ctx Context) (goja.Value, error)

// Registration couples an extension name with its loader.
type Registration struct {
	Name     string
	Provider string
	Loader   Loader
}

var (
	mu       sync.RWMutex
	registry = make(map[string]Registration)
)

// Register records an extension loader. It is meant to be called from the
// extension's init function, before any execution starts.
func Register(reg Registration) error {
	if reg.Name == "" || reg.Loader == nil {
		return fmt.Errorf("extension: registration needs a name and a loader")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[reg.Name]; exists {
		return fmt.Errorf("extension: %q already registered", reg.Name)
	}
	registry[reg.Name] = reg
	return nil
}

// Lookup returns the registration for a name.
func Lookup(name string) (Registration, bool) {
	mu.RLock()
	defer mu.RUnlock()
	reg, ok := registry[name]
	return reg, ok
}

// Names returns the sorted registered extension names.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// reset clears the registry. Test hook.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]Registration)
}
