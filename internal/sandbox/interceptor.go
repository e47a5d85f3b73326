// Package sandbox executes untrusted scripts under an embedded interpreter
// with capability interception and resource governance.
package sandbox

import (
	"fmt"
	"os"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"sandrun/internal/extension"
	"sandrun/internal/namespace"
	"sandrun/internal/policy"
	"sandrun/internal/sandbox/hostapi"
)

// Interceptor installs wrappers at every dangerous dispatch point of the
// runtime. Wrappers consult the Policy before every invocation and delegate
// to the original implementation, captured once before interception, when
// the call is allowed. A re-import or re-bind never reaches an unwrapped
// path.
type Interceptor struct {
	policy   *policy.Policy
	resolver *namespace.Resolver
	extAllow map[string]bool
	extCtx   extension.Context
	logger   zerolog.Logger
}

// NewInterceptor builds an interceptor for the given policy. resolver may
// be nil when module resolution is not needed (inline snippets with no
// imports still get the builtin wrappers).
func NewInterceptor(p *policy.Policy, resolver *namespace.Resolver, extAllow []string, extCtx extension.Context, logger zerolog.Logger) *Interceptor {
	allow := make(map[string]bool, len(extAllow))
	for _, name := range extAllow {
		allow[name] = true
	}
	return &Interceptor{
		policy:   p,
		resolver: resolver,
		extAllow: allow,
		extCtx:   extCtx,
		logger:   logger,
	}
}

// Install wires all wrappers into the runtime, most dangerous first:
// dynamic evaluation, module import, then the host surface (raw file
// handles, interactive input, process control).
func (it *Interceptor) Install(vm *goja.Runtime, hctx *hostapi.Context) error {
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	it.installEval(vm)
	it.installRequire(vm, hctx)
	return hostapi.Register(vm, hctx)
}

// Uninstall removes the host surface from the runtime.
func (it *Interceptor) Uninstall(vm *goja.Runtime) {
	hostapi.Unregister(vm)
	_ = vm.GlobalObject().Delete("require")
}

// installEval replaces eval and the Function constructor with policy-checked
// wrappers. The originals are captured here, once, and held in closures;
// they are never re-resolved by name.
func (it *Interceptor) installEval(vm *goja.Runtime) {
	origEval, hasEval := goja.AssertFunction(vm.Get("eval"))
	origFunction, hasFunction := goja.AssertFunction(vm.Get("Function"))

	_ = vm.Set("eval", func(call goja.FunctionCall) goja.Value {
		hostapi.CheckCapability(vm, it.policy, "eval")
		if !hasEval {
			return goja.Undefined()
		}
		return it.delegate(vm, origEval, call.Arguments)
	})

	_ = vm.Set("Function", func(call goja.FunctionCall) goja.Value {
		hostapi.CheckCapability(vm, it.policy, "Function")
		if !hasFunction {
			return goja.Undefined()
		}
		return it.delegate(vm, origFunction, call.Arguments)
	})
}

// delegate invokes a captured original, rethrowing script exceptions so
// they stay catchable in the runtime.
func (it *Interceptor) delegate(vm *goja.Runtime, fn goja.Callable, args []goja.Value) goja.Value {
	v, err := fn(goja.Undefined(), args...)
	if err != nil {
		if ex, ok := err.(*goja.Exception); ok {
			panic(ex.Value())
		}
		panic(vm.NewGoError(err))
	}
	return v
}

// installRequire injects the module loader. The policy is consulted on
// every require call: hard-denied modules never load, extensions load only
// when whitelisted, everything else resolves through the namespace
// segments. Loaded modules are cached per runtime after an allowed load.
func (it *Interceptor) installRequire(vm *goja.Runtime, hctx *hostapi.Context) {
	cache := make(map[string]goja.Value)

	// requireFor builds the require function seen by code loaded on behalf
	// of the given provider; transitive requires stay inside compatible
	// segments.
	var requireFor func(requester string) func(call goja.FunctionCall) goja.Value
	requireFor = func(requester string) func(call goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) < 1 {
				panic(vm.NewTypeError("module name is required"))
			}
			name := call.Arguments[0].String()

			// Re-checked on every call, never gated once at startup.
			if tier := it.policy.Lookup(policy.Capability(name)); tier == policy.TierHardDenied {
				hostapi.Deny(vm, policy.Capability(name), tier)
			}

			if name == "os" {
				return hostapi.OSModule(vm, hctx)
			}

			if reg, ok := extension.Lookup(name); ok {
				if !it.extAllow[name] {
					hostapi.Deny(vm, policy.Capability(name), policy.TierHardDenied)
				}
				if v, ok := cache["ext\x00"+name]; ok {
					return v
				}
				v, err := reg.Loader(vm, it.extCtx)
				if err != nil {
					panic(vm.NewGoError(fmt.Errorf("extension %s: %w", name, err)))
				}
				cache["ext\x00"+name] = v
				it.logger.Debug().Str("extension", name).Msg("extension registered into runtime")
				return v
			}

			if it.resolver == nil {
				panic(vm.NewTypeError(fmt.Sprintf("module not found: %s", name)))
			}

			res, err := it.resolver.ResolveFor(requester, name)
			if err != nil {
				panic(vm.NewTypeError(err.Error()))
			}

			if v, ok := cache[res.Path]; ok {
				return v
			}

			exports, err := it.loadModule(vm, res, requireFor(res.Provider))
			if err != nil {
				if ex, ok := err.(*goja.Exception); ok {
					panic(ex.Value())
				}
				panic(vm.NewGoError(err))
			}
			cache[res.Path] = exports
			return exports
		}
	}

	_ = vm.Set("require", requireFor(""))
}

// loadModule evaluates a module file with CommonJS-style wrapping.
func (it *Interceptor) loadModule(vm *goja.Runtime, res namespace.Resolved, req func(call goja.FunctionCall) goja.Value) (goja.Value, error) {
	src, err := os.ReadFile(res.Path)
	if err != nil {
		return nil, fmt.Errorf("read module %s: %w", res.Path, err)
	}

	prog, err := goja.Compile(res.Path, "(function(module, exports, require) {\n"+string(src)+"\n})", false)
	if err != nil {
		return nil, err
	}

	fnVal, err := vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("module wrapper for %s is not callable", res.Path)
	}

	module := vm.NewObject()
	exports := vm.NewObject()
	_ = module.Set("exports", exports)

	if _, err := fn(goja.Undefined(), module, exports, vm.ToValue(req)); err != nil {
		return nil, err
	}

	return module.Get("exports"), nil
}
