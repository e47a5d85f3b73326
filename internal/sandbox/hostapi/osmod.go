package hostapi

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/dop251/goja"

	"sandrun/internal/policy"
)

// OSModule builds the os module object. The module itself is importable;
// its process-control members are individually gated, with the policy
// consulted on every call rather than at import time.
func OSModule(vm *goja.Runtime, hctx *Context) *goja.Object {
	mod := vm.NewObject()

	_ = mod.Set("hostname", func(call goja.FunctionCall) goja.Value {
		name, err := os.Hostname()
		if err != nil {
			return goja.Null()
		}
		return vm.ToValue(name)
	})

	_ = mod.Set("tmpdir", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(os.TempDir())
	})

	_ = mod.Set("platform", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(runtime.GOOS)
	})

	_ = mod.Set("getpid", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(os.Getpid())
	})

	_ = mod.Set("exec", func(call goja.FunctionCall) goja.Value {
		CheckCapability(vm, hctx.Policy, "os.exec")

		if len(call.Arguments) < 1 {
			panic(vm.NewTypeError("command is required"))
		}
		args := make([]string, 0, len(call.Arguments)-1)
		for _, a := range call.Arguments[1:] {
			args = append(args, a.String())
		}
		out, err := exec.Command(call.Arguments[0].String(), args...).CombinedOutput()
		if err != nil {
			panic(vm.NewTypeError(fmt.Sprintf("exec failed: %v", err)))
		}
		return vm.ToValue(string(out))
	})

	_ = mod.Set("kill", func(call goja.FunctionCall) goja.Value {
		CheckCapability(vm, hctx.Policy, "os.kill")

		if len(call.Arguments) < 1 {
			panic(vm.NewTypeError("pid is required"))
		}
		proc, err := os.FindProcess(int(call.Arguments[0].ToInteger()))
		if err != nil {
			panic(vm.NewTypeError(fmt.Sprintf("kill failed: %v", err)))
		}
		if err := proc.Kill(); err != nil {
			panic(vm.NewTypeError(fmt.Sprintf("kill failed: %v", err)))
		}
		return goja.Undefined()
	})

	_ = mod.Set("fork", func(call goja.FunctionCall) goja.Value {
		CheckCapability(vm, hctx.Policy, "os.fork")

		// No host equivalent exists; the call fails even when allowed.
		panic(vm.NewTypeError("fork is not supported by this runtime"))
	})

	_ = mod.Set("setuid", func(call goja.FunctionCall) goja.Value {
		CheckCapability(vm, hctx.Policy, "os.setuid")

		panic(vm.NewTypeError("setuid is not supported by this runtime"))
	})

	return mod
}

// osModuleCapability is the module name the os module answers to.
const OSModuleName = policy.Capability("os")
