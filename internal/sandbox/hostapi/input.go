package hostapi

import (
	"strings"

	"github.com/dop251/goja"
)

// registerInput injects readline, gated by the "readline" capability. The
// read blocks the single execution path; the wall-clock deadline is the
// cancellation mechanism.
func registerInput(vm *goja.Runtime, hctx *Context) error {
	return vm.Set("readline", func(call goja.FunctionCall) goja.Value {
		CheckCapability(vm, hctx.Policy, "readline")

		if hctx.stdin == nil {
			return goja.Null()
		}

		line, err := hctx.stdin.ReadString('\n')
		if err != nil && line == "" {
			return goja.Null()
		}
		return vm.ToValue(strings.TrimRight(line, "\r\n"))
	})
}
