package hostapi

import (
	"fmt"
	"io"

	"github.com/dop251/goja"
)

// registerConsole injects print and a basic console object. Output goes to
// the captured stdout/stderr writers, never to the process logger's stream.
func registerConsole(vm *goja.Runtime, hctx *Context) error {
	writeLine := func(w io.Writer, args []goja.Value) {
		if w == nil {
			return
		}
		fmt.Fprintln(w, formatArgs(args))
	}

	_ = vm.Set("print", func(call goja.FunctionCall) goja.Value {
		writeLine(hctx.Stdout, call.Arguments)
		return goja.Undefined()
	})

	console := vm.NewObject()

	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		writeLine(hctx.Stdout, call.Arguments)
		return goja.Undefined()
	})

	_ = console.Set("info", func(call goja.FunctionCall) goja.Value {
		writeLine(hctx.Stdout, call.Arguments)
		return goja.Undefined()
	})

	_ = console.Set("warn", func(call goja.FunctionCall) goja.Value {
		writeLine(hctx.Stderr, call.Arguments)
		return goja.Undefined()
	})

	_ = console.Set("error", func(call goja.FunctionCall) goja.Value {
		writeLine(hctx.Stderr, call.Arguments)
		return goja.Undefined()
	})

	_ = console.Set("debug", func(call goja.FunctionCall) goja.Value {
		hctx.Logger.Debug().Str("script", hctx.ScriptName).Msg(formatArgs(call.Arguments))
		return goja.Undefined()
	})

	return vm.Set("console", console)
}

// formatArgs joins arguments with spaces like console.log.
func formatArgs(args []goja.Value) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = formatValue(arg)
	}
	result := parts[0]
	for i := 1; i < len(parts); i++ {
		result += " " + parts[i]
	}
	return result
}

// formatValue converts a goja.Value to a string representation.
func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}

	exported := v.Export()
	switch val := exported.(type) {
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
