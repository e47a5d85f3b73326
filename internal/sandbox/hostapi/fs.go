package hostapi

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"

	"sandrun/internal/sbxerr"
)

// registerFS injects the fs object. read/write/exists are path-gated by the
// allowlist; open hands out a raw file handle and is additionally gated by
// the "fs.open" capability, checked on every call.
func registerFS(vm *goja.Runtime, hctx *Context) error {
	fsObj := vm.NewObject()

	_ = fsObj.Set("read", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(vm.NewTypeError("path is required"))
		}

		absPath, err := validatePath(call.Arguments[0].String(), hctx.Config.AllowedPaths)
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}

		content, err := os.ReadFile(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				return goja.Null()
			}
			panic(vm.NewTypeError(fmt.Sprintf("read failed: %v", err)))
		}

		return vm.ToValue(string(content))
	})

	_ = fsObj.Set("write", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(vm.NewTypeError("path and content are required"))
		}

		path := call.Arguments[0].String()
		content := call.Arguments[1].String()

		absPath, err := validatePath(path, hctx.Config.AllowedPaths)
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}

		if int64(len(content)) > hctx.Config.MaxWriteSize {
			panic(vm.NewTypeError(fmt.Sprintf("content exceeds max size of %d bytes", hctx.Config.MaxWriteSize)))
		}

		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			panic(vm.NewTypeError(fmt.Sprintf("failed to create directory: %v", err)))
		}

		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			panic(vm.NewTypeError(fmt.Sprintf("write failed: %v", err)))
		}

		return goja.Undefined()
	})

	_ = fsObj.Set("exists", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(vm.NewTypeError("path is required"))
		}

		absPath, err := validatePath(call.Arguments[0].String(), hctx.Config.AllowedPaths)
		if err != nil {
			return vm.ToValue(false)
		}

		_, err = os.Stat(absPath)
		return vm.ToValue(err == nil)
	})

	_ = fsObj.Set("open", func(call goja.FunctionCall) goja.Value {
		CheckCapability(vm, hctx.Policy, "fs.open")

		if len(call.Arguments) < 1 {
			panic(vm.NewTypeError("path is required"))
		}

		absPath, err := validatePath(call.Arguments[0].String(), hctx.Config.AllowedPaths)
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}

		f, err := os.Open(absPath)
		if err != nil {
			panic(vm.NewTypeError(fmt.Sprintf("open failed: %v", err)))
		}

		return newFileHandle(vm, f)
	})

	return vm.Set("fs", fsObj)
}

// newFileHandle wraps an open file in a handle object with read and close.
func newFileHandle(vm *goja.Runtime, f *os.File) goja.Value {
	handle := vm.NewObject()
	closed := false

	_ = handle.Set("read", func(call goja.FunctionCall) goja.Value {
		if closed {
			panic(vm.NewTypeError("handle is closed"))
		}
		size := int64(4096)
		if len(call.Arguments) > 0 {
			size = call.Arguments[0].ToInteger()
		}
		buf := make([]byte, size)
		n, err := f.Read(buf)
		if n == 0 || err != nil {
			return goja.Null()
		}
		return vm.ToValue(string(buf[:n]))
	})

	_ = handle.Set("close", func(call goja.FunctionCall) goja.Value {
		if !closed {
			closed = true
			_ = f.Close()
		}
		return goja.Undefined()
	})

	return handle
}

// validatePath expands, cleans and symlink-resolves a path, then checks it
// against the allowlist.
func validatePath(path string, allowedPaths []string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", &sbxerr.PathNotAllowedError{Path: path}
		}
		path = filepath.Join(home, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", &sbxerr.PathNotAllowedError{Path: path}
	}
	absPath = filepath.Clean(absPath)

	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil && !os.IsNotExist(err) {
		return "", &sbxerr.PathNotAllowedError{Path: path}
	}
	if err != nil {
		// Not-yet-existing file: validate against the parent directory.
		realParent, parentErr := filepath.EvalSymlinks(filepath.Dir(absPath))
		if parentErr != nil {
			return "", &sbxerr.PathNotAllowedError{Path: path}
		}
		if !isPathAllowed(realParent, allowedPaths) {
			return "", &sbxerr.PathNotAllowedError{Path: path}
		}
		return absPath, nil
	}
	absPath = realPath

	if !isPathAllowed(absPath, allowedPaths) {
		return "", &sbxerr.PathNotAllowedError{Path: path}
	}

	return absPath, nil
}

// isPathAllowed checks whether path is under any allowed root. An empty
// allowlist allows nothing.
func isPathAllowed(path string, allowedPaths []string) bool {
	for _, allowed := range allowedPaths {
		if strings.HasPrefix(allowed, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				continue
			}
			allowed = filepath.Join(home, allowed[2:])
		}
		allowed = filepath.Clean(allowed)

		if realAllowed, err := filepath.EvalSymlinks(allowed); err == nil {
			allowed = realAllowed
		}

		if path == allowed || strings.HasPrefix(path, allowed+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}
