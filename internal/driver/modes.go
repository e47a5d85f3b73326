// Package driver turns an argument vector into one governed execution.
// Mode selection is a fixed precedence table over the argv shape; every
// mode funnels through the same interceptor and governor.
package driver

import "fmt"

// Mode is the resolved invocation kind.
type Mode string

const (
	// ModeStream executes the whole input stream as one unit; an empty
	// stream on a terminal falls back to the interactive loop.
	ModeStream Mode = "stream"
	// ModeVersion prints the runtime version and executes nothing.
	ModeVersion Mode = "version"
	// ModeInline executes the snippet given after -e.
	ModeInline Mode = "inline"
	// ModeModule invokes the named module as the entry point (-m).
	ModeModule Mode = "module"
	// ModePassthrough hands the argument vector to the unwrapped runtime.
	ModePassthrough Mode = "passthrough"
	// ModeFile executes the named file's contents as one unit.
	ModeFile Mode = "file"
)

// Request is one resolved invocation. Payload holds the snippet, module
// name, or file path depending on the mode; Argv keeps the original vector
// for passthrough and for the script's own arguments.
type Request struct {
	Mode    Mode
	Payload string
	Argv    []string
}

// ResolveMode selects the invocation mode from the argv shape. First match
// wins, in this order: no arguments, single version flag, -e snippet, -m
// module, any other flag, bare file path.
func ResolveMode(argv []string) (Request, error) {
	if len(argv) == 0 {
		return Request{Mode: ModeStream}, nil
	}

	if len(argv) == 1 && (argv[0] == "--version" || argv[0] == "-v") {
		return Request{Mode: ModeVersion}, nil
	}

	switch argv[0] {
	case "-e":
		if len(argv) < 2 {
			return Request{}, fmt.Errorf("flag -e requires a code argument")
		}
		return Request{Mode: ModeInline, Payload: argv[1], Argv: argv[2:]}, nil
	case "-m":
		if len(argv) < 2 {
			return Request{}, fmt.Errorf("flag -m requires a module name")
		}
		return Request{Mode: ModeModule, Payload: argv[1], Argv: argv[2:]}, nil
	}

	if argv[0] != "" && argv[0][0] == '-' {
		return Request{Mode: ModePassthrough, Argv: argv}, nil
	}

	return Request{Mode: ModeFile, Payload: argv[0], Argv: argv[1:]}, nil
}
