package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// stdinIsTerminal reports whether the input stream is an interactive
// terminal. Piped and redirected inputs never trigger the REPL.
func stdinIsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// repl runs the interactive read-eval loop on one persistent session.
// State carries across lines; each line is separately governed.
func (d *Driver) repl(ctx context.Context) error {
	session, err := d.opts.Runner.NewSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Fprintf(d.opts.Stdout, "sandrun %s interactive (.exit to quit)\n", d.opts.Version)

	scanner := bufio.NewScanner(d.opts.Stdin)
	for {
		fmt.Fprint(d.opts.Stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(d.opts.Stdout)
			return scanner.Err()
		}
		line := scanner.Text()
		if line == ".exit" {
			return nil
		}
		if line == "" {
			continue
		}

		// Faults are reported and the loop continues; a denied capability
		// or a timed-out line never ends the session.
		out, err := session.Eval(line)
		if err != nil {
			fmt.Fprintf(d.opts.Stderr, "sandrun: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Fprintln(d.opts.Stdout, out)
		}
	}
}
