package main

import (
	"fmt"
	"os"

	"sandrun/internal/cli"
)

func main() {
	exitCode := 0
	rootCmd := cli.NewRootCmd(&exitCode)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sandrun: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
