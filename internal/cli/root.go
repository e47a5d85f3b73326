// Package cli wires configuration, logging and the sandbox together into
// the sandrun command. The argument vector is handed to the execution
// driver untouched; all flag interpretation happens there.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sandrun/internal/audit"
	"sandrun/internal/config"
	"sandrun/internal/driver"
	"sandrun/internal/extension"
	"sandrun/internal/namespace"
	"sandrun/internal/policy"
	"sandrun/internal/sandbox"
	"sandrun/internal/sandbox/hostapi"
	"sandrun/pkg/logger"
)

// NewRootCmd creates the root command. Flag parsing is disabled so that
// script flags and paths reach the driver verbatim; configuration comes
// from the config file and SANDRUN_ environment variables only.
func NewRootCmd(exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "sandrun [-e code | -m module | script.js | --version]",
		Short: "Run untrusted scripts under a restricted runtime",
		Long: `sandrun executes untrusted JavaScript under a capability-restricted
runtime: dangerous imports and builtins are policy-gated, and every
execution runs under memory, CPU, wall-clock and recursion ceilings.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := run(cmd, args)
			if err != nil {
				return err
			}
			*exitCode = out.ExitCode
			return nil
		},
	}
}

func run(cmd *cobra.Command, args []string) (driver.Outcome, error) {
	configPath := os.Getenv("SANDRUN_CONFIG")
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return driver.Outcome{}, err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return driver.Outcome{}, err
	}

	if err := logger.Init(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}); err != nil {
		return driver.Outcome{}, err
	}
	defer logger.Close()
	log := *logger.Get()

	pol := policy.Default().Tighten(
		capabilities(cfg.Policy.DenyModules),
		capabilities(cfg.Policy.DenyFunctions),
		capabilities(cfg.Policy.DenyMembers),
	)

	segments := make([]namespace.Segment, 0, len(cfg.Namespace.Segments))
	for _, s := range cfg.Namespace.Segments {
		dir, err := config.ExpandPath(s.Dir)
		if err != nil {
			return driver.Outcome{}, fmt.Errorf("segment %s: %w", s.Provider, err)
		}
		segments = append(segments, namespace.Segment{Provider: s.Provider, Dir: dir, Isolated: s.Isolated})
	}
	scratch, err := config.ExpandPath(cfg.Namespace.ScratchDir)
	if err != nil {
		return driver.Outcome{}, err
	}
	resolver, err := namespace.New(segments, scratch, cfg.Namespace.SystemDir, log)
	if err != nil {
		return driver.Outcome{}, err
	}
	defer resolver.Close()

	var recorder *audit.Recorder
	if cfg.Audit.Enabled {
		recorder, err = audit.Open(cfg.Audit.Path, log)
		if err != nil {
			// A broken audit store never blocks execution.
			log.Warn().Err(err).Msg("audit trail unavailable")
		} else {
			defer recorder.Close()
		}
	}

	runner, err := sandbox.NewRunner(sandbox.Options{
		Policy: pol,
		Limits: sandbox.Limits{
			MaxAddressSpaceBytes: cfg.Limits.MaxMemoryBytes(),
			MaxCPU:               cfg.Limits.MaxCPU,
			MaxWall:              cfg.Limits.MaxWall,
			MaxStackDepth:        cfg.Limits.MaxStackDepth,
		},
		Resolver:  resolver,
		ExtAllow:  cfg.Extensions.Allow,
		Extension: extension.Context{LicensePath: cfg.Extensions.LicensePath},
		Files: hostapi.Config{
			AllowedPaths: cfg.Files.AllowedPaths,
			MaxWriteSize: cfg.Files.MaxWriteSize,
		},
		Logger: log,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		return driver.Outcome{}, err
	}

	d := driver.New(driver.Options{
		Runner:   runner,
		Recorder: recorder,
		Version:  VersionString(),
		Logger:   log,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	})

	return d.Run(cmd.Context(), args), nil
}

func capabilities(names []string) []policy.Capability {
	out := make([]policy.Capability, len(names))
	for i, n := range names {
		out[i] = policy.Capability(n)
	}
	return out
}
