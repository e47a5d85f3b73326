// Package config loads the sandbox configuration. Configuration is read
// once at process start (file, then environment overrides) and treated as
// immutable for the process lifetime.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for one sandbox process instance.
type Config struct {
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Limits     LimitsConfig     `mapstructure:"limits" yaml:"limits"`
	Policy     PolicyConfig     `mapstructure:"policy" yaml:"policy,omitempty"`
	Namespace  NamespaceConfig  `mapstructure:"namespace" yaml:"namespace"`
	Extensions ExtensionsConfig `mapstructure:"extensions" yaml:"extensions,omitempty"`
	Audit      AuditConfig      `mapstructure:"audit" yaml:"audit"`
	Files      FilesConfig      `mapstructure:"files" yaml:"files"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// LimitsConfig holds the resource ceilings. MaxMemory is parsed from a
// string like "256MB".
type LimitsConfig struct {
	MaxMemory     string        `mapstructure:"max_memory" yaml:"max_memory"`
	MaxCPU        time.Duration `mapstructure:"max_cpu" yaml:"max_cpu"`
	MaxWall       time.Duration `mapstructure:"max_wall" yaml:"max_wall"`
	MaxStackDepth int           `mapstructure:"max_stack_depth" yaml:"max_stack_depth"`
}

// MaxMemoryBytes parses MaxMemory into bytes, falling back to the default
// on parse failure.
func (c *LimitsConfig) MaxMemoryBytes() uint64 {
	n, err := ParseByteSize(c.MaxMemory)
	if err != nil || n == 0 {
		return 256 * 1024 * 1024
	}
	return n
}

// PolicyConfig adds deny-list entries on top of the stock policy. Entries
// can tighten the policy but there is no mechanism to loosen it.
type PolicyConfig struct {
	DenyModules   []string `mapstructure:"deny_modules" yaml:"deny_modules,omitempty"`
	DenyFunctions []string `mapstructure:"deny_functions" yaml:"deny_functions,omitempty"`
	DenyMembers   []string `mapstructure:"deny_members" yaml:"deny_members,omitempty"`
}

// SegmentConfig describes one trusted namespace search segment.
type SegmentConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Isolated bool   `mapstructure:"isolated" yaml:"isolated,omitempty"`
}

// NamespaceConfig describes the module search order: trusted segments in
// declaration order, then the writable scratch segment, then the system
// default segment.
type NamespaceConfig struct {
	Segments   []SegmentConfig `mapstructure:"segments" yaml:"segments,omitempty"`
	ScratchDir string          `mapstructure:"scratch_dir" yaml:"scratch_dir"`
	SystemDir  string          `mapstructure:"system_dir" yaml:"system_dir"`
}

// ExtensionsConfig controls which native extensions may register and where
// the solver licensing artifact lives.
type ExtensionsConfig struct {
	Allow       []string `mapstructure:"allow" yaml:"allow,omitempty"`
	LicensePath string   `mapstructure:"license_path" yaml:"license_path,omitempty"`
}

// AuditConfig controls the execution audit trail.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// FilesConfig controls sandboxed filesystem access.
type FilesConfig struct {
	AllowedPaths []string `mapstructure:"allowed_paths" yaml:"allowed_paths"`
	MaxWriteSize int64    `mapstructure:"max_write_size" yaml:"max_write_size"`
}

// Load reads configuration with precedence ENV > file > defaults. A missing
// file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SANDRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment names owned by the packaging layer.
	_ = v.BindEnv("extensions.license_path", "SANDRUN_LICENSE_FILE")
	_ = v.BindEnv("namespace.scratch_dir", "SANDRUN_SCRATCH_DIR")

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expandedPath)
		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigParseError); ok {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// SANDRUN_SEGMENTS is a colon-separated list of provider=dir pairs,
	// appended after the file-declared segments.
	if raw := os.Getenv("SANDRUN_SEGMENTS"); raw != "" {
		segs, err := ParseSegments(raw)
		if err != nil {
			return nil, err
		}
		cfg.Namespace.Segments = append(cfg.Namespace.Segments, segs...)
	}

	return &cfg, nil
}

// ParseSegments parses a colon-separated list of provider=dir entries. A
// trailing "!" on the provider marks the segment as isolated.
func ParseSegments(raw string) ([]SegmentConfig, error) {
	var out []SegmentConfig
	for _, entry := range strings.Split(raw, ":") {
		if entry == "" {
			continue
		}
		provider, dir, ok := strings.Cut(entry, "=")
		if !ok || provider == "" || dir == "" {
			return nil, fmt.Errorf("config: malformed segment entry %q (want provider=dir)", entry)
		}
		isolated := strings.HasSuffix(provider, "!")
		out = append(out, SegmentConfig{
			Provider: strings.TrimSuffix(provider, "!"),
			Dir:      dir,
			Isolated: isolated,
		})
	}
	return out, nil
}

// ParseByteSize parses strings like "64MB", "1GB", "512KB" or a bare byte
// count into bytes.
func ParseByteSize(s string) (uint64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, nil
	}
	mult := uint64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		mult, s = 1<<30, strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		mult, s = 1<<20, strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		mult, s = 1<<10, strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid byte size %q", s)
	}
	return n * mult, nil
}
