package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults registers defaults for all configuration keys.
func setDefaults(v *viper.Viper) {
	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	// Limits
	v.SetDefault("limits.max_memory", "256MB")
	v.SetDefault("limits.max_cpu", 10*time.Second)
	v.SetDefault("limits.max_wall", 30*time.Second)
	v.SetDefault("limits.max_stack_depth", 2048)

	// Namespace
	v.SetDefault("namespace.scratch_dir", "~/.sandrun/packages")
	v.SetDefault("namespace.system_dir", "/usr/lib/sandrun/modules")

	// Audit
	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.path", "~/.sandrun/audit.db")

	// Files
	v.SetDefault("files.allowed_paths", []string{"~/.sandrun/", "/tmp"})
	v.SetDefault("files.max_write_size", int64(10*1024*1024))
}
