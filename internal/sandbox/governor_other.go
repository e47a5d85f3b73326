//go:build !unix

package sandbox

import (
	"time"

	"github.com/rs/zerolog"
)

// No rlimit backstop outside unix; the sampling watchdog and the
// wall-clock interrupt still apply.
func applyProcessLimits(l Limits, logger zerolog.Logger) {}

func processCPUTime() (time.Duration, bool) {
	return 0, false
}
