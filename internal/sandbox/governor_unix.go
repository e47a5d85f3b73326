//go:build unix

package sandbox

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// applyProcessLimits installs the OS-level rlimit backstops. These only
// ever tighten: an existing stricter limit is left alone. The sampling
// watchdog is expected to fire first; the rlimits catch a runaway the
// watchdog missed.
func applyProcessLimits(l Limits, logger zerolog.Logger) {
	// Address space, with headroom for the host runtime itself.
	setIfTighter(unix.RLIMIT_AS, l.MaxAddressSpaceBytes*4, logger)

	// CPU seconds, rounded up past the watchdog threshold.
	cpuSecs := uint64((l.MaxCPU + 2*time.Second) / time.Second)
	if cpuSecs > 0 {
		setIfTighter(unix.RLIMIT_CPU, cpuSecs, logger)
	}
}

func setIfTighter(resource int, limit uint64, logger zerolog.Logger) {
	if limit == 0 {
		return
	}
	var cur unix.Rlimit
	if err := unix.Getrlimit(resource, &cur); err != nil {
		logger.Warn().Err(err).Int("resource", resource).Msg("getrlimit failed")
		return
	}
	if cur.Cur != unix.RLIM_INFINITY && cur.Cur <= limit {
		return
	}
	next := unix.Rlimit{Cur: limit, Max: cur.Max}
	if cur.Max != unix.RLIM_INFINITY && cur.Max < limit {
		next.Cur = cur.Max
	}
	if err := unix.Setrlimit(resource, &next); err != nil {
		logger.Warn().Err(err).Int("resource", resource).Msg("setrlimit failed")
	}
}

// processCPUTime returns the combined user+system CPU time of the process.
func processCPUTime() (time.Duration, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	user := time.Duration(ru.Utime.Sec)*time.Second + time.Duration(ru.Utime.Usec)*time.Microsecond
	sys := time.Duration(ru.Stime.Sec)*time.Second + time.Duration(ru.Stime.Usec)*time.Microsecond
	return user + sys, true
}
