// Package namespace builds the module search order for the sandbox: an
// ordered list of provider-owned segments. Segments are never merged into
// one physical directory; collisions resolve by path order, which keeps one
// provider's pinned dependencies out of another's namespace.
package namespace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"sandrun/internal/sbxerr"
)

// Reserved provider names for the two built-in segments.
const (
	ScratchProvider = "scratch"
	SystemProvider  = "system"
)

// Segment is one search-path entry owned by a single provider.
type Segment struct {
	Provider string
	Dir      string
	// Isolated segments are skipped when resolving on behalf of a
	// conflicting provider.
	Isolated bool

	manifest *Manifest
}

// Resolved is the outcome of a module lookup.
type Resolved struct {
	Path     string
	Provider string
}

// Resolver maps module names to files across the segment order: trusted
// segments first (declaration order), then the writable scratch segment,
// then the system default segment. The scratch segment can shadow system
// modules but never a trusted provider's.
type Resolver struct {
	segments []Segment // full order including scratch and system
	// conflicts[a][b] is set when providers a and b pin incompatible
	// versions of a shared module.
	conflicts map[string]map[string]bool
	logger    zerolog.Logger

	mu    sync.RWMutex
	cache map[string]Resolved

	watch *watcher
}

// New constructs a Resolver. Trusted segments keep their declaration order.
// Construction fails when two conflicting providers share a directory or
// are not both isolated.
func New(trusted []Segment, scratchDir, systemDir string, logger zerolog.Logger) (*Resolver, error) {
	segments := make([]Segment, 0, len(trusted)+2)
	for _, seg := range trusted {
		m, err := LoadManifest(seg.Dir)
		if err != nil {
			return nil, err
		}
		seg.manifest = m
		segments = append(segments, seg)
	}
	if scratchDir != "" {
		segments = append(segments, Segment{Provider: ScratchProvider, Dir: scratchDir})
	}
	if systemDir != "" {
		segments = append(segments, Segment{Provider: SystemProvider, Dir: systemDir})
	}

	r := &Resolver{
		segments:  segments,
		conflicts: make(map[string]map[string]bool),
		logger:    logger,
		cache:     make(map[string]Resolved),
	}
	if err := r.detectConflicts(); err != nil {
		return nil, err
	}

	if scratchDir != "" {
		w, err := newWatcher(scratchDir, r.invalidate, logger)
		if err != nil {
			// Scratch watching is best-effort; installs then need a restart.
			logger.Warn().Err(err).Str("dir", scratchDir).Msg("scratch segment watch unavailable")
		} else {
			r.watch = w
		}
	}

	return r, nil
}

// detectConflicts builds the pairwise conflict table and enforces the
// isolation rule: conflicting providers never share a physical segment and
// both must be marked isolated.
func (r *Resolver) detectConflicts() error {
	for i := range r.segments {
		for j := i + 1; j < len(r.segments); j++ {
			a, b := &r.segments[i], &r.segments[j]
			if a.Provider != b.Provider && filepath.Clean(a.Dir) == filepath.Clean(b.Dir) && a.Dir != "" {
				return fmt.Errorf("namespace: providers %q and %q share segment %s", a.Provider, b.Provider, a.Dir)
			}
			if !a.manifest.conflictsWith(b.manifest) {
				continue
			}
			if !a.Isolated || !b.Isolated {
				return fmt.Errorf("namespace: providers %q and %q pin conflicting versions but are not both isolated", a.Provider, b.Provider)
			}
			r.markConflict(a.Provider, b.Provider)
		}
	}
	return nil
}

func (r *Resolver) markConflict(a, b string) {
	if r.conflicts[a] == nil {
		r.conflicts[a] = make(map[string]bool)
	}
	if r.conflicts[b] == nil {
		r.conflicts[b] = make(map[string]bool)
	}
	r.conflicts[a][b] = true
	r.conflicts[b][a] = true
}

// Conflicting reports whether the two providers are mutually conflicting.
func (r *Resolver) Conflicting(a, b string) bool {
	return r.conflicts[a][b]
}

// Order returns the effective segment lookup order.
func (r *Resolver) Order() []Segment {
	out := make([]Segment, len(r.segments))
	copy(out, r.segments)
	return out
}

// Resolve looks up a module by name for top-level user code, walking all
// segments in order.
func (r *Resolver) Resolve(name string) (Resolved, error) {
	return r.ResolveFor("", name)
}

// ResolveFor looks up a module on behalf of a provider. Segments owned by
// providers that conflict with the requester are skipped entirely, so a
// module resolved for one provider is never served from a conflicting
// provider's segment regardless of search order.
func (r *Resolver) ResolveFor(requester, name string) (Resolved, error) {
	if err := checkName(name); err != nil {
		return Resolved{}, err
	}

	key := requester + "\x00" + name
	r.mu.RLock()
	if res, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return res, nil
	}
	r.mu.RUnlock()

	// A provider's own transitive requires resolve inside its own isolated
	// segment before anything shared.
	if requester != "" {
		for _, seg := range r.segments {
			if seg.Provider != requester || seg.Dir == "" {
				continue
			}
			if path, ok := findModuleFile(seg.Dir, name); ok {
				return r.remember(key, Resolved{Path: path, Provider: seg.Provider}), nil
			}
		}
	}

	for _, seg := range r.segments {
		if seg.Dir == "" {
			continue
		}
		if requester != "" && r.conflicts[requester][seg.Provider] {
			continue
		}
		path, ok := findModuleFile(seg.Dir, name)
		if !ok {
			continue
		}
		return r.remember(key, Resolved{Path: path, Provider: seg.Provider}), nil
	}

	return Resolved{}, fmt.Errorf("%w: %s", sbxerr.ErrModuleNotFound, name)
}

func (r *Resolver) remember(key string, res Resolved) Resolved {
	r.mu.Lock()
	r.cache[key] = res
	r.mu.Unlock()
	return res
}

// invalidate drops the resolution cache. Called when the scratch segment
// changes on disk.
func (r *Resolver) invalidate() {
	r.mu.Lock()
	r.cache = make(map[string]Resolved)
	r.mu.Unlock()
	r.logger.Debug().Msg("namespace cache invalidated")
}

// Close stops the scratch segment watcher.
func (r *Resolver) Close() error {
	if r.watch != nil {
		return r.watch.close()
	}
	return nil
}

// checkName rejects module names that escape segment directories.
func checkName(name string) error {
	if name == "" || filepath.IsAbs(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %s", sbxerr.ErrModuleNotFound, name)
	}
	return nil
}

// findModuleFile probes dir for name.js or name/index.js.
func findModuleFile(dir, name string) (string, bool) {
	candidates := []string{
		filepath.Join(dir, name+".js"),
		filepath.Join(dir, name, "index.js"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}
