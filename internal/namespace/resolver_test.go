package namespace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandrun/internal/sbxerr"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// makeProvider creates a segment directory with a manifest and one module.
func makeProvider(t *testing.T, root, name, pinModule, pinVersion string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	manifest := "name: " + name + "\nversion: 1.0.0\n"
	if pinModule != "" {
		manifest += "pins:\n  " + pinModule + ": " + pinVersion + "\n"
	}
	writeFile(t, filepath.Join(dir, ManifestFile), manifest)
	writeFile(t, filepath.Join(dir, pinModule+".js"), "module.exports = '"+name+"';")
	return dir
}

func TestResolveOrder(t *testing.T) {
	root := t.TempDir()
	trustedDir := filepath.Join(root, "trusted")
	scratchDir := filepath.Join(root, "scratch")
	systemDir := filepath.Join(root, "system")

	writeFile(t, filepath.Join(trustedDir, "shared.js"), "trusted")
	writeFile(t, filepath.Join(scratchDir, "shared.js"), "scratch")
	writeFile(t, filepath.Join(scratchDir, "userpkg.js"), "scratch")
	writeFile(t, filepath.Join(systemDir, "shared.js"), "system")
	writeFile(t, filepath.Join(systemDir, "userpkg.js"), "system")
	writeFile(t, filepath.Join(systemDir, "base.js"), "system")

	r, err := New([]Segment{{Provider: "solver", Dir: trustedDir}}, scratchDir, systemDir, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	// Trusted provider wins over scratch and system.
	res, err := r.Resolve("shared")
	require.NoError(t, err)
	assert.Equal(t, "solver", res.Provider)

	// Scratch shadows system defaults.
	res, err = r.Resolve("userpkg")
	require.NoError(t, err)
	assert.Equal(t, ScratchProvider, res.Provider)

	// System serves what nothing else has.
	res, err = r.Resolve("base")
	require.NoError(t, err)
	assert.Equal(t, SystemProvider, res.Provider)
}

func TestResolveNotFound(t *testing.T) {
	r, err := New(nil, t.TempDir(), "", zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Resolve("ghost")
	assert.True(t, errors.Is(err, sbxerr.ErrModuleNotFound))
}

func TestResolveRejectsEscapingNames(t *testing.T) {
	r, err := New(nil, t.TempDir(), "", zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	for _, name := range []string{"", "../etc/passwd", "/etc/passwd", "a/../../b"} {
		_, err := r.Resolve(name)
		assert.Error(t, err, name)
	}
}

func TestConflictingProvidersStayIsolated(t *testing.T) {
	root := t.TempDir()
	dirA := makeProvider(t, root, "gurobi", "proto", "3.20.1")
	dirB := makeProvider(t, root, "cbc", "proto", "4.25.0")

	r, err := New([]Segment{
		{Provider: "gurobi", Dir: dirA, Isolated: true},
		{Provider: "cbc", Dir: dirB, Isolated: true},
	}, "", "", zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.Conflicting("gurobi", "cbc"))

	// Resolving for one provider never lands in the conflicting provider's
	// segment, regardless of search order.
	res, err := r.ResolveFor("cbc", "proto")
	require.NoError(t, err)
	assert.Equal(t, "cbc", res.Provider)
	assert.Equal(t, filepath.Join(dirB, "proto.js"), res.Path)

	res, err = r.ResolveFor("gurobi", "proto")
	require.NoError(t, err)
	assert.Equal(t, "gurobi", res.Provider)

	// Top-level code still resolves by plain order.
	res, err = r.Resolve("proto")
	require.NoError(t, err)
	assert.Equal(t, "gurobi", res.Provider)
}

func TestConflictWithoutIsolationRejected(t *testing.T) {
	root := t.TempDir()
	dirA := makeProvider(t, root, "gurobi", "proto", "3.20.1")
	dirB := makeProvider(t, root, "cbc", "proto", "4.25.0")

	_, err := New([]Segment{
		{Provider: "gurobi", Dir: dirA, Isolated: true},
		{Provider: "cbc", Dir: dirB},
	}, "", "", zerolog.Nop())
	assert.Error(t, err)
}

func TestSharedSegmentRejected(t *testing.T) {
	dir := t.TempDir()
	_, err := New([]Segment{
		{Provider: "a", Dir: dir},
		{Provider: "b", Dir: dir},
	}, "", "", zerolog.Nop())
	assert.Error(t, err)
}

func TestNonConflictingPinsCoexist(t *testing.T) {
	root := t.TempDir()
	dirA := makeProvider(t, root, "gurobi", "proto", "3.20.1")
	dirB := makeProvider(t, root, "cbc", "mathlib", "2.0.0")

	r, err := New([]Segment{
		{Provider: "gurobi", Dir: dirA},
		{Provider: "cbc", Dir: dirB},
	}, "", "", zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	assert.False(t, r.Conflicting("gurobi", "cbc"))
}

func TestScratchInstallInvalidatesCache(t *testing.T) {
	scratchDir := t.TempDir()

	r, err := New(nil, scratchDir, "", zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Resolve("fresh")
	require.Error(t, err)

	writeFile(t, filepath.Join(scratchDir, "fresh.js"), "module.exports = 1;")

	// The fsnotify event lands asynchronously.
	require.Eventually(t, func() bool {
		_, err := r.Resolve("fresh")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestResolveCachesHits(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "mod.js"), "x")

	r, err := New([]Segment{{Provider: "p", Dir: dir}}, "", "", zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Resolve("mod")
	require.NoError(t, err)

	// Removing the file does not affect the cached entry; only scratch
	// changes invalidate.
	require.NoError(t, os.Remove(filepath.Join(dir, "mod.js")))
	second, err := r.Resolve("mod")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
