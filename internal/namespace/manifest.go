package namespace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the provider manifest looked up in each segment directory.
const ManifestFile = "provider.yaml"

// Manifest describes one provider's segment: its identity and the
// transitive dependency versions it pins. Two providers pinning the same
// module to different versions are mutually conflicting and must live on
// isolated segments.
type Manifest struct {
	Name    string            `yaml:"name"`
	Version string            `yaml:"version"`
	Pins    map[string]string `yaml:"pins,omitempty"`
}

// LoadManifest reads the provider manifest from a segment directory. A
// missing manifest is not an error; the segment just declares no pins.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("namespace: read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("namespace: parse manifest in %s: %w", dir, err)
	}
	return &m, nil
}

// conflictsWith reports whether two manifests pin a shared module to
// different versions. Versions compare by semver when both parse, by
// string equality otherwise.
func (m *Manifest) conflictsWith(other *Manifest) bool {
	if m == nil || other == nil {
		return false
	}
	for module, pin := range m.Pins {
		otherPin, ok := other.Pins[module]
		if !ok {
			continue
		}
		if !sameVersion(pin, otherPin) {
			return true
		}
	}
	return false
}

func sameVersion(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return va.Equal(vb)
}
