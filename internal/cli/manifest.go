package cli

import (
	"fmt"
	"os"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"gopkg.in/yaml.v3"
)

// Manifest holds per-file crop overrides for a cropctl run.
//
//	ratio: "16:9"
//	images:
//	  banner.png:
//	    crop: {x: 0, y: 10, width: 100, height: 50, unit: "%"}
//	  portrait.jpg:
//	    ratio: "3:4"
//	  logo.png:
//	    uncropped: true
type Manifest struct {
	// Ratio applies to every file without its own ratio.
	Ratio  string                   `yaml:"ratio"`
	Images map[string]ManifestEntry `yaml:"images"`
}

// ManifestEntry overrides one file, matched by base name.
type ManifestEntry struct {
	Ratio     string        `yaml:"ratio"`
	Crop      *ManifestCrop `yaml:"crop"`
	Uncropped bool          `yaml:"uncropped"`
}

// ManifestCrop is a crop rectangle in natural pixels or percent.
type ManifestCrop struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Unit   string  `yaml:"unit"`
}

// CropRect converts the manifest crop. Unit defaults to pixels.
func (c ManifestCrop) CropRect() domain.CropRect {
	unit := domain.CropUnit(c.Unit)
	if unit == "" {
		unit = domain.CropUnitPixel
	}
	return domain.CropRect{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height, Unit: unit}
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a manifest and checks every ratio and unit.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if m.Ratio != "" && !domain.IsValidAspectRatio(m.Ratio) {
		return nil, fmt.Errorf("manifest: unknown aspect ratio %q", m.Ratio)
	}
	for name, entry := range m.Images {
		if entry.Ratio != "" && !domain.IsValidAspectRatio(entry.Ratio) {
			return nil, fmt.Errorf("manifest: %s: unknown aspect ratio %q", name, entry.Ratio)
		}
		if entry.Crop != nil && !entry.Crop.CropRect().Unit.IsValid() {
			return nil, fmt.Errorf("manifest: %s: unit must be 'px' or '%%'", name)
		}
		if entry.Crop != nil && entry.Uncropped {
			return nil, fmt.Errorf("manifest: %s: crop and uncropped are mutually exclusive", name)
		}
	}
	return &m, nil
}

// Entry returns the override for a file, with the manifest-wide ratio folded in.
func (m *Manifest) Entry(filename string) ManifestEntry {
	if m == nil {
		return ManifestEntry{}
	}
	entry := m.Images[filename]
	if entry.Ratio == "" {
		entry.Ratio = m.Ratio
	}
	return entry
}
