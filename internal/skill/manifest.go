package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ManifestFileName is the file looked for in each skill model directory.
const ManifestFileName = "manifest.yaml"

// Manifest describes a skill's model files and metadata on disk:
//
//	kind: facesentiment
//	name: Face sentiment analyzer
//	version: 1.2.0
//	model: emotion-ferplus-8.onnx
//	detector: version-RFB-320.onnx
//	inputs:
//	  InputImage: Input3
//	outputs:
//	  FaceSentimentScores: Plus692_Output_0
//	thresholds:
//	  face: 0.7
type Manifest struct {
	Kind        Kind               `yaml:"kind"`
	Name        string             `yaml:"name,omitempty"`
	ID          string             `yaml:"id,omitempty"`
	Version     string             `yaml:"version,omitempty"`
	Author      string             `yaml:"author,omitempty"`
	Publisher   string             `yaml:"publisher,omitempty"`
	Description string             `yaml:"description,omitempty"`
	Model       string             `yaml:"model,omitempty"`
	Detector    string             `yaml:"detector,omitempty"`
	Labels      []string           `yaml:"labels,omitempty"`
	Inputs      map[string]string  `yaml:"inputs,omitempty"`
	Outputs     map[string]string  `yaml:"outputs,omitempty"`
	Thresholds  map[string]float64 `yaml:"thresholds,omitempty"`

	dir string
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: manifest paths come from configured model dirs.
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

// ParseManifest decodes manifest YAML. Relative model paths resolve against
// the current directory until the manifest is loaded from a file.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.ID != "" {
		if _, err := uuid.Parse(m.ID); err != nil {
			return nil, fmt.Errorf("manifest id %q: %w", m.ID, err)
		}
	}
	return &m, nil
}

// Dir returns the directory the manifest was loaded from.
func (m *Manifest) Dir() string {
	return m.dir
}

func (m *Manifest) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.dir, name)
}

// ModelPath returns the absolute or manifest-relative path of the main model.
func (m *Manifest) ModelPath() string {
	return m.resolve(m.Model)
}

// DetectorPath returns the path of the auxiliary detector model, if any.
func (m *Manifest) DetectorPath() string {
	return m.resolve(m.Detector)
}

// Threshold returns a named threshold or def.
func (m *Manifest) Threshold(name string, def float64) float64 {
	if v, ok := m.Thresholds[name]; ok {
		return v
	}
	return def
}

// InputName maps a feature name to the model tensor name, defaulting to def.
func (m *Manifest) InputName(feature, def string) string {
	if v, ok := m.Inputs[feature]; ok {
		return v
	}
	return def
}

// OutputName maps a feature name to the model tensor name, defaulting to def.
func (m *Manifest) OutputName(feature, def string) string {
	if v, ok := m.Outputs[feature]; ok {
		return v
	}
	return def
}

// Apply overrides the metadata of d with the fields the manifest sets.
func (m *Manifest) Apply(d Descriptor) Descriptor {
	if m == nil {
		return d
	}
	if m.Name != "" {
		d.Name = m.Name
	}
	if m.ID != "" {
		d.ID = uuid.MustParse(m.ID)
	}
	if m.Version != "" {
		d.Version = m.Version
	}
	if m.Author != "" {
		d.Author = m.Author
	}
	if m.Publisher != "" {
		d.Publisher = m.Publisher
	}
	if m.Description != "" {
		d.Description = m.Description
	}
	return d
}

// DiscoverManifests loads <dir>/<sub>/manifest.yaml for every subdirectory
// of every dir. Earlier dirs take precedence; within a dir, subdirectories
// are visited in name order and the first manifest of each kind wins.
func DiscoverManifests(dirs ...string) (map[Kind]*Manifest, error) {
	found := make(map[Kind]*Manifest)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			path := filepath.Join(dir, e.Name(), ManifestFileName)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			m, err := LoadManifest(path)
			if err != nil {
				return nil, err
			}
			if _, dup := found[m.Kind]; !dup {
				found[m.Kind] = m
			}
		}
	}
	return found, nil
}
