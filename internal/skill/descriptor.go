package skill

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"

	"github.com/born-ml/vision/internal/device"
)

// Kind is the closed set of skill families. Each family has its own
// binding type, checked at compile time through Skill[B].
type Kind int

// Skill families.
const (
	FaceSentiment Kind = iota
	ObjectDetector
	ObjectTracker
	SkeletalDetector
	ImageRectifier
)

var kindNames = map[Kind]string{
	FaceSentiment:    "facesentiment",
	ObjectDetector:   "objectdetector",
	ObjectTracker:    "objecttracker",
	SkeletalDetector: "skeletal",
	ImageRectifier:   "rectifier",
}

// Kinds lists every skill family in declaration order.
func Kinds() []Kind {
	return []Kind{FaceSentiment, ObjectDetector, ObjectTracker, SkeletalDetector, ImageRectifier}
}

// String returns the short kind name used by the CLI and HTTP API.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses a short kind name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown skill kind %q", ErrInvalidArgument, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// namespace seeds deterministic descriptor IDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/born-ml/vision/skills"))

// Descriptor is the immutable metadata of a skill: identity, version and
// the schema of its input and output features.
type Descriptor struct {
	ID          uuid.UUID           `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Version     string              `json:"version"`
	Author      string              `json:"author,omitempty"`
	Publisher   string              `json:"publisher,omitempty"`
	Kind        Kind                `json:"kind"`
	Inputs      []FeatureDescriptor `json:"inputs"`
	Outputs     []FeatureDescriptor `json:"outputs"`
	// DeviceKinds limits the device kinds the skill can run on; empty means all.
	DeviceKinds []device.Kind `json:"-"`
}

// NewDescriptor validates d and returns a copy. A zero ID is replaced by a
// name-derived UUID so that a skill keeps its ID across runs. Versions may
// omit the leading "v".
func NewDescriptor(d Descriptor) (*Descriptor, error) {
	if strings.TrimSpace(d.Name) == "" {
		return nil, fmt.Errorf("%w: descriptor name is empty", ErrInvalidArgument)
	}
	version := d.Version
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return nil, fmt.Errorf("%w: %q is not a semantic version", ErrInvalidArgument, d.Version)
	}
	if len(d.Inputs) == 0 || len(d.Outputs) == 0 {
		return nil, fmt.Errorf("%w: %s needs at least one input and one output", ErrInvalidArgument, d.Name)
	}

	seen := make(map[string]bool)
	for _, fds := range [][]FeatureDescriptor{d.Inputs, d.Outputs} {
		for _, fd := range fds {
			if fd.Name == "" {
				return nil, fmt.Errorf("%w: %s has an unnamed feature", ErrInvalidArgument, d.Name)
			}
			if seen[fd.Name] {
				return nil, fmt.Errorf("%w: %s declares feature %q twice", ErrInvalidArgument, d.Name, fd.Name)
			}
			seen[fd.Name] = true
		}
	}

	out := d
	out.Version = strings.TrimPrefix(semver.Canonical(version), "v")
	if out.ID == uuid.Nil {
		out.ID = uuid.NewSHA1(namespace, []byte(d.Kind.String()+"/"+d.Name))
	}
	out.Inputs = append([]FeatureDescriptor(nil), d.Inputs...)
	out.Outputs = append([]FeatureDescriptor(nil), d.Outputs...)
	out.DeviceKinds = append([]device.Kind(nil), d.DeviceKinds...)
	return &out, nil
}

// Input returns the input feature with the given name.
func (d *Descriptor) Input(name string) (FeatureDescriptor, bool) {
	return find(d.Inputs, name)
}

// Output returns the output feature with the given name.
func (d *Descriptor) Output(name string) (FeatureDescriptor, bool) {
	return find(d.Outputs, name)
}

func find(fds []FeatureDescriptor, name string) (FeatureDescriptor, bool) {
	for _, fd := range fds {
		if fd.Name == name {
			return fd, true
		}
	}
	return FeatureDescriptor{}, false
}

// SupportedDevices enumerates host devices, keeps those meeting minLevel and
// the descriptor's device kinds, and returns ErrNoDevices when none remain.
func (d *Descriptor) SupportedDevices(ctx context.Context, enum device.Enumerator, minLevel device.FeatureLevel) ([]device.ExecutionDevice, error) {
	devices, err := device.Enumerate(ctx, enum, minLevel)
	if err != nil {
		return nil, err
	}
	if len(d.DeviceKinds) == 0 {
		return devices, nil
	}
	return device.Filter(devices, d.DeviceKinds...)
}

// CheckDevice returns ErrUnsupportedDevice when dev's kind is not allowed.
func (d *Descriptor) CheckDevice(dev device.ExecutionDevice) error {
	if len(d.DeviceKinds) == 0 {
		return nil
	}
	for _, k := range d.DeviceKinds {
		if dev.Kind == k {
			return nil
		}
	}
	return fmt.Errorf("%w: %s cannot run on %s", ErrUnsupportedDevice, d.Name, dev)
}
