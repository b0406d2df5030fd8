// Package device describes where skill inference runs and enumerates the
// execution devices available on the host.
//
// The CPU is always available. GPU adapters are discovered through WebGPU
// (build tag "webgpu") and retained only when their feature level meets the
// caller's minimum. A device is never substituted for another: callers that
// receive no devices must not attempt evaluation.
package device

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoDevices is returned when no device satisfies the request.
	ErrNoDevices = errors.New("no execution devices available")
	// ErrUnsupportedDevice is returned when a device kind cannot run the requested work.
	ErrUnsupportedDevice = errors.New("unsupported execution device")
)

// Kind discriminates ExecutionDevice variants.
type Kind int

// Device kinds.
const (
	KindCPU Kind = iota
	KindGPU
	KindAccelerator
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindGPU:
		return "gpu"
	case KindAccelerator:
		return "accelerator"
	default:
		return "unknown"
	}
}

// FeatureLevel is the DirectX-style capability level of a GPU.
// Levels are ordered, so plain integer comparison expresses "at least".
type FeatureLevel int

// Feature levels in ascending order.
const (
	LevelUnknown FeatureLevel = iota
	Level9_1
	Level9_2
	Level9_3
	Level10_0
	Level10_1
	Level11_0
	Level11_1
	Level12_0
	Level12_1
	Level12_2
)

var levelNames = map[FeatureLevel]string{
	Level9_1:  "9_1",
	Level9_2:  "9_2",
	Level9_3:  "9_3",
	Level10_0: "10_0",
	Level10_1: "10_1",
	Level11_0: "11_0",
	Level11_1: "11_1",
	Level12_0: "12_0",
	Level12_1: "12_1",
	Level12_2: "12_2",
}

// String returns the level as "major_minor".
func (l FeatureLevel) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "unknown"
}

// ParseFeatureLevel parses "12_0", "12.0" or "12" style level names.
func ParseFeatureLevel(s string) (FeatureLevel, error) {
	norm := strings.ReplaceAll(strings.TrimSpace(s), ".", "_")
	if !strings.Contains(norm, "_") {
		norm += "_0"
	}
	for l, name := range levelNames {
		if name == norm {
			return l, nil
		}
	}
	return LevelUnknown, fmt.Errorf("unknown feature level %q", s)
}

// ExecutionDevice is a tagged union over {CPU, GPU with feature level,
// generic accelerator}. FeatureLevel is only meaningful for KindGPU.
type ExecutionDevice struct {
	Kind         Kind
	Name         string
	Description  string
	FeatureLevel FeatureLevel
}

// CPU returns the generic CPU device.
func CPU() ExecutionDevice {
	return ExecutionDevice{Kind: KindCPU, Name: "CPU"}
}

// GPU returns a GPU device with the given feature level.
func GPU(name string, level FeatureLevel) ExecutionDevice {
	return ExecutionDevice{Kind: KindGPU, Name: name, FeatureLevel: level}
}

// Accelerator returns a generic accelerator device.
func Accelerator(name string) ExecutionDevice {
	return ExecutionDevice{Kind: KindAccelerator, Name: name}
}

// MeetsLevel reports whether the device satisfies the minimum feature level.
// Only GPUs carry a level; other kinds always qualify.
func (d ExecutionDevice) MeetsLevel(minLevel FeatureLevel) bool {
	if d.Kind != KindGPU {
		return true
	}
	return d.FeatureLevel >= minLevel
}

// String renders the device for listings.
func (d ExecutionDevice) String() string {
	switch d.Kind {
	case KindGPU:
		return fmt.Sprintf("%s (%s, feature level %s)", d.Name, d.Kind, d.FeatureLevel)
	default:
		return fmt.Sprintf("%s (%s)", d.Name, d.Kind)
	}
}
