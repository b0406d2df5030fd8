package device

import (
	"context"
	"fmt"

	"github.com/born-ml/vision/internal/logger"
)

// Adapter is a raw accelerator reported by the host platform.
type Adapter struct {
	Name         string
	Vendor       string
	Description  string
	Kind         Kind
	FeatureLevel FeatureLevel
}

// Enumerator discovers accelerator adapters on the host.
type Enumerator interface {
	Adapters(ctx context.Context) ([]Adapter, error)
}

// EnumeratorFunc adapts a function to the Enumerator interface.
type EnumeratorFunc func(ctx context.Context) ([]Adapter, error)

// Adapters calls f.
func (f EnumeratorFunc) Adapters(ctx context.Context) ([]Adapter, error) {
	return f(ctx)
}

// Enumerate lists the CPU followed by every adapter meeting minLevel.
// Adapter discovery failures are logged and leave only the CPU.
func Enumerate(ctx context.Context, enum Enumerator, minLevel FeatureLevel) ([]ExecutionDevice, error) {
	devices := []ExecutionDevice{describeCPU(ctx)}

	if enum == nil {
		return devices, nil
	}

	adapters, err := enum.Adapters(ctx)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("accelerator enumeration failed")
		return devices, nil
	}

	for _, a := range adapters {
		d := ExecutionDevice{
			Kind:         a.Kind,
			Name:         a.Name,
			Description:  a.Description,
			FeatureLevel: a.FeatureLevel,
		}
		if d.Kind == KindCPU {
			continue
		}
		if !d.MeetsLevel(minLevel) {
			logger.G(ctx).WithField("adapter", a.Name).
				WithField("feature_level", a.FeatureLevel.String()).
				Debug("adapter below minimum feature level")
			continue
		}
		devices = append(devices, d)
	}

	return devices, nil
}

// Filter keeps only devices of the given kinds.
// Returns ErrNoDevices when nothing qualifies.
func Filter(devices []ExecutionDevice, kinds ...Kind) ([]ExecutionDevice, error) {
	out := make([]ExecutionDevice, 0, len(devices))
	for _, d := range devices {
		for _, k := range kinds {
			if d.Kind == k {
				out = append(out, d)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoDevices
	}
	return out, nil
}

// Select returns devices[index].
func Select(devices []ExecutionDevice, index int) (ExecutionDevice, error) {
	if len(devices) == 0 {
		return ExecutionDevice{}, ErrNoDevices
	}
	if index < 0 || index >= len(devices) {
		return ExecutionDevice{}, fmt.Errorf("device index %d out of range [0, %d)", index, len(devices))
	}
	return devices[index], nil
}
