//go:build webgpu

package device

import (
	"context"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

type webgpuEnumerator struct{}

// DefaultEnumerator returns the WebGPU adapter enumerator.
func DefaultEnumerator() Enumerator {
	return webgpuEnumerator{}
}

// Adapters reports the adapters WebGPU exposes. WebGPU has no way to list
// every adapter, so the high-performance and low-power preferences are both
// requested and de-duplicated by name.
func (webgpuEnumerator) Adapters(_ context.Context) (adapters []Adapter, err error) {
	// wgpu panics when the native library is missing.
	defer func() {
		if r := recover(); r != nil {
			adapters = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	seen := make(map[string]bool)
	for _, pref := range []wgpu.PowerPreference{wgpu.PowerPreferenceHighPerformance, wgpu.PowerPreferenceLowPower} {
		adapter, reqErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{PowerPreference: pref})
		if reqErr != nil {
			continue
		}
		info := adapter.GetInfo()
		adapter.Release()

		if seen[info.Device] {
			continue
		}
		seen[info.Device] = true

		kind := KindGPU
		if info.AdapterType == wgpu.AdapterTypeCPU {
			kind = KindCPU
		}
		adapters = append(adapters, Adapter{
			Name:         info.Device,
			Vendor:       info.Vendor,
			Description:  info.Description,
			Kind:         kind,
			FeatureLevel: levelForBackend(info.BackendType),
		})
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("webgpu: no adapters available")
	}
	return adapters, nil
}

func levelForBackend(b wgpu.BackendType) FeatureLevel {
	switch b {
	case wgpu.BackendTypeD3D12, wgpu.BackendTypeVulkan, wgpu.BackendTypeMetal:
		return Level12_0
	case wgpu.BackendTypeD3D11:
		return Level11_0
	case wgpu.BackendTypeOpenGL, wgpu.BackendTypeOpenGLES:
		return Level10_0
	default:
		return LevelUnknown
	}
}
