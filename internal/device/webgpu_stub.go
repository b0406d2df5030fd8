//go:build !webgpu

package device

import "context"

type noAdapters struct{}

// DefaultEnumerator returns an enumerator that reports no accelerators.
// Build with -tags webgpu to discover GPUs.
func DefaultEnumerator() Enumerator {
	return noAdapters{}
}

func (noAdapters) Adapters(context.Context) ([]Adapter, error) {
	return nil, nil
}
