package skill

import (
	"context"
	"fmt"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/onnx"
	"github.com/born-ml/vision/internal/tensor"
)

// Session runs a loaded model. *onnx.Model implements it.
type Session interface {
	Run(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)
	Close() error
}

// LoadSession loads the ONNX model at path for dev.
func LoadSession(path string, dev device.ExecutionDevice) (Session, error) {
	opts := onnx.DefaultLoadOptions()
	opts.Device = dev
	m, err := onnx.Load(path, opts)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return m, nil
}

// Output returns the named output of a session run, checking its data type.
func Output(outputs map[string]*tensor.Tensor, name string, dtype tensor.DataType) (*tensor.Tensor, error) {
	t, ok := outputs[name]
	if !ok {
		return nil, fmt.Errorf("model produced no output %q", name)
	}
	if t.DType() != dtype {
		return nil, fmt.Errorf("output %q is %s, want %s", name, t.DType(), dtype)
	}
	return t, nil
}
