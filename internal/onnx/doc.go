// Package onnx loads ONNX models and runs them on the CPU.
//
// The protobuf wire format is decoded by hand (no generated code), covering
// the subset of onnx.proto needed for inference: model metadata, the graph,
// initializers, node attributes and input/output value infos.
//
// A loaded Model acts as an inference session for vision skills:
//
//	model, err := onnx.Load("emotion_ferplus.onnx")
//	if err != nil {
//	    return err
//	}
//	defer model.Close()
//
//	for _, in := range model.Inputs() {
//	    fmt.Println(in.Name, in.DataType, in.Shape) // Input3 float32 [1 1 64 64]
//	}
//	outputs, err := model.Run(ctx, map[string]*tensor.Tensor{"Input3": input})
//
// Only the CPU has an execution provider. Requesting any other device kind
// fails with device.ErrUnsupportedDevice rather than silently running on the CPU.
package onnx
