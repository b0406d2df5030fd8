// Package rectifier is the image scanning skill: it warps a quadrilateral
// region, such as a photographed document, into an upright rectangle.
// It runs no model and is CPU only.
package rectifier

import (
	"context"
	"fmt"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/skill"
)

// Feature names.
const (
	InputImage        = "InputImage"
	InputQuad         = "InputQuad"
	InterpolationKind = "InterpolationKind"
	OutputImage       = "OutputImage"
)

// NewDescriptor returns the rectifier descriptor. m may be nil.
func NewDescriptor(m *skill.Manifest) (*skill.Descriptor, error) {
	return skill.NewDescriptor(m.Apply(skill.Descriptor{
		Name:        "Image rectifier",
		Description: "Warps a quadrilateral region into an upright image",
		Version:     "1.0.0",
		Author:      "born-ml",
		Publisher:   "born-ml",
		Kind:        skill.ImageRectifier,
		Inputs: []skill.FeatureDescriptor{
			{Name: InputImage, Description: "Source image", Kind: skill.KindImage, Required: true, PixelFormat: imaging.BGRA8},
			{Name: InputQuad, Description: "Normalized x, y of the top-left, top-right, bottom-right and bottom-left corners", Kind: skill.KindTensorFloat, Shape: []int64{8}},
			{Name: InterpolationKind, Description: "bilinear or nearest", Kind: skill.KindTensorString, Shape: []int64{1}},
		},
		Outputs: []skill.FeatureDescriptor{
			{Name: OutputImage, Description: "Rectified image", Kind: skill.KindImage, PixelFormat: imaging.BGRA8},
		},
		DeviceKinds: []device.Kind{device.KindCPU},
	}))
}

// Binding holds the features of one rectification.
type Binding struct {
	*skill.Binding
}

// Base implements skill.Bound.
func (b *Binding) Base() *skill.Binding {
	if b == nil {
		return nil
	}
	return b.Binding
}

// SetInputImage sets the source image.
func (b *Binding) SetInputImage(f *imaging.Frame) error {
	return b.SetImage(InputImage, f)
}

// SetQuad sets the normalized corners, in TL, TR, BR, BL order. 0 and 1
// are the centers of the first and last pixel.
func (b *Binding) SetQuad(quad [4]Point) error {
	v := make([]float32, 0, 8)
	for _, p := range quad {
		v = append(v, float32(p.X), float32(p.Y))
	}
	fv, err := skill.FloatValue(v)
	if err != nil {
		return err
	}
	return b.Set(InputQuad, fv)
}

// SetInterpolation selects the sampling method.
func (b *Binding) SetInterpolation(i Interpolation) error {
	v, err := skill.StringValue([]string{i.String()})
	if err != nil {
		return err
	}
	return b.Set(InterpolationKind, v)
}

// OutputImage returns the rectified image of the last evaluation.
func (b *Binding) OutputImage() *imaging.Frame {
	return b.Image(OutputImage)
}

var fullFrame = [4]Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

// Skill is the image rectifier.
type Skill struct {
	desc     *skill.Descriptor
	dev      device.ExecutionDevice
	parallel parallel.Config
}

var _ skill.Skill[*Binding] = (*Skill)(nil)

// New creates a rectifier. dev must be a CPU.
func New(desc *skill.Descriptor, dev device.ExecutionDevice) (*Skill, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: nil descriptor", skill.ErrInvalidArgument)
	}
	if err := desc.CheckDevice(dev); err != nil {
		return nil, err
	}
	return &Skill{desc: desc, dev: dev, parallel: parallel.DefaultConfig()}, nil
}

// Descriptor implements skill.Skill.
func (s *Skill) Descriptor() *skill.Descriptor { return s.desc }

// Device implements skill.Skill.
func (s *Skill) Device() device.ExecutionDevice { return s.dev }

// CreateBinding implements skill.Skill.
func (s *Skill) CreateBinding() (*Binding, error) {
	return &Binding{skill.NewBinding(s.desc, s)}, nil
}

// Evaluate rectifies the input image. Without a quad the whole frame is used.
func (s *Skill) Evaluate(ctx context.Context, b *Binding) error {
	frame, err := skill.PrepareImage(ctx, s, b, InputImage)
	if err != nil {
		return err
	}

	quad := fullFrame
	if v := b.Floats(InputQuad); v != nil {
		for i := range quad {
			quad[i] = Point{float64(v[2*i]), float64(v[2*i+1])}
		}
	}
	for i := range quad {
		quad[i].X *= float64(frame.Width - 1)
		quad[i].Y *= float64(frame.Height - 1)
	}

	interp := Bilinear
	if v := b.Strings(InterpolationKind); len(v) > 0 {
		if interp, err = ParseInterpolation(v[0]); err != nil {
			return fmt.Errorf("%w: %w", skill.ErrInvalidArgument, err)
		}
	}

	w, h := OutputSize(quad)
	out, err := Rectify(frame, quad, w, h, interp, s.parallel)
	if err != nil {
		return fmt.Errorf("%w: %w", skill.ErrInvalidArgument, err)
	}
	img, err := skill.ImageValue(out)
	if err != nil {
		return err
	}
	return b.Commit(map[string]skill.FeatureValue{OutputImage: img})
}

// Close is a no-op; the rectifier holds no resources.
func (s *Skill) Close() error { return nil }
