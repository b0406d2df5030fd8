// Package objecttracker follows seeded targets across frames. Each target
// has its own tracker and a bounded history of results for trail rendering
// and periodic re-initialization.
package objecttracker

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/postprocess"
	"github.com/born-ml/vision/internal/skill"
)

// Feature names.
const (
	InputImage    = "InputImage"
	BoundingRects = "BoundingRects"
	Succeeded     = "Succeeded"
)

// NewDescriptor returns the object tracker descriptor. m may be nil.
func NewDescriptor(m *skill.Manifest) (*skill.Descriptor, error) {
	return skill.NewDescriptor(m.Apply(skill.Descriptor{
		Name:        "Object tracker",
		Description: "Follows seeded targets from frame to frame",
		Version:     "1.0.0",
		Author:      "born-ml",
		Publisher:   "born-ml",
		Kind:        skill.ObjectTracker,
		Inputs: []skill.FeatureDescriptor{
			{Name: InputImage, Description: "Next frame", Kind: skill.KindImage, Required: true, PixelFormat: imaging.BGRA8},
		},
		Outputs: []skill.FeatureDescriptor{
			{Name: BoundingRects, Description: "Normalized left, top, width, height per tracker", Kind: skill.KindTensorFloat, Shape: []int64{-1, 4}},
			{Name: Succeeded, Description: "Whether each tracker found its target", Kind: skill.KindTensorBool, Shape: []int64{-1}},
		},
		DeviceKinds: []device.Kind{device.KindCPU},
	}))
}

// Binding holds the features of one tracker update.
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

// SetInputImage sets the next frame.
func (b *Binding) SetInputImage(f *imaging.Frame) error {
	return b.SetImage(InputImage, f)
}

// Rects returns the normalized rectangle of each tracker.
func (b *Binding) Rects() []postprocess.NormalizedRect {
	v := b.Floats(BoundingRects)
	ok := b.Bools(Succeeded)
	out := make([]postprocess.NormalizedRect, min(len(v)/4, len(ok)))
	for i := range out {
		out[i] = postprocess.RectFromSlice(v[i*4:])
	}
	return out
}

// Succeeded returns the success flag of each tracker.
func (b *Binding) Succeeded() []bool {
	return b.Bools(Succeeded)
}

// Skill is the object tracker. Targets are added with AddTargets; each
// Evaluate advances every tracker by one frame.
type Skill struct {
	desc *skill.Descriptor
	dev  device.ExecutionDevice

	mu  sync.Mutex
	set *TrackerSet
}

var _ skill.Skill[*Binding] = (*Skill)(nil)

// New creates a tracker skill using TemplateTracker for every target.
func New(desc *skill.Descriptor, dev device.ExecutionDevice, cfg SetConfig) (*Skill, error) {
	return NewWithFactory(desc, dev, cfg, func() Tracker { return NewTemplateTracker() })
}

// NewWithFactory creates a tracker skill with a custom tracker factory.
func NewWithFactory(desc *skill.Descriptor, dev device.ExecutionDevice, cfg SetConfig, factory func() Tracker) (*Skill, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: nil descriptor", skill.ErrInvalidArgument)
	}
	if err := desc.CheckDevice(dev); err != nil {
		return nil, err
	}
	set, err := NewTrackerSet(cfg, factory)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", skill.ErrInvalidArgument, err)
	}
	return &Skill{desc: desc, dev: dev, set: set}, nil
}

// Descriptor implements skill.Skill.
func (s *Skill) Descriptor() *skill.Descriptor { return s.desc }

// Device implements skill.Skill.
func (s *Skill) Device() device.ExecutionDevice { return s.dev }

// CreateBinding implements skill.Skill.
func (s *Skill) CreateBinding() (*Binding, error) {
	return &Binding{skill.NewBinding(s.desc, s)}, nil
}

// AddTargets seeds trackers on frame from pixel rectangles and returns how
// many were started.
func (s *Skill) AddTargets(ctx context.Context, frame *imaging.Frame, rects []image.Rectangle) (int, error) {
	cpu, err := frame.EnsureCPU(ctx)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.AddTargets(ctx, cpu, rects)
}

// Reset drops every tracker.
func (s *Skill) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set.Reset()
}

// Histories returns each tracker's history in pixel coordinates.
func (s *Skill) Histories() [][]Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Histories()
}

// Evaluate advances every tracker to the input frame. With no tracker the
// outputs are zero-filled.
func (s *Skill) Evaluate(ctx context.Context, b *Binding) error {
	frame, err := skill.PrepareImage(ctx, s, b, InputImage)
	if err != nil {
		return err
	}

	s.mu.Lock()
	results, err := s.set.Update(ctx, frame)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return b.CommitZero(nil)
	}

	bounds := frame.Bounds()
	rects := make([]float32, 0, len(results)*4)
	flags := make([]bool, 0, len(results))
	for _, r := range results {
		rects = append(rects, postprocess.Normalize(r.Rect, bounds).Slice()...)
		flags = append(flags, r.Succeeded)
	}
	rectValue, err := skill.FloatValue(rects, int64(len(results)), 4)
	if err != nil {
		return err
	}
	flagValue, _ := skill.BoolValue(flags)
	return b.Commit(map[string]skill.FeatureValue{
		BoundingRects: rectValue,
		Succeeded:     flagValue,
	})
}

// Close drops every tracker.
func (s *Skill) Close() error {
	s.Reset()
	return nil
}
