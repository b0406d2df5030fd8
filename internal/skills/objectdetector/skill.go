// Package objectdetector is the single-stage object detection skill over a
// YOLO-style model.
package objectdetector

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/logger"
	"github.com/born-ml/vision/internal/postprocess"
	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/tensor"
)

// Feature names.
const (
	InputImage          = "InputImage"
	InputObjectKinds    = "InputObjectKindFilterList"
	ObjectKinds         = "ObjectKinds"
	ObjectScores        = "ObjectScores"
	ObjectBoundingBoxes = "ObjectBoundingBoxes"
	ObjectCount         = "ObjectCount"
)

// Config holds the model tensor names, input size and thresholds.
type Config struct {
	InputName      string
	OutputName     string
	InputWidth     int
	InputHeight    int
	ScoreThreshold float32
	IoUThreshold   float32
	MaxDetections  int
}

// DefaultConfig matches YOLOv8 exports.
func DefaultConfig() Config {
	return Config{
		InputName:      "images",
		OutputName:     "output0",
		InputWidth:     640,
		InputHeight:    640,
		ScoreThreshold: 0.25,
		IoUThreshold:   0.45,
		MaxDetections:  100,
	}
}

// FromManifest overrides cfg with the manifest's tensor names and thresholds.
func (cfg Config) FromManifest(m *skill.Manifest) Config {
	if m == nil {
		return cfg
	}
	cfg.InputName = m.InputName(InputImage, cfg.InputName)
	cfg.OutputName = m.OutputName(ObjectScores, cfg.OutputName)
	cfg.ScoreThreshold = float32(m.Threshold("score", float64(cfg.ScoreThreshold)))
	cfg.IoUThreshold = float32(m.Threshold("iou", float64(cfg.IoUThreshold)))
	return cfg
}

// NewDescriptor returns the object detector descriptor. m may be nil.
func NewDescriptor(m *skill.Manifest) (*skill.Descriptor, error) {
	return skill.NewDescriptor(m.Apply(skill.Descriptor{
		Name:        "Object detector",
		Description: "Finds objects and classifies them",
		Version:     "1.0.0",
		Author:      "born-ml",
		Publisher:   "born-ml",
		Kind:        skill.ObjectDetector,
		Inputs: []skill.FeatureDescriptor{
			{Name: InputImage, Description: "Image to analyze", Kind: skill.KindImage, Required: true, PixelFormat: imaging.BGRA8},
			{Name: InputObjectKinds, Description: "Class indices to keep; empty keeps all", Kind: skill.KindTensorInt, Shape: []int64{-1}},
		},
		Outputs: []skill.FeatureDescriptor{
			{Name: ObjectKinds, Description: "Class index of each object", Kind: skill.KindTensorInt, Shape: []int64{-1}},
			{Name: ObjectScores, Description: "Confidence of each object", Kind: skill.KindTensorFloat, Shape: []int64{-1}},
			{Name: ObjectBoundingBoxes, Description: "Normalized left, top, width, height of each object", Kind: skill.KindTensorFloat, Shape: []int64{-1, 4}},
			{Name: ObjectCount, Description: "Number of objects found", Kind: skill.KindTensorInt, Shape: []int64{1}},
		},
	}))
}

// Object is a detection with its label resolved.
type Object struct {
	Kind  int                        `json:"kind"`
	Label string                     `json:"label"`
	Score float32                    `json:"score"`
	Box   postprocess.NormalizedRect `json:"box"`
}

// Binding holds the features of one object detection.
type Binding struct {
	*skill.Binding
	labels []string
}

// Base implements skill.Bound.
func (b *Binding) Base() *skill.Binding {
	if b == nil {
		return nil
	}
	return b.Binding
}

// SetInputImage sets the image to analyze.
func (b *Binding) SetInputImage(f *imaging.Frame) error {
	return b.SetImage(InputImage, f)
}

// SetKindFilter restricts detection to the given class indices.
func (b *Binding) SetKindFilter(kinds ...int64) error {
	v, err := skill.IntValue(kinds)
	if err != nil {
		return err
	}
	return b.Set(InputObjectKinds, v)
}

// Count returns the number of objects found by the last evaluation.
func (b *Binding) Count() int {
	v := b.Ints(ObjectCount)
	if len(v) == 0 {
		return 0
	}
	return int(v[0])
}

// Objects returns the detected objects, best first.
func (b *Binding) Objects() []Object {
	n := b.Count()
	kinds, scores, boxes := b.Ints(ObjectKinds), b.Floats(ObjectScores), b.Floats(ObjectBoundingBoxes)
	out := make([]Object, 0, n)
	for i := range n {
		k := int(kinds[i])
		label := fmt.Sprintf("class %d", k)
		if k < len(b.labels) {
			label = b.labels[k]
		}
		out = append(out, Object{Kind: k, Label: label, Score: scores[i], Box: postprocess.RectFromSlice(boxes[i*4:])})
	}
	return out
}

// Skill is the object detector.
type Skill struct {
	desc    *skill.Descriptor
	dev     device.ExecutionDevice
	cfg     Config
	session skill.Session
	labels  []string
}

var _ skill.Skill[*Binding] = (*Skill)(nil)

// New assembles a detector from a loaded session. Nil labels mean COCO.
func New(desc *skill.Descriptor, dev device.ExecutionDevice, session skill.Session, labels []string, cfg Config) (*Skill, error) {
	if desc == nil || session == nil {
		return nil, fmt.Errorf("%w: object detector needs a descriptor and session", skill.ErrInvalidArgument)
	}
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		return nil, fmt.Errorf("%w: input size %dx%d", skill.ErrInvalidArgument, cfg.InputWidth, cfg.InputHeight)
	}
	if err := desc.CheckDevice(dev); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		labels = CocoLabels
	}
	return &Skill{desc: desc, dev: dev, cfg: cfg, session: session, labels: labels}, nil
}

// Load creates the detector from a manifest.
func Load(m *skill.Manifest, dev device.ExecutionDevice, cfg Config) (*Skill, error) {
	desc, err := NewDescriptor(m)
	if err != nil {
		return nil, err
	}
	session, err := skill.LoadSession(m.ModelPath(), dev)
	if err != nil {
		return nil, err
	}
	s, err := New(desc, dev, session, m.Labels, cfg.FromManifest(m))
	if err != nil {
		session.Close()
		return nil, err
	}
	return s, nil
}

// Descriptor implements skill.Skill.
func (s *Skill) Descriptor() *skill.Descriptor { return s.desc }

// Device implements skill.Skill.
func (s *Skill) Device() device.ExecutionDevice { return s.dev }

// Labels returns the class names.
func (s *Skill) Labels() []string { return s.labels }

// CreateBinding implements skill.Skill.
func (s *Skill) CreateBinding() (*Binding, error) {
	return &Binding{Binding: skill.NewBinding(s.desc, s), labels: s.labels}, nil
}

// Evaluate detects objects in the input image. With no object every output
// is zero-filled and ObjectCount is 0.
func (s *Skill) Evaluate(ctx context.Context, b *Binding) error {
	frame, err := skill.PrepareImage(ctx, s, b, InputImage)
	if err != nil {
		return err
	}
	input, err := frame.ToTensor(imaging.TensorOptions{
		Width:    s.cfg.InputWidth,
		Height:   s.cfg.InputHeight,
		Channels: imaging.ChannelsRGB,
		Scale:    1.0 / 255,
	})
	if err != nil {
		return err
	}
	outputs, err := s.session.Run(ctx, map[string]*tensor.Tensor{s.cfg.InputName: input})
	if err != nil {
		return fmt.Errorf("run detector: %w", err)
	}
	raw, err := skill.Output(outputs, s.cfg.OutputName, tensor.Float32)
	if err != nil {
		return err
	}
	dets, err := Decode(raw, DecodeOptions{
		InputWidth:     s.cfg.InputWidth,
		InputHeight:    s.cfg.InputHeight,
		ScoreThreshold: s.cfg.ScoreThreshold,
		IoUThreshold:   s.cfg.IoUThreshold,
		MaxDetections:  s.cfg.MaxDetections,
		Classes:        b.Ints(InputObjectKinds),
	})
	if err != nil {
		return err
	}
	logger.G(ctx).WithFields(logrus.Fields{"objects": len(dets)}).Debug("object detection evaluated")

	if len(dets) == 0 {
		zero, _ := skill.IntValue([]int64{0}, 1)
		return b.CommitZero(map[string]skill.FeatureValue{ObjectCount: zero})
	}

	n := int64(len(dets))
	kinds := make([]int64, 0, n)
	scores := make([]float32, 0, n)
	boxes := make([]float32, 0, n*4)
	for _, d := range dets {
		kinds = append(kinds, int64(d.Class))
		scores = append(scores, d.Score)
		boxes = append(boxes, d.Box.Slice()...)
	}
	kindValue, _ := skill.IntValue(kinds)
	scoreValue, _ := skill.FloatValue(scores)
	boxValue, err := skill.FloatValue(boxes, n, 4)
	if err != nil {
		return err
	}
	count, _ := skill.IntValue([]int64{n}, 1)
	return b.Commit(map[string]skill.FeatureValue{
		ObjectKinds:         kindValue,
		ObjectScores:        scoreValue,
		ObjectBoundingBoxes: boxValue,
		ObjectCount:         count,
	})
}

// Close releases the model session.
func (s *Skill) Close() error {
	return s.session.Close()
}
