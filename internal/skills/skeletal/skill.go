// Package skeletal is the skeletal detection skill: a top-down pose model
// produces one heatmap per joint and the peak of each becomes a keypoint.
package skeletal

import (
	"context"
	"fmt"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/logger"
	"github.com/born-ml/vision/internal/postprocess"
	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/tensor"
)

// Feature names.
const (
	InputImage = "InputImage"
	Joints     = "Joints"
	BodyCount  = "BodyCount"
)

// Keypoint is a joint position normalized to the frame, with its peak score.
type Keypoint struct {
	Joint Joint   `json:"joint"`
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Score float32 `json:"score"`
}

// Config holds the pose model tensor names, input size and threshold.
type Config struct {
	InputName     string
	OutputName    string
	InputWidth    int
	InputHeight   int
	BodyThreshold float32
}

// DefaultConfig matches 256x192 COCO pose models.
func DefaultConfig() Config {
	return Config{
		InputName:     "input",
		OutputName:    "output",
		InputWidth:    192,
		InputHeight:   256,
		BodyThreshold: 0.3,
	}
}

// FromManifest overrides cfg with the manifest's tensor names and threshold.
func (cfg Config) FromManifest(m *skill.Manifest) Config {
	if m == nil {
		return cfg
	}
	cfg.InputName = m.InputName(InputImage, cfg.InputName)
	cfg.OutputName = m.OutputName(Joints, cfg.OutputName)
	cfg.BodyThreshold = float32(m.Threshold("body", float64(cfg.BodyThreshold)))
	return cfg
}

// NewDescriptor returns the skeletal detector descriptor. m may be nil.
func NewDescriptor(m *skill.Manifest) (*skill.Descriptor, error) {
	return skill.NewDescriptor(m.Apply(skill.Descriptor{
		Name:        "Skeletal detector",
		Description: "Finds the body joints of a person",
		Version:     "1.0.0",
		Author:      "born-ml",
		Publisher:   "born-ml",
		Kind:        skill.SkeletalDetector,
		Inputs: []skill.FeatureDescriptor{
			{Name: InputImage, Description: "Image to analyze", Kind: skill.KindImage, Required: true, PixelFormat: imaging.BGRA8},
		},
		Outputs: []skill.FeatureDescriptor{
			{Name: Joints, Description: "Normalized x, y and score of every joint per body", Kind: skill.KindTensorFloat, Shape: []int64{-1, int64(JointCount), 3}},
			{Name: BodyCount, Description: "Number of bodies found", Kind: skill.KindTensorInt, Shape: []int64{1}},
		},
	}))
}

// DecodeHeatmaps takes the first-seen peak of each [1, 17, H, W] heatmap
// channel. Positions are cell centers normalized to [0, 1].
func DecodeHeatmaps(heatmaps *tensor.Tensor) ([]Keypoint, error) {
	shape := heatmaps.Shape()
	if len(shape) != 4 || shape[0] != 1 || shape[1] != int(JointCount) {
		return nil, fmt.Errorf("heatmaps have shape %v, want [1, %d, H, W]", shape, JointCount)
	}
	h, w := shape[2], shape[3]
	if h == 0 || w == 0 {
		return nil, fmt.Errorf("empty heatmaps %v", shape)
	}
	data := heatmaps.Float32()
	plane := h * w

	out := make([]Keypoint, JointCount)
	for j := range out {
		idx, score := postprocess.ArgMax(data[j*plane : (j+1)*plane])
		out[j] = Keypoint{
			Joint: Joint(j),
			X:     (float32(idx%w) + 0.5) / float32(w),
			Y:     (float32(idx/w) + 0.5) / float32(h),
			Score: score,
		}
	}
	return out, nil
}

// Binding holds the features of one skeletal detection.
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

// SetInputImage sets the image to analyze.
func (b *Binding) SetInputImage(f *imaging.Frame) error {
	return b.SetImage(InputImage, f)
}

// Bodies returns the keypoints of each detected body.
func (b *Binding) Bodies() [][]Keypoint {
	count := b.Ints(BodyCount)
	if len(count) == 0 || count[0] == 0 {
		return nil
	}
	v := b.Floats(Joints)
	stride := int(JointCount) * 3
	out := make([][]Keypoint, count[0])
	for i := range out {
		body := make([]Keypoint, JointCount)
		for j := range body {
			p := v[i*stride+j*3:]
			body[j] = Keypoint{Joint: Joint(j), X: p[0], Y: p[1], Score: p[2]}
		}
		out[i] = body
	}
	return out
}

// Skill is the skeletal detector.
type Skill struct {
	desc    *skill.Descriptor
	dev     device.ExecutionDevice
	cfg     Config
	session skill.Session
}

var _ skill.Skill[*Binding] = (*Skill)(nil)

// New assembles a skeletal detector from a loaded pose session.
func New(desc *skill.Descriptor, dev device.ExecutionDevice, session skill.Session, cfg Config) (*Skill, error) {
	if desc == nil || session == nil {
		return nil, fmt.Errorf("%w: skeletal detector needs a descriptor and session", skill.ErrInvalidArgument)
	}
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		return nil, fmt.Errorf("%w: input size %dx%d", skill.ErrInvalidArgument, cfg.InputWidth, cfg.InputHeight)
	}
	if err := desc.CheckDevice(dev); err != nil {
		return nil, err
	}
	return &Skill{desc: desc, dev: dev, cfg: cfg, session: session}, nil
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
	s, err := New(desc, dev, session, cfg.FromManifest(m))
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

// CreateBinding implements skill.Skill.
func (s *Skill) CreateBinding() (*Binding, error) {
	return &Binding{skill.NewBinding(s.desc, s)}, nil
}

// Evaluate finds the joints of the person in the input image. A body is
// reported when the mean joint score reaches the threshold; otherwise the
// outputs are zero-filled.
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
		Mean:     [3]float32{0.485, 0.456, 0.406},
		Std:      [3]float32{0.229, 0.224, 0.225},
	})
	if err != nil {
		return err
	}
	outputs, err := s.session.Run(ctx, map[string]*tensor.Tensor{s.cfg.InputName: input})
	if err != nil {
		return fmt.Errorf("run pose model: %w", err)
	}
	heatmaps, err := skill.Output(outputs, s.cfg.OutputName, tensor.Float32)
	if err != nil {
		return err
	}
	kps, err := DecodeHeatmaps(heatmaps)
	if err != nil {
		return err
	}

	var mean float32
	for _, kp := range kps {
		mean += kp.Score
	}
	mean /= float32(len(kps))
	logger.G(ctx).WithField("mean_score", mean).Debug("skeletal detection evaluated")
	if mean < s.cfg.BodyThreshold {
		return b.CommitZero(nil)
	}

	joints := make([]float32, 0, len(kps)*3)
	for _, kp := range kps {
		joints = append(joints, kp.X, kp.Y, kp.Score)
	}
	jointValue, err := skill.FloatValue(joints, 1, int64(JointCount), 3)
	if err != nil {
		return err
	}
	count, _ := skill.IntValue([]int64{1}, 1)
	return b.Commit(map[string]skill.FeatureValue{Joints: jointValue, BodyCount: count})
}

// Close releases the pose session.
func (s *Skill) Close() error {
	return s.session.Close()
}
