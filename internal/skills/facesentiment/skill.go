package facesentiment

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/facedetect"
	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/logger"
	"github.com/born-ml/vision/internal/postprocess"
	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/tensor"
)

// Config holds the classifier tensor names and crop parameters.
type Config struct {
	EnlargeFactor float64
	InputSize     int
	InputName     string
	OutputName    string
	Detector      facedetect.Config
}

// DefaultConfig matches the FER+ emotion model.
func DefaultConfig() Config {
	return Config{
		EnlargeFactor: 1.5,
		InputSize:     64,
		InputName:     "Input3",
		OutputName:    "Plus692_Output_0",
		Detector:      facedetect.DefaultConfig(),
	}
}

// FromManifest overrides cfg with the manifest's tensor names and thresholds.
func (cfg Config) FromManifest(m *skill.Manifest) Config {
	if m == nil {
		return cfg
	}
	cfg.InputName = m.InputName(InputImage, cfg.InputName)
	cfg.OutputName = m.OutputName(FaceSentimentScores, cfg.OutputName)
	cfg.EnlargeFactor = m.Threshold("enlarge", cfg.EnlargeFactor)
	cfg.Detector.Threshold = float32(m.Threshold("face", float64(cfg.Detector.Threshold)))
	return cfg
}

// Skill is the face sentiment analyzer.
type Skill struct {
	desc     *skill.Descriptor
	dev      device.ExecutionDevice
	cfg      Config
	detector facedetect.Detector
	session  skill.Session
}

var _ skill.Skill[*Binding] = (*Skill)(nil)

// New assembles a skill from a face detector and a loaded classifier session.
func New(desc *skill.Descriptor, dev device.ExecutionDevice, detector facedetect.Detector, session skill.Session, cfg Config) (*Skill, error) {
	if desc == nil || detector == nil || session == nil {
		return nil, fmt.Errorf("%w: face sentiment needs a descriptor, detector and session", skill.ErrInvalidArgument)
	}
	if cfg.EnlargeFactor <= 0 || cfg.InputSize <= 0 {
		return nil, fmt.Errorf("%w: enlarge factor %v, input size %d", skill.ErrInvalidArgument, cfg.EnlargeFactor, cfg.InputSize)
	}
	if err := desc.CheckDevice(dev); err != nil {
		return nil, err
	}
	return &Skill{desc: desc, dev: dev, cfg: cfg, detector: detector, session: session}, nil
}

// Load creates the skill from a manifest naming the classifier model and,
// as its detector, an UltraFace model.
func Load(m *skill.Manifest, dev device.ExecutionDevice, cfg Config) (*Skill, error) {
	desc, err := NewDescriptor(m)
	if err != nil {
		return nil, err
	}
	cfg = cfg.FromManifest(m)

	if m.DetectorPath() == "" {
		return nil, fmt.Errorf("%w: %s manifest names no detector model", skill.ErrInvalidArgument, desc.Name)
	}
	detSession, err := skill.LoadSession(m.DetectorPath(), dev)
	if err != nil {
		return nil, err
	}
	detector, err := facedetect.NewModelDetector(detSession, cfg.Detector)
	if err != nil {
		detSession.Close()
		return nil, err
	}
	session, err := skill.LoadSession(m.ModelPath(), dev)
	if err != nil {
		detSession.Close()
		return nil, err
	}
	s, err := New(desc, dev, detector, session, cfg)
	if err != nil {
		detSession.Close()
		session.Close()
		return nil, err
	}
	s.detector = closingDetector{detector, detSession}
	return s, nil
}

type closingDetector struct {
	facedetect.Detector
	io.Closer
}

// Descriptor implements skill.Skill.
func (s *Skill) Descriptor() *skill.Descriptor { return s.desc }

// Device implements skill.Skill.
func (s *Skill) Device() device.ExecutionDevice { return s.dev }

// CreateBinding implements skill.Skill.
func (s *Skill) CreateBinding() (*Binding, error) {
	return &Binding{skill.NewBinding(s.desc, s)}, nil
}

// Evaluate detects faces in the input image and scores each one. With no
// face the outputs are zero-filled and FaceDetected is false.
func (s *Skill) Evaluate(ctx context.Context, b *Binding) error {
	frame, err := skill.PrepareImage(ctx, s, b, InputImage)
	if err != nil {
		return err
	}

	faces, err := s.detector.Detect(ctx, frame)
	if err != nil {
		return fmt.Errorf("detect faces: %w", err)
	}
	if len(faces) == 0 {
		none, _ := skill.BoolValue([]bool{false}, 1)
		return b.CommitZero(map[string]skill.FeatureValue{FaceDetected: none})
	}

	bounds := frame.Bounds()
	rects := make([]float32, 0, len(faces)*4)
	scores := make([]float32, 0, len(faces)*int(sentimentCount))
	for _, face := range faces {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := s.classify(ctx, frame, postprocess.EnlargeAndClamp(face, s.cfg.EnlargeFactor, bounds))
		if err != nil {
			return err
		}
		rects = append(rects, postprocess.Normalize(face, bounds).Slice()...)
		scores = append(scores, row...)
	}

	n := int64(len(faces))
	rectValue, err := skill.FloatValue(rects, n, 4)
	if err != nil {
		return err
	}
	scoreValue, err := skill.FloatValue(scores, n, int64(sentimentCount))
	if err != nil {
		return err
	}
	found, _ := skill.BoolValue([]bool{true}, 1)

	logger.G(ctx).WithFields(logrus.Fields{"faces": n}).Debug("face sentiment evaluated")
	return b.Commit(map[string]skill.FeatureValue{
		FaceRectangle:       rectValue,
		FaceSentimentScores: scoreValue,
		FaceDetected:        found,
	})
}

func (s *Skill) classify(ctx context.Context, frame *imaging.Frame, crop image.Rectangle) ([]float32, error) {
	face, err := frame.Crop(crop)
	if err != nil {
		return nil, err
	}
	input, err := face.ToTensor(imaging.TensorOptions{
		Width:    s.cfg.InputSize,
		Height:   s.cfg.InputSize,
		Channels: imaging.ChannelsGray,
	})
	if err != nil {
		return nil, err
	}
	outputs, err := s.session.Run(ctx, map[string]*tensor.Tensor{s.cfg.InputName: input})
	if err != nil {
		return nil, fmt.Errorf("run sentiment model: %w", err)
	}
	logits, err := skill.Output(outputs, s.cfg.OutputName, tensor.Float32)
	if err != nil {
		return nil, err
	}
	if logits.NumElements() != int(sentimentCount) {
		return nil, fmt.Errorf("sentiment model produced %d scores, want %d", logits.NumElements(), sentimentCount)
	}
	return postprocess.Softmax(logits.Float32()), nil
}

// Close releases the classifier session and any detector resources.
func (s *Skill) Close() error {
	err := s.session.Close()
	if c, ok := s.detector.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
