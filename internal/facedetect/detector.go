// Package facedetect finds face rectangles in CPU frames. It is the first
// stage of the face sentiment skill.
package facedetect

import (
	"context"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/logger"
	"github.com/born-ml/vision/internal/postprocess"
	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/tensor"
)

// Detector returns face rectangles in frame pixel coordinates, best first.
type Detector interface {
	Detect(ctx context.Context, frame *imaging.Frame) ([]image.Rectangle, error)
}

// Config describes the detector model's tensors and thresholds.
type Config struct {
	Input        string
	ScoresOutput string
	BoxesOutput  string
	Width        int
	Height       int
	Threshold    float32
	IoUThreshold float32
	MaxFaces     int
}

// DefaultConfig matches the UltraFace RFB-320 model.
func DefaultConfig() Config {
	return Config{
		Input:        "input",
		ScoresOutput: "scores",
		BoxesOutput:  "boxes",
		Width:        320,
		Height:       240,
		Threshold:    0.7,
		IoUThreshold: 0.3,
		MaxFaces:     16,
	}
}

// ModelDetector runs an UltraFace-style model: scores [1,N,2] with the face
// probability in column 1, and boxes [1,N,4] as normalized x1,y1,x2,y2.
type ModelDetector struct {
	session skill.Session
	cfg     Config
}

// NewModelDetector wraps a loaded detector session.
func NewModelDetector(session skill.Session, cfg Config) (*ModelDetector, error) {
	if session == nil {
		return nil, fmt.Errorf("%w: nil detector session", skill.ErrInvalidArgument)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: detector input size %dx%d", skill.ErrInvalidArgument, cfg.Width, cfg.Height)
	}
	return &ModelDetector{session: session, cfg: cfg}, nil
}

// Detect implements Detector.
func (d *ModelDetector) Detect(ctx context.Context, frame *imaging.Frame) ([]image.Rectangle, error) {
	if !frame.IsCPU() {
		return nil, fmt.Errorf("%w: face detection needs a CPU frame", skill.ErrInvalidFrame)
	}
	input, err := frame.ToTensor(imaging.TensorOptions{
		Width:    d.cfg.Width,
		Height:   d.cfg.Height,
		Channels: imaging.ChannelsRGB,
		Mean:     [3]float32{127, 127, 127},
		Std:      [3]float32{128, 128, 128},
	})
	if err != nil {
		return nil, fmt.Errorf("detector input: %w", err)
	}

	outputs, err := d.session.Run(ctx, map[string]*tensor.Tensor{d.cfg.Input: input})
	if err != nil {
		return nil, fmt.Errorf("run detector: %w", err)
	}
	scores, err := skill.Output(outputs, d.cfg.ScoresOutput, tensor.Float32)
	if err != nil {
		return nil, err
	}
	boxes, err := skill.Output(outputs, d.cfg.BoxesOutput, tensor.Float32)
	if err != nil {
		return nil, err
	}

	faces, err := Decode(scores, boxes, frame.Bounds(), d.cfg.Threshold, d.cfg.IoUThreshold)
	if err != nil {
		return nil, err
	}
	if d.cfg.MaxFaces > 0 && len(faces) > d.cfg.MaxFaces {
		faces = faces[:d.cfg.MaxFaces]
	}
	logger.G(ctx).WithFields(logrus.Fields{
		"faces":  len(faces),
		"width":  frame.Width,
		"height": frame.Height,
	}).Debug("face detection")
	return faces, nil
}

// Decode turns raw detector outputs into pixel rectangles within bounds:
// candidates whose face score exceeds threshold, suppressed by NMS and
// returned in descending score order.
func Decode(scores, boxes *tensor.Tensor, bounds image.Rectangle, threshold, iouThreshold float32) ([]image.Rectangle, error) {
	ss, bs := scores.Shape(), boxes.Shape()
	if len(ss) != 3 || ss[2] != 2 || len(bs) != 3 || bs[2] != 4 || ss[1] != bs[1] {
		return nil, fmt.Errorf("detector outputs have shapes %v and %v, want [1,N,2] and [1,N,4]", ss, bs)
	}
	sv, bv := scores.Float32(), boxes.Float32()

	var rects []image.Rectangle
	var conf []float32
	for i := range ss[1] {
		s := sv[i*2+1]
		if s <= threshold {
			continue
		}
		b := bv[i*4 : i*4+4]
		r := postprocess.NormalizedRect{Left: b[0], Top: b[1], Width: b[2] - b[0], Height: b[3] - b[1]}
		rect := r.Denormalize(bounds)
		if rect.Empty() {
			continue
		}
		rects = append(rects, rect)
		conf = append(conf, s)
	}

	keep := postprocess.NMS(rects, conf, iouThreshold)
	out := make([]image.Rectangle, len(keep))
	for i, k := range keep {
		out[i] = rects[k]
	}
	return out, nil
}
