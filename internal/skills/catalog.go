// Package skills builds skill instances from manifests and configuration
// and adapts them to a common image-in, result-out interface.
package skills

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/vision/internal/config"
	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/skills/facesentiment"
	"github.com/born-ml/vision/internal/skills/objectdetector"
	"github.com/born-ml/vision/internal/skills/objecttracker"
	"github.com/born-ml/vision/internal/skills/rectifier"
	"github.com/born-ml/vision/internal/skills/skeletal"
)

// ErrNotInstalled is returned when a model-backed skill has no manifest
// under the models directory.
var ErrNotInstalled = errors.New("skill not installed")

// ImageSkill evaluates single images regardless of skill family.
type ImageSkill interface {
	Descriptor() *skill.Descriptor
	Device() device.ExecutionDevice
	EvaluateImage(ctx context.Context, frame *imaging.Frame) (any, error)
	Close() error
}

// Adapter serializes evaluations of one skill and reuses its binding while
// the frame size is unchanged.
type Adapter[B skill.ImageInput] struct {
	skill.Skill[B]
	result func(B) any

	mu            sync.Mutex
	binding       B
	width, height int
	ready         bool
}

// Adapt wraps s; result extracts the family's output from a binding.
func Adapt[B skill.ImageInput](s skill.Skill[B], result func(B) any) *Adapter[B] {
	return &Adapter[B]{Skill: s, result: result}
}

// EvaluateImage implements ImageSkill.
func (a *Adapter[B]) EvaluateImage(ctx context.Context, frame *imaging.Frame) (any, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ready || a.width != frame.Width || a.height != frame.Height {
		b, err := a.CreateBinding()
		if err != nil {
			return nil, err
		}
		a.binding, a.width, a.height, a.ready = b, frame.Width, frame.Height, true
	}
	if err := a.binding.SetInputImage(frame); err != nil {
		return nil, err
	}
	if err := a.Evaluate(ctx, a.binding); err != nil {
		return nil, err
	}
	return a.result(a.binding), nil
}

// FaceSentimentResult is the JSON form of a face sentiment evaluation.
type FaceSentimentResult struct {
	Faces []Face `json:"faces"`
}

// Face is one analyzed face.
type Face struct {
	Rect      []float32 `json:"rect"`
	Sentiment string    `json:"sentiment"`
	Score     float32   `json:"score"`
	Scores    []float32 `json:"scores"`
}

func faceSentimentResult(b *facesentiment.Binding) any {
	res := FaceSentimentResult{Faces: []Face{}}
	scores := b.Scores()
	for i, r := range b.FaceRectangles() {
		s, score := b.PredominantSentiment(i)
		res.Faces = append(res.Faces, Face{Rect: r.Slice(), Sentiment: s.String(), Score: score, Scores: scores[i]})
	}
	return res
}

func objectResult(b *objectdetector.Binding) any {
	return map[string]any{"objects": b.Objects()}
}

func skeletalResult(b *skeletal.Binding) any {
	return map[string]any{"bodies": b.Bodies()}
}

func trackerResult(b *objecttracker.Binding) any {
	rects := b.Rects()
	out := make([][]float32, len(rects))
	for i, r := range rects {
		out[i] = r.Slice()
	}
	return map[string]any{"rects": out, "succeeded": b.Succeeded()}
}

func rectifierResult(b *rectifier.Binding) any {
	return b.OutputImage()
}

// Options selects where skills load from and what they run on.
type Options struct {
	Config    *config.Config
	Manifests map[skill.Kind]*skill.Manifest
	Device    device.ExecutionDevice
}

// Descriptor returns the descriptor of kind without loading a model.
func Descriptor(kind skill.Kind, m *skill.Manifest) (*skill.Descriptor, error) {
	switch kind {
	case skill.FaceSentiment:
		return facesentiment.NewDescriptor(m)
	case skill.ObjectDetector:
		return objectdetector.NewDescriptor(m)
	case skill.ObjectTracker:
		return objecttracker.NewDescriptor(m)
	case skill.SkeletalDetector:
		return skeletal.NewDescriptor(m)
	case skill.ImageRectifier:
		return rectifier.NewDescriptor(m)
	default:
		return nil, fmt.Errorf("%w: unknown skill kind %d", skill.ErrInvalidArgument, int(kind))
	}
}

// Descriptors returns the descriptor of every skill family.
func Descriptors(manifests map[skill.Kind]*skill.Manifest) ([]*skill.Descriptor, error) {
	out := make([]*skill.Descriptor, 0, len(skill.Kinds()))
	for _, k := range skill.Kinds() {
		d, err := Descriptor(k, manifests[k])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (o Options) manifest(kind skill.Kind) (*skill.Manifest, error) {
	m, ok := o.Manifests[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no %s manifest found under %s", ErrNotInstalled, kind, o.Config.Models.Dir)
	}
	return m, nil
}

// Load builds an ImageSkill of kind. Model-backed kinds need a manifest.
func Load(kind skill.Kind, o Options) (ImageSkill, error) {
	cfg := o.Config
	switch kind {
	case skill.FaceSentiment:
		m, err := o.manifest(kind)
		if err != nil {
			return nil, err
		}
		fc := facesentiment.DefaultConfig()
		fc.EnlargeFactor = cfg.FaceSentiment.EnlargeFactor
		fc.Detector.Threshold = float32(cfg.FaceSentiment.FaceThreshold)
		s, err := facesentiment.Load(m, o.Device, fc)
		if err != nil {
			return nil, err
		}
		return Adapt[*facesentiment.Binding](s, faceSentimentResult), nil

	case skill.ObjectDetector:
		m, err := o.manifest(kind)
		if err != nil {
			return nil, err
		}
		oc := objectdetector.DefaultConfig()
		oc.ScoreThreshold = float32(cfg.ObjectDetector.ScoreThreshold)
		oc.IoUThreshold = float32(cfg.ObjectDetector.IoUThreshold)
		s, err := objectdetector.Load(m, o.Device, oc)
		if err != nil {
			return nil, err
		}
		return Adapt[*objectdetector.Binding](s, objectResult), nil

	case skill.SkeletalDetector:
		m, err := o.manifest(kind)
		if err != nil {
			return nil, err
		}
		s, err := skeletal.Load(m, o.Device, skeletal.DefaultConfig())
		if err != nil {
			return nil, err
		}
		return Adapt[*skeletal.Binding](s, skeletalResult), nil

	case skill.ObjectTracker:
		s, err := NewTracker(o)
		if err != nil {
			return nil, err
		}
		return Adapt[*objecttracker.Binding](s, trackerResult), nil

	case skill.ImageRectifier:
		desc, err := rectifier.NewDescriptor(o.Manifests[kind])
		if err != nil {
			return nil, err
		}
		s, err := rectifier.New(desc, o.Device)
		if err != nil {
			return nil, err
		}
		return Adapt[*rectifier.Binding](s, rectifierResult), nil

	default:
		return nil, fmt.Errorf("%w: unknown skill kind %d", skill.ErrInvalidArgument, int(kind))
	}
}

// NewTracker builds the object tracker from the tracker settings.
func NewTracker(o Options) (*objecttracker.Skill, error) {
	desc, err := objecttracker.NewDescriptor(o.Manifests[skill.ObjectTracker])
	if err != nil {
		return nil, err
	}
	return objecttracker.New(desc, o.Device, objecttracker.SetConfig{
		MaxTrackers:        o.Config.Tracker.MaxTrackers,
		MaxHistory:         o.Config.Tracker.MaxHistory,
		ReinitializePeriod: o.Config.Tracker.ReinitializePeriod,
	})
}
