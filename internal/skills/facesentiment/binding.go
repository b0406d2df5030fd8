package facesentiment

import (
	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/postprocess"
	"github.com/born-ml/vision/internal/skill"
)

// Binding holds the features of one face sentiment evaluation.
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

// FaceDetected reports whether the last evaluation found a face.
func (b *Binding) FaceDetected() bool {
	v := b.Bools(FaceDetected)
	return len(v) > 0 && v[0]
}

// FaceRectangles returns the detected faces, or nil when none were found.
func (b *Binding) FaceRectangles() []postprocess.NormalizedRect {
	if !b.FaceDetected() {
		return nil
	}
	v := b.Floats(FaceRectangle)
	out := make([]postprocess.NormalizedRect, len(v)/4)
	for i := range out {
		out[i] = postprocess.RectFromSlice(v[i*4:])
	}
	return out
}

// Scores returns one score row per detected face.
func (b *Binding) Scores() [][]float32 {
	if !b.FaceDetected() {
		return nil
	}
	v := b.Floats(FaceSentimentScores)
	n := int(sentimentCount)
	out := make([][]float32, len(v)/n)
	for i := range out {
		out[i] = v[i*n : (i+1)*n]
	}
	return out
}

// PredominantSentiment returns the highest-scoring sentiment of face i.
// It returns Neutral and 0 when face i does not exist.
func (b *Binding) PredominantSentiment(i int) (Sentiment, float32) {
	rows := b.Scores()
	if i < 0 || i >= len(rows) {
		return Neutral, 0
	}
	idx, score := postprocess.ArgMax(rows[i])
	return Sentiment(idx), score
}
