// Package facesentiment is the two-stage face sentiment skill: a face
// detector finds faces, then an emotion classifier scores each enlarged,
// grayscale face crop over eight sentiments.
package facesentiment

import (
	"fmt"

	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/skill"
)

// Feature names.
const (
	InputImage          = "InputImage"
	FaceRectangle       = "FaceRectangle"
	FaceSentimentScores = "FaceSentimentScores"
	FaceDetected        = "FaceDetected"
)

// Sentiment is one of the emotion classes, in model output order.
type Sentiment int

// Sentiments.
const (
	Neutral Sentiment = iota
	Happiness
	Surprise
	Sadness
	Anger
	Disgust
	Fear
	Contempt
	sentimentCount
)

var sentimentNames = [...]string{"neutral", "happiness", "surprise", "sadness", "anger", "disgust", "fear", "contempt"}

func (s Sentiment) String() string {
	if s < 0 || s >= sentimentCount {
		return fmt.Sprintf("Sentiment(%d)", int(s))
	}
	return sentimentNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Sentiment) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NewDescriptor returns the face sentiment descriptor with any metadata the
// manifest overrides. m may be nil.
func NewDescriptor(m *skill.Manifest) (*skill.Descriptor, error) {
	return skill.NewDescriptor(m.Apply(skill.Descriptor{
		Name:        "Face sentiment analyzer",
		Description: "Finds faces and scores each over eight sentiments",
		Version:     "1.0.0",
		Author:      "born-ml",
		Publisher:   "born-ml",
		Kind:        skill.FaceSentiment,
		Inputs: []skill.FeatureDescriptor{{
			Name:        InputImage,
			Description: "Image to analyze",
			Kind:        skill.KindImage,
			Required:    true,
			PixelFormat: imaging.BGRA8,
		}},
		Outputs: []skill.FeatureDescriptor{
			{
				Name:        FaceRectangle,
				Description: "Normalized left, top, width, height of each face",
				Kind:        skill.KindTensorFloat,
				Shape:       []int64{-1, 4},
			},
			{
				Name:        FaceSentimentScores,
				Description: "Softmax scores per face, one column per sentiment",
				Kind:        skill.KindTensorFloat,
				Shape:       []int64{-1, int64(sentimentCount)},
			},
			{
				Name:        FaceDetected,
				Description: "Whether at least one face was found",
				Kind:        skill.KindTensorBool,
				Shape:       []int64{1},
			},
		},
	}))
}
