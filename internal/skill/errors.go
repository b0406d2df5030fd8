package skill

import (
	"errors"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
)

// Error taxonomy shared by every skill. Callers match with errors.Is.
var (
	// ErrInvalidArgument marks programmer errors such as a nil binding or a
	// binding created by another skill instance. Returned before any work starts.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidFrame marks a nil or unusable input frame.
	ErrInvalidFrame = imaging.ErrInvalidFrame
	// ErrUnsupportedDevice is returned when a skill cannot run on the requested device.
	ErrUnsupportedDevice = device.ErrUnsupportedDevice
	// ErrNoDevices is returned when no execution device qualifies.
	ErrNoDevices = device.ErrNoDevices
	// ErrUnknownFeature is returned for a feature name the descriptor does not declare.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrFeatureKind is returned when a value's kind differs from the declared kind.
	ErrFeatureKind = errors.New("feature kind mismatch")
	// ErrFeatureShape is returned when a value's shape is incompatible with the declared shape.
	ErrFeatureShape = errors.New("feature shape mismatch")
	// ErrMissingFeature is returned when a required feature is not set.
	ErrMissingFeature = errors.New("missing feature")
	// ErrCanceled marks results abandoned because their frame source was replaced.
	ErrCanceled = errors.New("operation was canceled")
)
