// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package skill

import (
	"context"
	"fmt"

	"github.com/born-ml/vision/internal/config"
	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/skills"
)

// Kind identifies a skill family.
type Kind = skill.Kind

// Skill families.
const (
	FaceSentiment    = skill.FaceSentiment
	ObjectDetector   = skill.ObjectDetector
	ObjectTracker    = skill.ObjectTracker
	SkeletalDetector = skill.SkeletalDetector
	ImageRectifier   = skill.ImageRectifier
)

type (
	// Descriptor is the static description of a skill family.
	Descriptor = skill.Descriptor
	// FeatureDescriptor declares one input or output feature.
	FeatureDescriptor = skill.FeatureDescriptor
	// FeatureKind is the type of a feature.
	FeatureKind = skill.FeatureKind
	// FeatureValue is a typed feature payload.
	FeatureValue = skill.FeatureValue
	// Manifest locates the models of one installed skill.
	Manifest = skill.Manifest
	// ImageSkill evaluates single images regardless of family.
	ImageSkill = skills.ImageSkill
	// Config is the validated runtime configuration.
	Config = config.Config
	// Frame is a decoded image in one pixel format.
	Frame = imaging.Frame
	// ExecutionDevice is the device a skill runs on.
	ExecutionDevice = device.ExecutionDevice
)

// Skill is the generic skill contract over a binding type B.
type Skill[B any] = skill.Skill[B]

// Errors returned by skills.
var (
	ErrInvalidArgument   = skill.ErrInvalidArgument
	ErrInvalidFrame      = skill.ErrInvalidFrame
	ErrUnsupportedDevice = skill.ErrUnsupportedDevice
	ErrNoDevices         = skill.ErrNoDevices
	ErrUnknownFeature    = skill.ErrUnknownFeature
	ErrFeatureKind       = skill.ErrFeatureKind
	ErrFeatureShape      = skill.ErrFeatureShape
	ErrMissingFeature    = skill.ErrMissingFeature
	ErrCanceled          = skill.ErrCanceled
	ErrNotInstalled      = skills.ErrNotInstalled
)

// Kinds lists every skill family.
func Kinds() []Kind { return skill.Kinds() }

// ParseKind parses a family name such as "facesentiment".
func ParseKind(s string) (Kind, error) { return skill.ParseKind(s) }

// LoadConfig reads configuration from configFile, or from the default
// search paths and environment when configFile is empty.
func LoadConfig(configFile string) (*Config, error) {
	v, err := config.New(configFile)
	if err != nil {
		return nil, err
	}
	return config.Load(v)
}

// DiscoverManifests finds skill manifests under dirs.
func DiscoverManifests(dirs ...string) (map[Kind]*Manifest, error) {
	return skill.DiscoverManifests(dirs...)
}

// Descriptors returns the descriptor of every family, using installed
// manifests for names and versions where present.
func Descriptors(manifests map[Kind]*Manifest) ([]*Descriptor, error) {
	return skills.Descriptors(manifests)
}

// Devices enumerates the execution devices that qualify under cfg. The CPU
// is always first.
func Devices(ctx context.Context, cfg *Config) ([]ExecutionDevice, error) {
	level, err := cfg.MinFeatureLevel()
	if err != nil {
		return nil, err
	}
	return device.Enumerate(ctx, device.DefaultEnumerator(), level)
}

// Open loads a skill of kind on the device selected by cfg.
func Open(ctx context.Context, cfg *Config, kind Kind) (ImageSkill, error) {
	devices, err := Devices(ctx, cfg)
	if err != nil {
		return nil, err
	}
	dev, err := device.Select(devices, cfg.Device.Index)
	if err != nil {
		return nil, err
	}
	manifests, err := DiscoverManifests(cfg.Models.Dir)
	if err != nil {
		return nil, fmt.Errorf("discover manifests: %w", err)
	}
	return skills.Load(kind, skills.Options{Config: cfg, Manifests: manifests, Device: dev})
}

// DecodeFile decodes a PNG, JPEG, BMP or WebP file into a Frame.
func DecodeFile(path string) (*Frame, error) { return imaging.DecodeFile(path) }
