// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package skill is the public entry point to the vision skills.
//
// A skill is described by a Descriptor, evaluated against a Binding that
// holds its input and output features, and executed on one
// ExecutionDevice. Five families are available:
//   - FaceSentiment: face detection plus emotion classification
//   - ObjectDetector: bounding boxes with class labels
//   - ObjectTracker: correlation tracking of seeded rectangles
//   - SkeletalDetector: body keypoints and limbs
//   - ImageRectifier: perspective correction of a quadrilateral
//
// # Basic Usage
//
//	cfg, err := skill.LoadConfig("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s, err := skill.Open(ctx, cfg, skill.FaceSentiment)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	frame, _ := skill.DecodeFile("portrait.jpg")
//	result, err := s.EvaluateImage(ctx, frame)
//
// Model-backed families need a skill manifest under the configured models
// directory; Open returns ErrNotInstalled otherwise.
package skill
