// Package detector provides face landmark detection for eye tracking.
package detector

import (
	"context"

	"gocv.io/x/gocv"

	"github.com/ayusman/eyeguard/internal/geometry"
)

// Detector defines the interface for face landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected faces.
	// Returns an empty slice if no face is detected.
	Detect(frame *gocv.Mat) ([]Face, error)

	// Warmup loads the model and blocks until it can serve Detect calls.
	Warmup(ctx context.Context) error

	// Close releases any resources held by the detector.
	Close() error
}

// Face is a single detected face mesh in frame pixel coordinates.
type Face struct {
	Keypoints []geometry.Point2D `json:"keypoints"`
	Score     float64            `json:"score"`
}

// Config holds configuration options for face detection.
type Config struct {
	// MaxFaces is the maximum number of faces to detect (default: 1).
	MaxFaces int `yaml:"max_faces"`

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64 `yaml:"min_confidence"`

	// RefineLandmarks enables the iris-refined mesh.
	RefineLandmarks bool `yaml:"refine_landmarks"`

	// Script overrides the location of the FaceMesh service script.
	Script string `yaml:"script"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxFaces:        1,
		MinConfidence:   0.5,
		RefineLandmarks: true,
	}
}
