// Package eyestate turns eye landmarks into a per-frame open/closed decision.
package eyestate

import (
	"github.com/ayusman/eyeguard/internal/detector"
	"github.com/ayusman/eyeguard/internal/geometry"
)

// Default thresholds. Both were tuned on a 640x480 webcam and have not
// been calibrated against other resolutions.
const (
	// DefaultRatioThreshold is the mean eye aspect ratio above which eyes are open.
	DefaultRatioThreshold = 0.15
	// DefaultLidThreshold is the mean lid separation, in pixels, above which
	// eyes are open when the ratio is unusable.
	DefaultLidThreshold = 3.0
)

// Path identifies which rule produced a classification.
type Path string

const (
	// PathRatio means both eye aspect ratios were usable.
	PathRatio Path = "ratio"
	// PathFallback means at least one ratio was degenerate and the lid
	// pixel separation decided instead.
	PathFallback Path = "fallback"
)

// Thresholds configures the classifier.
type Thresholds struct {
	Ratio     float64 `yaml:"ratio_threshold" json:"ratio_threshold"`
	LidPixels float64 `yaml:"lid_threshold" json:"lid_threshold"`
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Ratio:     DefaultRatioThreshold,
		LidPixels: DefaultLidThreshold,
	}
}

// Result is a single frame's classification.
type Result struct {
	Open          bool    `json:"open"`
	Path          Path    `json:"path"`
	LeftRatio     float64 `json:"left_ratio"`
	RightRatio    float64 `json:"right_ratio"`
	AverageRatio  float64 `json:"average_ratio"`
	LidSeparation float64 `json:"lid_separation,omitempty"`
}

// Classifier decides whether a pair of eyes is open.
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier creates a Classifier. Non-positive thresholds fall back to
// the defaults.
func NewClassifier(t Thresholds) *Classifier {
	if t.Ratio <= 0 {
		t.Ratio = DefaultRatioThreshold
	}
	if t.LidPixels <= 0 {
		t.LidPixels = DefaultLidThreshold
	}
	return &Classifier{thresholds: t}
}

// Thresholds returns the thresholds in use.
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify returns the open/closed decision for one frame.
//
// Both eyes must be present; callers that have no observation keep their
// previous state instead of calling Classify.
func (c *Classifier) Classify(left, right *detector.Eye) Result {
	r := Result{
		LeftRatio:  geometry.EyeOpennessRatio(left.Contour),
		RightRatio: geometry.EyeOpennessRatio(right.Contour),
	}
	r.AverageRatio = (r.LeftRatio + r.RightRatio) / 2

	if r.LeftRatio > 0 && r.RightRatio > 0 {
		r.Path = PathRatio
		r.Open = r.AverageRatio > c.thresholds.Ratio
		return r
	}

	// The ratio is unstable when the horizontal span collapses, e.g. at
	// extreme head angles. Fall back to raw lid separation.
	leftSep := geometry.VerticalSeparation(left.UpperLid, left.LowerLid)
	rightSep := geometry.VerticalSeparation(right.UpperLid, right.LowerLid)

	r.Path = PathFallback
	r.LidSeparation = (leftSep + rightSep) / 2
	r.Open = r.LidSeparation > c.thresholds.LidPixels
	return r
}
