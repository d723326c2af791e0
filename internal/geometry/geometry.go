// Package geometry computes eye openness and eye centres from 2D landmarks.
package geometry

import "math"

// Eye contour indices within EyeLandmarks.
const (
	OuterCorner   = 0
	UpperOuterLid = 1
	UpperInnerLid = 2
	InnerCorner   = 3
	LowerInnerLid = 4
	LowerOuterLid = 5
	NumEyePoints  = 6
)

// Point2D is a keypoint in frame pixel coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EyeLandmarks is the ordered six-point eye contour:
// outer corner, upper-outer lid, upper-inner lid, inner corner,
// lower-inner lid, lower-outer lid.
type EyeLandmarks []Point2D

// Valid reports whether the contour carries the six points the ratio needs.
func (e EyeLandmarks) Valid() bool {
	return len(e) >= NumEyePoints
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point2D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// EyeOpennessRatio returns the eye aspect ratio
// (|p1-p5| + |p2-p4|) / (2 * |p0-p3|).
//
// It returns 0 when fewer than six points are given or when the
// horizontal span is exactly zero. Callers must treat 0 as an unusable
// reading, not as a closed eye.
func EyeOpennessRatio(e EyeLandmarks) float64 {
	if !e.Valid() {
		return 0
	}

	v1 := Distance(e[UpperOuterLid], e[LowerOuterLid])
	v2 := Distance(e[UpperInnerLid], e[LowerInnerLid])
	h := Distance(e[OuterCorner], e[InnerCorner])

	if h == 0 {
		return 0
	}
	return (v1 + v2) / (2 * h)
}

// EyeCentroid returns the mean position of the contour points.
// Fewer than six points yields the zero point.
func EyeCentroid(e EyeLandmarks) Point2D {
	if !e.Valid() {
		return Point2D{}
	}

	var sx, sy float64
	for _, p := range e {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(e))
	return Point2D{X: sx / n, Y: sy / n}
}

// VerticalSeparation returns the absolute vertical pixel distance
// between an upper and a lower lid point.
func VerticalSeparation(upper, lower Point2D) float64 {
	return math.Abs(upper.Y - lower.Y)
}
