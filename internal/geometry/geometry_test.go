package geometry

import (
	"math"
	"testing"
)

const epsilon = 1e-9

// eye builds a contour with the given corner span and lid heights.
func eye(width, outerGap, innerGap float64) EyeLandmarks {
	return EyeLandmarks{
		{X: 100, Y: 50},
		{X: 100 + width/3, Y: 50 - outerGap/2},
		{X: 100 + 2*width/3, Y: 50 - innerGap/2},
		{X: 100 + width, Y: 50},
		{X: 100 + 2*width/3, Y: 50 + innerGap/2},
		{X: 100 + width/3, Y: 50 + outerGap/2},
	}
}

func TestEyeOpennessRatio(t *testing.T) {
	tests := []struct {
		name string
		eye  EyeLandmarks
		want float64
	}{
		{
			name: "open eye",
			eye:  eye(30, 10, 8),
			want: (10.0 + 8.0) / (2 * 30.0),
		},
		{
			name: "closed eye",
			eye:  eye(30, 1, 1),
			want: 2.0 / 60.0,
		},
		{
			name: "fully shut lids",
			eye:  eye(30, 0, 0),
			want: 0,
		},
		{
			name: "too few points",
			eye:  eye(30, 10, 8)[:5],
			want: 0,
		},
		{
			name: "empty",
			eye:  nil,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EyeOpennessRatio(tt.eye)
			if math.Abs(got-tt.want) > epsilon {
				t.Errorf("EyeOpennessRatio() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestEyeOpennessRatio_MatchesIndependentComputation(t *testing.T) {
	e := EyeLandmarks{
		{X: 12.5, Y: 40.1},
		{X: 20.2, Y: 35.7},
		{X: 28.9, Y: 36.4},
		{X: 37.0, Y: 41.3},
		{X: 29.1, Y: 45.0},
		{X: 19.8, Y: 44.6},
	}

	v1 := math.Sqrt(math.Pow(e[1].X-e[5].X, 2) + math.Pow(e[1].Y-e[5].Y, 2))
	v2 := math.Sqrt(math.Pow(e[2].X-e[4].X, 2) + math.Pow(e[2].Y-e[4].Y, 2))
	h := math.Sqrt(math.Pow(e[0].X-e[3].X, 2) + math.Pow(e[0].Y-e[3].Y, 2))
	want := (v1 + v2) / (2 * h)

	got := EyeOpennessRatio(e)
	if math.Abs(got-want) > epsilon {
		t.Errorf("EyeOpennessRatio() = %f, want %f", got, want)
	}
	if got < 0 || math.IsInf(got, 0) || math.IsNaN(got) {
		t.Errorf("expected a finite non-negative ratio, got %f", got)
	}
}

func TestEyeOpennessRatio_ZeroHorizontalSpan(t *testing.T) {
	// Corners coincide; lids are wide apart.
	e := EyeLandmarks{
		{X: 50, Y: 50},
		{X: 48, Y: 20},
		{X: 52, Y: 20},
		{X: 50, Y: 50},
		{X: 52, Y: 80},
		{X: 48, Y: 80},
	}

	if got := EyeOpennessRatio(e); got != 0 {
		t.Errorf("expected exactly 0 for zero horizontal span, got %f", got)
	}
}

func TestEyeCentroid(t *testing.T) {
	t.Run("mean of all points", func(t *testing.T) {
		e := EyeLandmarks{
			{X: 0, Y: 0},
			{X: 10, Y: 0},
			{X: 20, Y: 0},
			{X: 30, Y: 6},
			{X: 20, Y: 12},
			{X: 10, Y: 12},
		}

		c := EyeCentroid(e)
		if math.Abs(c.X-15) > epsilon {
			t.Errorf("expected X=15, got %f", c.X)
		}
		if math.Abs(c.Y-5) > epsilon {
			t.Errorf("expected Y=5, got %f", c.Y)
		}
	})

	t.Run("too few points returns zero point", func(t *testing.T) {
		c := EyeCentroid(EyeLandmarks{{X: 4, Y: 4}})
		if c != (Point2D{}) {
			t.Errorf("expected zero point, got %+v", c)
		}
	})
}

func TestVerticalSeparation(t *testing.T) {
	if got := VerticalSeparation(Point2D{X: 3, Y: 10}, Point2D{X: 9, Y: 14.5}); math.Abs(got-4.5) > epsilon {
		t.Errorf("expected 4.5, got %f", got)
	}
	if got := VerticalSeparation(Point2D{Y: 14.5}, Point2D{Y: 10}); math.Abs(got-4.5) > epsilon {
		t.Errorf("expected 4.5 regardless of order, got %f", got)
	}
}
