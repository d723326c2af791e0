package overlay

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/eyeguard/internal/alarm"
	"github.com/ayusman/eyeguard/internal/geometry"
	"github.com/ayusman/eyeguard/internal/monitor"
)

// blank returns a zeroed 640x480 BGR frame.
func blank() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3)
}

// bgrAt returns the pixel at (x, y) as R, G, B.
func bgrAt(img gocv.Mat, x, y int) (r, g, b uint8) {
	v := img.GetVecbAt(y, x)
	return v[2], v[1], v[0]
}

func TestDrawCrosshair(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	tests := []struct {
		name   string
		open   bool
		wantR  uint8
		wantG  uint8
	}{
		{"open is green", true, 0, 255},
		{"closed is red", false, 255, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := blank()
			defer img.Close()

			DrawCrosshair(&img, geometry.Point2D{X: 320, Y: 240}, tt.open, DefaultStyle())

			checks := [][2]int{
				{320, 240}, // centre dot
				{335, 240}, // horizontal arm
				{320, 225}, // vertical arm
			}
			for _, p := range checks {
				r, g, _ := bgrAt(img, p[0], p[1])
				if r != tt.wantR || g != tt.wantG {
					t.Errorf("pixel %v = (r=%d, g=%d), want (r=%d, g=%d)", p, r, g, tt.wantR, tt.wantG)
				}
			}

			// Outside the crosshair stays black.
			if r, g, b := bgrAt(img, 350, 270); r != 0 || g != 0 || b != 0 {
				t.Errorf("pixel outside crosshair = (%d, %d, %d), want black", r, g, b)
			}
		})
	}
}

func TestDraw(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	left := geometry.Point2D{X: 250, Y: 200}
	right := geometry.Point2D{X: 390, Y: 200}
	style := Style{Crosshair: true, Size: 20, LineWidth: 2, DotRadius: 3}

	t.Run("observed eyes get crosshairs", func(t *testing.T) {
		img := blank()
		defer img.Close()

		Draw(&img, monitor.Reading{
			FaceDetected: true,
			Observed:     true,
			EyesOpen:     true,
			Left:         &left,
			Right:        &right,
		}, style)

		for _, p := range []geometry.Point2D{left, right} {
			if _, g, _ := bgrAt(img, int(p.X), int(p.Y)); g != 255 {
				t.Errorf("expected green crosshair at %+v", p)
			}
		}
	})

	t.Run("no observation draws nothing", func(t *testing.T) {
		img := blank()
		defer img.Close()

		Draw(&img, monitor.Reading{FaceDetected: false, EyesOpen: true}, style)

		gray := img.Reshape(1, 0)
		defer gray.Close()
		if gocv.CountNonZero(gray) != 0 {
			t.Error("expected an untouched frame")
		}
	})

	t.Run("crosshair disabled", func(t *testing.T) {
		img := blank()
		defer img.Close()

		off := style
		off.Crosshair = false
		Draw(&img, monitor.Reading{
			FaceDetected: true,
			Observed:     true,
			EyesOpen:     true,
			Left:         &left,
			Right:        &right,
		}, off)

		gray := img.Reshape(1, 0)
		defer gray.Close()
		if gocv.CountNonZero(gray) != 0 {
			t.Error("expected an untouched frame")
		}
	})

	t.Run("label is drawn", func(t *testing.T) {
		img := blank()
		defer img.Close()

		Draw(&img, monitor.Reading{FaceDetected: true, Alarm: alarm.Sounding}, DefaultStyle())

		gray := img.Reshape(1, 0)
		defer gray.Close()
		if gocv.CountNonZero(gray) == 0 {
			t.Error("expected label pixels")
		}
	})
}
