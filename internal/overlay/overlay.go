// Package overlay draws eye-state markers onto camera frames.
package overlay

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/eyeguard/internal/alarm"
	"github.com/ayusman/eyeguard/internal/geometry"
	"github.com/ayusman/eyeguard/internal/monitor"
)

// Marker colours.
var (
	OpenColor   = color.RGBA{0, 255, 0, 255}
	ClosedColor = color.RGBA{255, 0, 0, 255}
	AlarmColor  = color.RGBA{255, 64, 0, 255}
)

// Style sets the crosshair geometry in pixels.
type Style struct {
	// Crosshair draws a marker on each observed eye.
	Crosshair bool
	Size      int
	LineWidth int
	DotRadius int
	// Label prints the eye state in the top-left corner.
	Label bool
}

// DefaultStyle is a 20px crosshair with a 2px stroke and a 3px centre dot.
func DefaultStyle() Style {
	return Style{Crosshair: true, Size: 20, LineWidth: 2, DotRadius: 3, Label: true}
}

// DrawCrosshair draws one crosshair centred on p, green when open and red
// when closed.
func DrawCrosshair(img *gocv.Mat, p geometry.Point2D, open bool, s Style) {
	c := ClosedColor
	if open {
		c = OpenColor
	}

	x, y := round(p.X), round(p.Y)
	gocv.Line(img, image.Pt(x-s.Size, y), image.Pt(x+s.Size, y), c, s.LineWidth)
	gocv.Line(img, image.Pt(x, y-s.Size), image.Pt(x, y+s.Size), c, s.LineWidth)
	gocv.Circle(img, image.Pt(x, y), s.DotRadius, c, -1)
}

// Draw renders a frame's reading: a crosshair on each observed eye and a
// status label, each when enabled in s. Frames without an observation get no
// crosshair.
func Draw(img *gocv.Mat, r monitor.Reading, s Style) {
	if s.Crosshair && r.Observed && r.Left != nil && r.Right != nil {
		DrawCrosshair(img, *r.Left, r.EyesOpen, s)
		DrawCrosshair(img, *r.Right, r.EyesOpen, s)
	}

	if !s.Label {
		return
	}

	text, c := "Eyes: OPEN", OpenColor
	if !r.EyesOpen {
		text, c = "Eyes: CLOSED", ClosedColor
	}
	if !r.FaceDetected {
		text, c = "No face", color.RGBA{200, 200, 200, 255}
	}
	gocv.PutText(img, text, image.Pt(10, 24), gocv.FontHersheySimplex, 0.6, c, 2)

	if r.Alarm == alarm.Sounding {
		gocv.PutText(img, "WAKE UP!", image.Pt(10, 52), gocv.FontHersheySimplex, 0.8, AlarmColor, 2)
	}
}

func round(v float64) int {
	return int(math.Round(v))
}
