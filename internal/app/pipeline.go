package app

import (
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/eyeguard/internal/detector"
	"github.com/ayusman/eyeguard/internal/metrics"
	"github.com/ayusman/eyeguard/internal/monitor"
	"github.com/ayusman/eyeguard/internal/overlay"
)

// runPipeline is the frame loop. Each tick it:
//  1. reads a frame from the camera
//  2. runs face detection once the detector is ready
//  3. maps the first face onto eye contours
//  4. feeds the monitor, which classifies and drives the alarm
//  5. draws the overlay and keeps the JPEG for the stream
//  6. notifies subscribers
func (a *App) runPipeline(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	fps := a.camera.FPS()
	if fps <= 0 {
		fps = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var lastErr string
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame, err := a.camera.ReadFrame()
			if err != nil {
				// Log once per distinct error to keep a missing camera quiet.
				if err.Error() != lastErr {
					log.Printf("Error reading frame: %v", err)
					lastErr = err.Error()
				}
				continue
			}
			lastErr = ""

			a.processFrame(frame)
			frame.Close()
		}
	}
}

// processFrame runs one frame through detection, the monitor and the
// overlay. The frame is annotated in place.
func (a *App) processFrame(frame *gocv.Mat) monitor.Reading {
	var fr detector.FrameResult
	if a.Ready() {
		fr = a.detect(frame)
	}

	r := a.monitor.Update(fr)
	if r.Classification != nil {
		metrics.IncClassification(string(r.Classification.Path), r.Classification.Open)
	}

	style := a.config.Style
	style.Crosshair = style.Crosshair && a.Settings().ShowCrosshair
	overlay.Draw(frame, r, style)

	var jpeg []byte
	if buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{gocv.IMWriteJpegQuality, a.config.JPEGQuality}); err != nil {
		log.WithError(err).Debug("app: jpeg encode failed")
	} else {
		jpeg = append([]byte(nil), buf.GetBytes()...)
		buf.Close()
	}

	a.frameMu.Lock()
	a.latest = r
	if jpeg != nil {
		a.jpeg = jpeg
	}
	a.frameMu.Unlock()

	a.publish(r)
	return r
}

func (a *App) detect(frame *gocv.Mat) detector.FrameResult {
	start := time.Now()
	faces, err := a.detector.Detect(frame)
	metrics.ObserveDetect(time.Since(start))
	if err != nil {
		log.WithError(err).Debug("app: face detection failed")
		metrics.IncFrame(metrics.FrameError)
		return detector.FrameResult{}
	}

	fr := detector.ToFrameResult(faces)
	switch {
	case !fr.FaceDetected:
		metrics.IncFrame(metrics.FrameNoFace)
	case !fr.HasEyes():
		metrics.IncFrame(metrics.FrameNoEyes)
	default:
		metrics.IncFrame(metrics.FrameObserved)
	}
	return fr
}
