package detector

import (
	"context"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/eyeguard/internal/geometry"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu        sync.Mutex
	faces     []Face
	err       error
	warmupErr error
	calls     int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFaces sets the faces that will be returned by Detect.
func (m *MockDetector) SetFaces(faces []Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetWarmupError sets the error that will be returned by Warmup.
func (m *MockDetector) SetWarmupError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warmupErr = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured faces or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.faces, nil
}

// Warmup returns the pre-configured warmup error.
func (m *MockDetector) Warmup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warmupErr
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// meshSize is the keypoint count of an unrefined FaceMesh.
const meshSize = 468

// presetFace lays out a 468-point mesh with both eyes drawn at the given
// lid opening, in pixels, on a 640x480 frame.
func presetFace(opening float64) Face {
	kp := make([]geometry.Point2D, meshSize)
	for i := range kp {
		kp[i] = geometry.Point2D{X: 320, Y: 300}
	}

	placeEye(kp, LeftEyeIndices, LeftUpperLid, LeftLowerLid, 250, 200, opening)
	placeEye(kp, RightEyeIndices, RightUpperLid, RightLowerLid, 360, 200, opening)

	return Face{Keypoints: kp, Score: 0.97}
}

// placeEye writes a 30px wide eye starting at (x, y) into the mesh.
func placeEye(kp []geometry.Point2D, idx [geometry.NumEyePoints]int, upper, lower int, x, y, opening float64) {
	const width = 30.0
	half := opening / 2

	kp[idx[geometry.OuterCorner]] = geometry.Point2D{X: x, Y: y}
	kp[idx[geometry.UpperOuterLid]] = geometry.Point2D{X: x + width/3, Y: y - half}
	kp[idx[geometry.UpperInnerLid]] = geometry.Point2D{X: x + 2*width/3, Y: y - half}
	kp[idx[geometry.InnerCorner]] = geometry.Point2D{X: x + width, Y: y}
	kp[idx[geometry.LowerInnerLid]] = geometry.Point2D{X: x + 2*width/3, Y: y + half}
	kp[idx[geometry.LowerOuterLid]] = geometry.Point2D{X: x + width/3, Y: y + half}
	kp[upper] = geometry.Point2D{X: x + width/2, Y: y - half}
	kp[lower] = geometry.Point2D{X: x + width/2, Y: y + half}
}

// OpenEyesFace returns a preset face with both eyes open (ratio ~0.33).
func OpenEyesFace() Face {
	return presetFace(10)
}

// ClosedEyesFace returns a preset face with both eyes closed (ratio ~0.03).
func ClosedEyesFace() Face {
	return presetFace(1)
}

// SideOnFace returns a preset face whose eye corners coincide, so the
// ratio is degenerate and only the lid separation can be measured.
func SideOnFace(opening float64) Face {
	f := presetFace(opening)
	for _, idx := range [][geometry.NumEyePoints]int{LeftEyeIndices, RightEyeIndices} {
		f.Keypoints[idx[geometry.InnerCorner]] = f.Keypoints[idx[geometry.OuterCorner]]
	}
	return f
}

// PartialFace returns a face whose mesh is too small to locate the eyes.
func PartialFace() Face {
	return Face{
		Keypoints: make([]geometry.Point2D, 120),
		Score:     0.4,
	}
}
