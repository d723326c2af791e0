package detector

import "github.com/ayusman/eyeguard/internal/geometry"

// FaceMesh keypoint indices used for the eyes.
// See: https://github.com/google/mediapipe/blob/master/mediapipe/modules/face_geometry/data/canonical_face_model_uv_visualization.png
var (
	LeftEyeIndices  = [geometry.NumEyePoints]int{33, 160, 158, 133, 153, 144}
	RightEyeIndices = [geometry.NumEyePoints]int{362, 385, 387, 263, 373, 380}
)

// Lid midpoints used by the pixel-separation fallback.
const (
	LeftUpperLid  = 159
	LeftLowerLid  = 145
	RightUpperLid = 386
	RightLowerLid = 374
)

// MinMeshKeypoints is the smallest mesh accepted as a usable face.
// The full FaceMesh model yields 468 points (478 when refined).
const MinMeshKeypoints = 400

// Eye is one eye's contour plus the lid pair measured by the fallback path.
type Eye struct {
	Contour  geometry.EyeLandmarks `json:"contour"`
	UpperLid geometry.Point2D      `json:"upper_lid"`
	LowerLid geometry.Point2D      `json:"lower_lid"`
}

// NewEye builds an Eye from a bare six-point contour. The fallback lid
// pair defaults to the upper-outer and lower-outer lid points.
func NewEye(contour geometry.EyeLandmarks) *Eye {
	e := &Eye{Contour: contour}
	if contour.Valid() {
		e.UpperLid = contour[geometry.UpperOuterLid]
		e.LowerLid = contour[geometry.LowerOuterLid]
	}
	return e
}

// Valid reports whether the eye can be classified.
func (e *Eye) Valid() bool {
	return e != nil && e.Contour.Valid()
}

// Centroid returns the eye centre used for overlay positioning.
func (e *Eye) Centroid() geometry.Point2D {
	if e == nil {
		return geometry.Point2D{}
	}
	return geometry.EyeCentroid(e.Contour)
}

// FrameResult is the per-frame output handed to the eye-state pipeline.
// Left and Right are nil when no usable face was found.
type FrameResult struct {
	FaceDetected bool `json:"face_detected"`
	Left         *Eye `json:"left,omitempty"`
	Right        *Eye `json:"right,omitempty"`
}

// HasEyes reports whether both eyes carry a usable contour.
func (r FrameResult) HasEyes() bool {
	return r.FaceDetected && r.Left.Valid() && r.Right.Valid()
}

// ToFrameResult maps the first detected face onto the two eyes.
// A face with too few keypoints is reported as detected but without eyes.
func ToFrameResult(faces []Face) FrameResult {
	if len(faces) == 0 {
		return FrameResult{}
	}

	kp := faces[0].Keypoints
	if len(kp) < MinMeshKeypoints {
		return FrameResult{FaceDetected: true}
	}

	return FrameResult{
		FaceDetected: true,
		Left:         meshEye(kp, LeftEyeIndices, LeftUpperLid, LeftLowerLid),
		Right:        meshEye(kp, RightEyeIndices, RightUpperLid, RightLowerLid),
	}
}

// meshEye picks the contour and lid points out of a face mesh.
// Out-of-range indices resolve to the zero point.
func meshEye(kp []geometry.Point2D, indices [geometry.NumEyePoints]int, upper, lower int) *Eye {
	contour := make(geometry.EyeLandmarks, len(indices))
	for i, idx := range indices {
		contour[i] = at(kp, idx)
	}
	return &Eye{
		Contour:  contour,
		UpperLid: at(kp, upper),
		LowerLid: at(kp, lower),
	}
}

func at(kp []geometry.Point2D, i int) geometry.Point2D {
	if i < 0 || i >= len(kp) {
		return geometry.Point2D{}
	}
	return kp[i]
}
