// Package pose provides body pose landmark extraction for repetition counting.
package pose

// Pose landmark indices following the MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose          = 0
	LeftShoulder  = 11
	RightShoulder = 12
	LeftElbow     = 13
	RightElbow    = 14
	LeftWrist     = 15
	RightWrist    = 16
	LeftHip       = 23
	RightHip      = 24
	NumLandmarks  = 33
)

// Landmark is a single model output point. X and Y are normalized to the
// frame size, Z is relative depth and Visibility is the model's confidence
// that the point is in view.
type Landmark struct {
	X          float64 `json:"x" msgpack:"x"`
	Y          float64 `json:"y" msgpack:"y"`
	Z          float64 `json:"z" msgpack:"z"`
	Visibility float64 `json:"visibility" msgpack:"visibility"`
}

// Keypoint is a landmark position in frame pixel coordinates.
type Keypoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Skeleton holds the landmarks detected for one person in one frame.
// Skeletons carry no identity across frames.
type Skeleton struct {
	Points [NumLandmarks]Landmark `json:"points"`
}

// Pixel converts a normalized landmark to pixel coordinates for a frame of
// the given size. Out of range indices yield the zero Keypoint.
func (s *Skeleton) Pixel(index, width, height int) Keypoint {
	if s == nil || index < 0 || index >= NumLandmarks {
		return Keypoint{}
	}
	p := s.Points[index]
	return Keypoint{
		X: int(p.X * float64(width)),
		Y: int(p.Y * float64(height)),
	}
}
