// Package geometry derives joint angles from pose keypoints.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/repcounter/internal/pose"
)

// minSide is the shortest triangle side treated as non-degenerate, in pixels.
const minSide = 1e-9

// Arms holds the six keypoints used for elbow angles.
type Arms struct {
	LeftShoulder  pose.Keypoint
	LeftElbow     pose.Keypoint
	LeftWrist     pose.Keypoint
	RightShoulder pose.Keypoint
	RightElbow    pose.Keypoint
	RightWrist    pose.Keypoint
}

// Angles are the bilateral elbow angles in degrees and their mean.
type Angles struct {
	Left  float64
	Right float64
	Mean  float64
}

// distance returns the Euclidean distance between two keypoints.
func distance(a, b pose.Keypoint) float64 {
	return floats.Distance(
		[]float64{float64(a.X), float64(a.Y)},
		[]float64{float64(b.X), float64(b.Y)},
		2,
	)
}

// AngleAt returns the angle at vertex p2 of the triangle p1-p2-p3 in degrees,
// recovered from the three side lengths with the law of cosines.
//
// The cosine is clamped to [-1, 1] so collinear points never produce NaN.
// When p2 coincides with p1 or p3 the angle is undefined and 0 is returned.
func AngleAt(p1, p2, p3 pose.Keypoint) float64 {
	a := distance(p2, p3)
	b := distance(p1, p3)
	c := distance(p1, p2)

	if a < minSide || c < minSide {
		return 0
	}

	cos := (a*a + c*c - b*b) / (2 * a * c)
	cos = math.Max(-1, math.Min(1, cos))

	return math.Acos(cos) * 180 / math.Pi
}

// ArmAngles computes the elbow angle of each arm and their arithmetic mean.
func ArmAngles(arms Arms) Angles {
	left := AngleAt(arms.LeftShoulder, arms.LeftElbow, arms.LeftWrist)
	right := AngleAt(arms.RightShoulder, arms.RightElbow, arms.RightWrist)

	return Angles{
		Left:  left,
		Right: right,
		Mean:  (left + right) / 2,
	}
}

// ArmsFrom projects the shoulder, elbow and wrist landmarks of s onto a
// width x height frame.
func ArmsFrom(s *pose.Skeleton, width, height int) Arms {
	return Arms{
		LeftShoulder:  s.Pixel(pose.LeftShoulder, width, height),
		LeftElbow:     s.Pixel(pose.LeftElbow, width, height),
		LeftWrist:     s.Pixel(pose.LeftWrist, width, height),
		RightShoulder: s.Pixel(pose.RightShoulder, width, height),
		RightElbow:    s.Pixel(pose.RightElbow, width, height),
		RightWrist:    s.Pixel(pose.RightWrist, width, height),
	}
}
