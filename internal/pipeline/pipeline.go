// Package pipeline runs one frame through pose extraction, angle analysis
// and the repetition counter. It is shared by the batch and streaming paths.
package pipeline

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/repcounter/internal/counter"
	"github.com/ayusman/repcounter/internal/geometry"
	"github.com/ayusman/repcounter/internal/pose"
)

// Landmarks are the pixel positions of the tracked joints and both elbow angles.
type Landmarks struct {
	RightShoulder pose.Keypoint `json:"right_shoulder"`
	RightElbow    pose.Keypoint `json:"right_elbow"`
	RightWrist    pose.Keypoint `json:"right_wrist"`
	LeftShoulder  pose.Keypoint `json:"left_shoulder"`
	LeftElbow     pose.Keypoint `json:"left_elbow"`
	LeftWrist     pose.Keypoint `json:"left_wrist"`
	AngleRight    float64       `json:"angle_r"`
	AngleLeft     float64       `json:"angle_l"`
}

// Result is the outcome of processing one frame.
type Result struct {
	Count       int           `json:"count"`
	StatusLabel counter.Phase `json:"status_label"`
	// Landmarks is nil when no person was detected in the frame.
	Landmarks *Landmarks `json:"landmarks"`
	// Completed is true on the frame that finished a repetition.
	Completed bool `json:"-"`
}

// Detected reports whether the frame contained a person.
func (r Result) Detected() bool {
	return r.Landmarks != nil
}

// Processor is the single frame-processing boundary.
type Processor struct {
	extractor pose.Extractor
}

// New creates a Processor backed by the given extractor.
func New(extractor pose.Extractor) *Processor {
	return &Processor{extractor: extractor}
}

// Process extracts the pose from frame, updates c with the mean elbow angle
// and returns the post-update state. Frames without a detected person leave
// c untouched and return its current count and label with nil Landmarks.
// On extractor failure the unchanged state is returned alongside the error.
func (p *Processor) Process(frame *gocv.Mat, c *counter.Counter) (Result, error) {
	prior := c.Snapshot()
	result := Result{Count: prior.Count, StatusLabel: prior.Phase}

	if frame == nil || frame.Empty() {
		return result, fmt.Errorf("process: empty frame")
	}

	skeleton, found, err := p.extractor.Extract(frame)
	if err != nil {
		return result, fmt.Errorf("extract pose: %w", err)
	}
	if !found {
		return result, nil
	}

	arms := geometry.ArmsFrom(&skeleton, frame.Cols(), frame.Rows())
	angles := geometry.ArmAngles(arms)

	snap, completed := c.Update(angles.Mean)

	return Result{
		Count:       snap.Count,
		StatusLabel: snap.Phase,
		Completed:   completed,
		Landmarks: &Landmarks{
			RightShoulder: arms.RightShoulder,
			RightElbow:    arms.RightElbow,
			RightWrist:    arms.RightWrist,
			LeftShoulder:  arms.LeftShoulder,
			LeftElbow:     arms.LeftElbow,
			LeftWrist:     arms.LeftWrist,
			AngleRight:    angles.Right,
			AngleLeft:     angles.Left,
		},
	}, nil
}
