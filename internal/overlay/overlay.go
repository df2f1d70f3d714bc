// Package overlay burns pose annotations and a counter readout into frames.
// It is a post-step of the frame pipeline and never affects counting.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/repcounter/internal/pipeline"
	"github.com/ayusman/repcounter/internal/pose"
)

var (
	limbColor     = color.RGBA{0, 255, 255, 0}
	shoulderColor = color.RGBA{255, 255, 0, 0}
	elbowColor    = color.RGBA{250, 0, 128, 0}
	wristColor    = color.RGBA{0, 191, 255, 0}
	textColor     = color.RGBA{255, 255, 255, 0}
	countColor    = color.RGBA{255, 0, 0, 0}
	fpsColor      = color.RGBA{0, 255, 0, 0}
	boxColor      = color.RGBA{0, 0, 0, 0}
)

const (
	limbThickness = 6
	jointRadius   = 6
	jointStroke   = 3
)

// Joints draws both arms (shoulder-elbow-wrist), joint markers and the elbow
// angle next to each elbow. A nil landmarks value draws nothing.
func Joints(frame *gocv.Mat, lm *pipeline.Landmarks) {
	if frame == nil || lm == nil {
		return
	}
	arm(frame, lm.RightShoulder, lm.RightElbow, lm.RightWrist, lm.AngleRight)
	arm(frame, lm.LeftShoulder, lm.LeftElbow, lm.LeftWrist, lm.AngleLeft)
}

func arm(frame *gocv.Mat, shoulder, elbow, wrist pose.Keypoint, angle float64) {
	s, e, w := point(shoulder), point(elbow), point(wrist)

	gocv.Line(frame, s, e, limbColor, limbThickness)
	gocv.Line(frame, e, w, limbColor, limbThickness)
	gocv.Circle(frame, s, jointRadius, shoulderColor, jointStroke)
	gocv.Circle(frame, e, jointRadius, elbowColor, jointStroke)
	gocv.Circle(frame, w, jointRadius, wristColor, jointStroke)

	// Hershey fonts have no degree glyph.
	label := fmt.Sprintf("%d deg", int(angle))
	gocv.PutText(frame, label, e.Add(image.Pt(20, -20)), gocv.FontHersheySimplex, 0.7, textColor, 2)
}

// HUD draws the running repetition count and phase label in the top-left
// corner and the processing rate in the top-right corner.
func HUD(frame *gocv.Mat, count int, label string, fps float64) {
	if frame == nil || frame.Empty() {
		return
	}

	gocv.Rectangle(frame, image.Rect(0, 0, 300, 80), boxColor, -1)
	gocv.PutText(frame, fmt.Sprintf("%d", count), image.Pt(10, 60), gocv.FontHersheySimplex, 2, countColor, 3)
	gocv.PutText(frame, label, image.Pt(100, 60), gocv.FontHersheySimplex, 1, textColor, 2)

	fpsOrigin := image.Pt(frame.Cols()-150, 50)
	gocv.PutText(frame, fmt.Sprintf("FPS: %d", int(fps)), fpsOrigin, gocv.FontHersheySimplex, 1, fpsColor, 2)
}

// Annotate applies Joints and HUD for one processed frame.
func Annotate(frame *gocv.Mat, res pipeline.Result, fps float64) {
	Joints(frame, res.Landmarks)
	HUD(frame, res.Count, string(res.StatusLabel), fps)
}

func point(k pose.Keypoint) image.Point {
	return image.Pt(k.X, k.Y)
}
