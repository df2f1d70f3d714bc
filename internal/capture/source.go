// Package capture provides frame sources backed by GoCV (OpenCV): video
// files for batch jobs and camera devices for kiosk mode.
package capture

import (
	"errors"
	"io"

	"gocv.io/x/gocv"
)

var (
	// ErrNotOpen is returned when reading from a source that is not open.
	ErrNotOpen = errors.New("source is not open")

	// ErrUnreadable is returned when a source cannot be opened or decoded.
	ErrUnreadable = errors.New("source unreadable")

	// ErrEndOfStream is returned by ReadFrame once a finite source is exhausted.
	ErrEndOfStream = io.EOF
)

// Source defines the interface for frame sources.
type Source interface {
	Open() error
	Close() error
	// ReadFrame returns the next decoded BGR frame.
	// The caller is responsible for closing the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	// FPS is the native or configured frame rate.
	FPS() float64
	// Size is the frame width and height in pixels.
	Size() (width, height int)
	// FrameCount is the number of frames in a finite source, or 0 if unknown.
	FrameCount() int
	IsOpen() bool
}
