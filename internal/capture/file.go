package capture

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// fallbackFPS is used when a container does not report its frame rate.
const fallbackFPS = 30.0

// File decodes frames from a video file at its native rate and resolution.
type File struct {
	path    string
	capture *gocv.VideoCapture
	mu      sync.Mutex
	fps     float64
	width   int
	height  int
	frames  int
}

// NewFile creates a File source for path. Nothing is opened until Open.
func NewFile(path string) *File {
	return &File{path: path}
}

// OpenFile creates and opens a File source.
func OpenFile(path string) (*File, error) {
	f := NewFile(path)
	if err := f.Open(); err != nil {
		return nil, err
	}
	return f, nil
}

// Open validates the file and opens the decoder. Missing, empty or
// undecodable files return an error wrapping ErrUnreadable.
func (f *File) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.capture != nil {
		return nil
	}

	info, err := os.Stat(f.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrUnreadable, f.path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrUnreadable, f.path)
	}

	capture, err := gocv.VideoCaptureFile(f.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%w: cannot decode %s", ErrUnreadable, f.path)
	}

	width := int(capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(capture.Get(gocv.VideoCaptureFrameHeight))
	if width <= 0 || height <= 0 {
		capture.Close()
		return fmt.Errorf("%w: %s has no video stream", ErrUnreadable, f.path)
	}

	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = fallbackFPS
	}

	f.capture = capture
	f.width = width
	f.height = height
	f.fps = fps
	f.frames = int(capture.Get(gocv.VideoCaptureFrameCount))

	return nil
}

// Close releases the decoder.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.capture == nil {
		return nil
	}
	err := f.capture.Close()
	f.capture = nil
	return err
}

// ReadFrame returns the next frame, or ErrEndOfStream after the last one.
func (f *File) ReadFrame() (*gocv.Mat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.capture == nil {
		return nil, ErrNotOpen
	}

	mat := gocv.NewMat()
	if ok := f.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, ErrEndOfStream
	}
	return &mat, nil
}

// FPS returns the container frame rate.
func (f *File) FPS() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fps
}

// Size returns the native resolution.
func (f *File) Size() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.width, f.height
}

// FrameCount returns the frame count reported by the container.
func (f *File) FrameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frames < 0 {
		return 0
	}
	return f.frames
}

// IsOpen reports whether the decoder is open.
func (f *File) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capture != nil
}

// IsUnreadable reports whether err means the source could not be opened.
func IsUnreadable(err error) bool {
	return errors.Is(err, ErrUnreadable)
}
