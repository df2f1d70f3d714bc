package pose

import (
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// MockResult is one scripted outcome of MockExtractor.Extract.
type MockResult struct {
	Skeleton Skeleton
	Found    bool
	Err      error
}

// MockExtractor is a test implementation of the Extractor interface.
// It allows tests to control the extraction results.
type MockExtractor struct {
	mu       sync.Mutex
	skeleton Skeleton
	found    bool
	err      error
	sequence []MockResult
	calls    int
	closed   bool
}

// NewMockExtractor creates a MockExtractor that reports no detection.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

// SetSkeleton makes every Extract call return s as a detection.
func (m *MockExtractor) SetSkeleton(s Skeleton) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skeleton = s
	m.found = true
}

// SetNoDetection makes Extract report that nobody is in frame.
func (m *MockExtractor) SetNoDetection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skeleton = Skeleton{}
	m.found = false
}

// SetError sets the error that will be returned by Extract.
func (m *MockExtractor) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetSequence scripts the results of the next len(seq) calls. Once the
// sequence is exhausted the fixed skeleton/error settings apply again.
func (m *MockExtractor) SetSequence(seq []MockResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = seq
}

// Extract returns the next scripted result or the configured skeleton.
func (m *MockExtractor) Extract(frame *gocv.Mat) (Skeleton, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if len(m.sequence) > 0 {
		r := m.sequence[0]
		m.sequence = m.sequence[1:]
		return r.Skeleton, r.Found, r.Err
	}
	if m.err != nil {
		return Skeleton{}, false, m.err
	}
	return m.skeleton, m.found, nil
}

// Calls returns how many times Extract was called.
func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockExtractor) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the mock as closed.
func (m *MockExtractor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// MockFactory returns a Factory that always hands out m.
func MockFactory(m *MockExtractor) Factory {
	return func() (Extractor, error) {
		return m, nil
	}
}

// ArmPose returns a skeleton whose left and right elbows bend at the given
// angles (degrees) once projected onto a width x height frame. Upper arms
// hang straight down from the shoulders; 180 is a fully extended arm.
func ArmPose(leftDeg, rightDeg float64, width, height int) Skeleton {
	var s Skeleton

	w := float64(width)
	h := float64(height)
	segment := 0.2 * math.Min(w, h)

	place := func(shoulder, elbow, wrist int, shoulderX, outward, deg float64) {
		sx, sy := shoulderX*w, 0.3*h
		ex, ey := sx, sy+segment
		rad := deg * math.Pi / 180
		wx := ex + outward*segment*math.Sin(rad)
		wy := ey - segment*math.Cos(rad)

		s.Points[shoulder] = Landmark{X: sx / w, Y: sy / h, Visibility: 0.99}
		s.Points[elbow] = Landmark{X: ex / w, Y: ey / h, Visibility: 0.99}
		s.Points[wrist] = Landmark{X: wx / w, Y: wy / h, Visibility: 0.99}
	}

	// Subject faces the camera: their left arm is on the image's right.
	place(LeftShoulder, LeftElbow, LeftWrist, 0.6, 1, leftDeg)
	place(RightShoulder, RightElbow, RightWrist, 0.4, -1, rightDeg)

	return s
}
