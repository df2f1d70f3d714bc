package pose

import (
	"time"

	"gocv.io/x/gocv"
)

// Extractor defines the interface for pose landmark extraction.
type Extractor interface {
	// Extract analyzes a decoded BGR frame and returns the detected skeleton.
	// The boolean is false when no person was detected; that is not an error.
	Extract(frame *gocv.Mat) (Skeleton, bool, error)

	// Close releases any resources held by the extractor.
	Close() error
}

// Factory creates a fresh Extractor, typically one per counting session.
type Factory func() (Extractor, error)

// Config holds configuration options for pose extraction.
type Config struct {
	// MinDetectionConfidence is the minimum person detection confidence (0.0-1.0).
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`

	// MinTrackingConfidence is the minimum landmark tracking confidence (0.0-1.0).
	MinTrackingConfidence float64 `yaml:"min_tracking_confidence"`

	// StaticImageMode disables tracking between consecutive frames.
	StaticImageMode bool `yaml:"static_image_mode"`

	// ScriptPath overrides the location of pose_service.py.
	ScriptPath string `yaml:"script_path"`

	// PythonPath overrides the interpreter used to run the script.
	PythonPath string `yaml:"python_path"`

	// IdleTimeout stops the inference process after this long without a frame.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
		StaticImageMode:        false,
		IdleTimeout:            30 * time.Second,
	}
}
