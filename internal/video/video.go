// Package video runs the frame pipeline over a recorded file and writes an
// annotated copy with the joint overlay and repetition HUD.
package video

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInputUnreadable is returned when the input cannot be opened or decoded.
	ErrInputUnreadable = errors.New("input video unreadable")

	// ErrEncoderUnavailable is returned when no candidate codec could be opened.
	ErrEncoderUnavailable = errors.New("no video encoder available")
)

// DefaultCodecs are tried in order when opening the output writer.
var DefaultCodecs = []string{"avc1", "mp4v"}

// Config holds settings for batch runs.
type Config struct {
	// Codecs are FourCC codes tried in order for the output file.
	Codecs []string `yaml:"codecs"`
	// OutputDir receives annotated files produced through the HTTP API.
	OutputDir string `yaml:"output_dir"`
	// MaxConcurrentJobs bounds simultaneous runs started by the server.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
}

// DefaultConfig returns the default batch configuration.
func DefaultConfig() Config {
	return Config{
		Codecs:            append([]string(nil), DefaultCodecs...),
		MaxConcurrentJobs: 2,
	}
}

// Attempt records one failed encoder open.
type Attempt struct {
	Codec string
	Err   error
}

// EncoderError lists every codec that was tried. It matches
// ErrEncoderUnavailable with errors.Is.
type EncoderError struct {
	Attempts []Attempt
}

func (e *EncoderError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrEncoderUnavailable.Error() + ": no codecs configured"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Codec, a.Err)
	}
	return ErrEncoderUnavailable.Error() + " (" + strings.Join(parts, "; ") + ")"
}

func (e *EncoderError) Unwrap() error {
	return ErrEncoderUnavailable
}

// Report summarizes a finished run.
type Report struct {
	Count    int           `json:"count"`
	Output   string        `json:"output"`
	Frames   int           `json:"frames"`
	Detected int           `json:"detected_frames"`
	Codec    string        `json:"codec"`
	Duration time.Duration `json:"duration"`
	// AvgFPS is the mean processing rate, not the container rate.
	AvgFPS float64 `json:"avg_fps"`
}
