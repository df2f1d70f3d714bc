package pose

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gocv.io/x/gocv"
)

const scriptName = "pose_service.py"

// maxReplySize bounds a single msgpack reply from the inference process.
const maxReplySize = 1 << 20

// MediaPipeExtractor implements Extractor using a Python MediaPipe Pose subprocess.
type MediaPipeExtractor struct {
	config     Config
	scriptPath string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	mu         sync.Mutex
	started    bool
	idleTimer  *time.Timer
}

// NewMediaPipeExtractor creates a new MediaPipe extractor.
// The Python process is started lazily on first extraction.
func NewMediaPipeExtractor(config Config) (*MediaPipeExtractor, error) {
	scriptPath := config.ScriptPath
	if scriptPath == "" {
		scriptPath = findPoseScript()
	}
	if scriptPath == "" {
		return nil, fmt.Errorf("%s not found", scriptName)
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("pose script: %w", err)
	}

	return &MediaPipeExtractor{
		config:     config,
		scriptPath: scriptPath,
	}, nil
}

// NewMediaPipeFactory returns a Factory that creates one MediaPipe process per call.
func NewMediaPipeFactory(config Config) Factory {
	return func() (Extractor, error) {
		return NewMediaPipeExtractor(config)
	}
}

// reply is the msgpack document written by pose_service.py for each frame.
type reply struct {
	Landmarks [][]float64 `msgpack:"landmarks"`
	Error     string      `msgpack:"error"`
}

// Extract sends the frame to the inference process and returns its landmarks.
func (d *MediaPipeExtractor) Extract(frame *gocv.Mat) (Skeleton, bool, error) {
	if frame == nil || frame.Empty() {
		return Skeleton{}, false, fmt.Errorf("extract: empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return Skeleton{}, false, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return Skeleton{}, false, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	if err := writeFramed(d.stdin, buf.GetBytes()); err != nil {
		d.shutdown()
		return Skeleton{}, false, err
	}

	data, err := readFramed(d.stdout)
	if err != nil {
		d.shutdown()
		return Skeleton{}, false, err
	}

	var r reply
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Skeleton{}, false, fmt.Errorf("parse response: %w", err)
	}
	if r.Error != "" {
		return Skeleton{}, false, fmt.Errorf("pose service: %s", r.Error)
	}

	d.resetIdleTimer()

	if len(r.Landmarks) == 0 {
		return Skeleton{}, false, nil
	}
	return toSkeleton(r.Landmarks), true, nil
}

// Close shuts down the Python process.
func (d *MediaPipeExtractor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MediaPipeExtractor) ensureStarted() error {
	if d.started {
		return nil
	}

	pythonPath := d.config.PythonPath
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	args := []string{
		d.scriptPath,
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinDetectionConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConfidence, 'f', -1, 64),
	}
	if d.config.StaticImageMode {
		args = append(args, "--static-image-mode")
	}
	d.cmd = exec.Command(pythonPath, args...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	slog.Debug("pose: mediapipe service started",
		"pid", d.cmd.Process.Pid,
		"script", d.scriptPath,
	)
	return nil
}

func (d *MediaPipeExtractor) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *MediaPipeExtractor) resetIdleTimer() {
	if d.config.IdleTimeout <= 0 {
		return
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

// writeFramed writes a 4-byte big-endian length prefix followed by data.
func writeFramed(w io.Writer, data []byte) error {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// readFramed reads one length-prefixed message.
func readFramed(r io.Reader) ([]byte, error) {
	length := make([]byte, 4)
	if _, err := io.ReadFull(r, length); err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}

	n := binary.BigEndian.Uint32(length)
	if n > maxReplySize {
		return nil, fmt.Errorf("reply too large: %d bytes", n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func toSkeleton(points [][]float64) Skeleton {
	var s Skeleton
	for i := 0; i < NumLandmarks && i < len(points); i++ {
		p := points[i]
		var lm Landmark
		if len(p) > 0 {
			lm.X = p[0]
		}
		if len(p) > 1 {
			lm.Y = p[1]
		}
		if len(p) > 2 {
			lm.Z = p[2]
		}
		if len(p) > 3 {
			lm.Visibility = p[3]
		}
		s.Points[i] = lm
	}
	return s
}

func findPoseScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", scriptName),
		filepath.Join("..", "scripts", scriptName),
		filepath.Join(execDir, "scripts", scriptName),
		filepath.Join(os.Getenv("HOME"), ".repcounter", "scripts", scriptName),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".repcounter/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
