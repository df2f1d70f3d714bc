// Package app runs the kiosk loop: a local camera feeds the shared
// counting session and the latest annotated frame is kept for preview.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/repcounter/internal/capture"
	"github.com/ayusman/repcounter/internal/counter"
	"github.com/ayusman/repcounter/internal/overlay"
	"github.com/ayusman/repcounter/internal/pipeline"
	"github.com/ayusman/repcounter/internal/pose"
	"github.com/ayusman/repcounter/internal/session"
	"github.com/ayusman/repcounter/internal/store"
)

// Loop defaults.
const (
	DefaultFPS         = 15
	DefaultJPEGQuality = 80
)

// ErrNotRunning is returned by operations that need a started kiosk.
var ErrNotRunning = errors.New("kiosk is not running")

// Config holds configuration options for the kiosk.
type Config struct {
	Source      capture.Source
	Extractor   pose.Extractor
	Sessions    *session.Manager
	FPS         int
	JPEGQuality int
	Logger      *slog.Logger
}

// Kiosk processes frames from a local source on a fixed tick.
type Kiosk struct {
	config Config
	proc   *pipeline.Processor

	mu      sync.RWMutex
	enabled bool
	session *session.Session
	stopCh  chan struct{}
	doneCh  chan struct{}
	last    time.Time

	frameMu sync.RWMutex
	latest  []byte
	seq     uint64
	result  pipeline.Result

	listenerMu sync.RWMutex
	listeners  []func(pipeline.Result)
}

// New creates a Kiosk. Counting is enabled by default.
func New(config Config) *Kiosk {
	if config.FPS <= 0 {
		config.FPS = DefaultFPS
	}
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = DefaultJPEGQuality
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Kiosk{
		config:  config,
		proc:    pipeline.New(config.Extractor),
		enabled: true,
	}
}

// SetEnabled pauses or resumes counting. The source stays open.
func (k *Kiosk) SetEnabled(enabled bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.enabled = enabled
}

// IsEnabled returns whether counting is currently enabled.
func (k *Kiosk) IsEnabled() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.enabled
}

// OnUpdate registers fn to receive every processed frame's result.
func (k *Kiosk) OnUpdate(fn func(pipeline.Result)) {
	k.listenerMu.Lock()
	defer k.listenerMu.Unlock()
	k.listeners = append(k.listeners, fn)
}

// Start opens the source and the kiosk session and begins the loop.
func (k *Kiosk) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	// Don't start if already running
	if k.stopCh != nil {
		return nil
	}

	if err := k.config.Source.Open(); err != nil {
		return fmt.Errorf("open source: %w", err)
	}

	k.session = k.config.Sessions.Open(store.SessionKindKiosk)
	k.stopCh = make(chan struct{})
	k.doneCh = make(chan struct{})
	go k.run(k.stopCh, k.doneCh)

	k.config.Logger.Info("kiosk: started", "session_id", k.session.ID, "fps", k.config.FPS)
	return nil
}

// Stop halts the loop and releases the source, extractor and session.
func (k *Kiosk) Stop() {
	k.mu.Lock()
	stopCh, doneCh, sess := k.stopCh, k.doneCh, k.session
	k.stopCh, k.doneCh, k.session = nil, nil, nil
	k.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh

	if err := k.config.Source.Close(); err != nil {
		k.config.Logger.Warn("kiosk: error closing source", "error", err)
	}
	if err := k.config.Extractor.Close(); err != nil {
		k.config.Logger.Warn("kiosk: error closing extractor", "error", err)
	}
	if err := k.config.Sessions.Close(sess.ID); err != nil {
		k.config.Logger.Error("kiosk: error closing session", "error", err)
	}

	k.config.Logger.Info("kiosk: stopped")
}

// Reset zeroes the kiosk session's counter.
func (k *Kiosk) Reset() (counter.Snapshot, error) {
	sess := k.Session()
	if sess == nil {
		return counter.Snapshot{}, ErrNotRunning
	}
	snap, err := k.config.Sessions.Reset(sess.ID)
	if err != nil {
		return snap, err
	}

	k.frameMu.Lock()
	k.result = pipeline.Result{Count: snap.Count, StatusLabel: snap.Phase}
	k.frameMu.Unlock()
	k.notify(pipeline.Result{Count: snap.Count, StatusLabel: snap.Phase})
	return snap, nil
}

// Session returns the running kiosk session, or nil.
func (k *Kiosk) Session() *session.Session {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.session
}

// LatestJPEG returns the last annotated frame and its sequence number.
func (k *Kiosk) LatestJPEG() ([]byte, uint64) {
	k.frameMu.RLock()
	defer k.frameMu.RUnlock()
	return k.latest, k.seq
}

// LastResult returns the most recent frame result.
func (k *Kiosk) LastResult() pipeline.Result {
	k.frameMu.RLock()
	defer k.frameMu.RUnlock()
	return k.result
}

func (k *Kiosk) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(time.Second / time.Duration(k.config.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !k.IsEnabled() {
				continue
			}
			if err := k.Step(); err != nil {
				if errors.Is(err, io.EOF) {
					k.config.Logger.Info("kiosk: source exhausted")
					return
				}
				k.config.Logger.Debug("kiosk: frame skipped", "error", err)
			}
		}
	}
}

// Step reads and processes one frame.
func (k *Kiosk) Step() error {
	sess := k.Session()
	if sess == nil {
		return ErrNotRunning
	}

	frame, err := k.config.Source.ReadFrame()
	if err != nil {
		return err
	}
	defer frame.Close()

	res, procErr := k.proc.Process(frame, sess.Counter)
	if procErr == nil {
		sess.Observe(res)
	}

	now := time.Now()
	fps := 0.0
	k.mu.Lock()
	if !k.last.IsZero() {
		if dt := now.Sub(k.last).Seconds(); dt > 0 {
			fps = 1 / dt
		}
	}
	k.last = now
	k.mu.Unlock()

	overlay.Annotate(frame, res, fps)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{gocv.IMWriteJpegQuality, k.config.JPEGQuality})
	if err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	jpeg := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	k.frameMu.Lock()
	k.latest = jpeg
	k.seq++
	k.result = res
	k.frameMu.Unlock()

	k.notify(res)
	return procErr
}

func (k *Kiosk) notify(res pipeline.Result) {
	k.listenerMu.RLock()
	listeners := k.listeners
	k.listenerMu.RUnlock()

	for _, fn := range listeners {
		fn(res)
	}
}
