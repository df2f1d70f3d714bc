package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/repcounter/internal/capture"
	"github.com/ayusman/repcounter/internal/counter"
	"github.com/ayusman/repcounter/internal/overlay"
	"github.com/ayusman/repcounter/internal/pipeline"
	"github.com/ayusman/repcounter/internal/pose"
)

// SourceFunc opens the capture for an input path.
type SourceFunc func(path string) (capture.Source, error)

func openFile(path string) (capture.Source, error) {
	f, err := capture.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Runner processes whole video files. A Runner may be shared; every Run
// gets its own counter and extractor.
type Runner struct {
	codecs       []string
	thresholds   counter.Thresholds
	newExtractor pose.Factory
	openSource   SourceFunc
	openEncoder  EncoderFunc
	logger       *slog.Logger

	// OnProgress, if set, is called after every written frame. total is 0
	// when the container does not report a frame count.
	OnProgress func(done, total int)
}

// Option configures a Runner.
type Option func(*Runner)

// WithSource replaces the file decoder.
func WithSource(fn SourceFunc) Option {
	return func(r *Runner) { r.openSource = fn }
}

// WithEncoder replaces the gocv writer.
func WithEncoder(fn EncoderFunc) Option {
	return func(r *Runner) { r.openEncoder = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, thresholds counter.Thresholds, factory pose.Factory, opts ...Option) *Runner {
	codecs := cfg.Codecs
	if len(codecs) == 0 {
		codecs = DefaultCodecs
	}
	r := &Runner{
		codecs:       codecs,
		thresholds:   thresholds,
		newExtractor: factory,
		openSource:   openFile,
		openEncoder:  OpenVideoWriter,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads input frame by frame, counts repetitions and writes the
// annotated result to output. On any error the output file is removed.
func (r *Runner) Run(ctx context.Context, input, output string) (rep Report, err error) {
	start := time.Now()
	rep.Output = output

	src, err := r.openSource(input)
	if err != nil {
		if errors.Is(err, capture.ErrUnreadable) {
			return rep, fmt.Errorf("%w: %v", ErrInputUnreadable, err)
		}
		return rep, fmt.Errorf("open input: %w", err)
	}
	defer src.Close()

	c, err := counter.New(r.thresholds)
	if err != nil {
		return rep, err
	}

	extractor, err := r.newExtractor()
	if err != nil {
		return rep, fmt.Errorf("create extractor: %w", err)
	}
	defer extractor.Close()

	width, height := src.Size()
	fps := src.FPS()

	enc, codec, err := r.openWriter(output, fps, width, height)
	if err != nil {
		return rep, err
	}
	rep.Codec = codec

	closed := false
	defer func() {
		if !closed {
			enc.Close()
		}
		if err != nil {
			os.Remove(output)
		}
	}()

	r.logger.Info("video: run started",
		"input", input, "output", output, "codec", codec,
		"fps", fps, "width", width, "height", height)

	proc := pipeline.New(extractor)
	total := src.FrameCount()
	var rates []float64
	last := time.Now()

	for {
		if err = ctx.Err(); err != nil {
			return rep, err
		}

		frame, readErr := src.ReadFrame()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			err = fmt.Errorf("read frame %d: %w", rep.Frames, readErr)
			return rep, err
		}

		res, procErr := proc.Process(frame, c)
		if procErr != nil {
			r.logger.Debug("video: frame skipped", "frame", rep.Frames, "error", procErr)
		}
		if res.Detected() {
			rep.Detected++
		}

		now := time.Now()
		rate := 0.0
		if dt := now.Sub(last).Seconds(); dt > 0 {
			rate = 1 / dt
			rates = append(rates, rate)
		}
		last = now

		overlay.Annotate(frame, res, rate)
		writeErr := enc.Write(*frame)
		frame.Close()
		if writeErr != nil {
			err = fmt.Errorf("write frame %d: %w", rep.Frames, writeErr)
			return rep, err
		}

		rep.Frames++
		rep.Count = res.Count
		if r.OnProgress != nil {
			r.OnProgress(rep.Frames, total)
		}
	}

	if rep.Frames == 0 {
		err = fmt.Errorf("%w: no decodable frames in %s", ErrInputUnreadable, input)
		return rep, err
	}

	closed = true
	if err = enc.Close(); err != nil {
		err = fmt.Errorf("finalize output: %w", err)
		return rep, err
	}

	if len(rates) > 0 {
		rep.AvgFPS = stat.Mean(rates, nil)
	}
	rep.Duration = time.Since(start)

	r.logger.Info("video: run finished",
		"input", input, "count", rep.Count, "frames", rep.Frames,
		"detected", rep.Detected, "duration", rep.Duration)

	return rep, nil
}

// openWriter tries each configured codec in order.
func (r *Runner) openWriter(path string, fps float64, width, height int) (Encoder, string, error) {
	var attempts []Attempt
	for _, codec := range r.codecs {
		enc, err := r.openEncoder(path, codec, fps, width, height)
		if err == nil {
			return enc, codec, nil
		}
		r.logger.Warn("video: encoder unavailable", "codec", codec, "error", err)
		attempts = append(attempts, Attempt{Codec: codec, Err: err})
	}
	os.Remove(path)
	return nil, "", &EncoderError{Attempts: attempts}
}
