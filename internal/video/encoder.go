package video

import (
	"fmt"
	"os"

	"gocv.io/x/gocv"
)

// Encoder receives annotated frames.
type Encoder interface {
	Write(frame gocv.Mat) error
	Close() error
}

// EncoderFunc opens an encoder for path with the given FourCC codec.
type EncoderFunc func(path, codec string, fps float64, width, height int) (Encoder, error)

// OpenVideoWriter opens a gocv.VideoWriter and reports codecs the local
// OpenCV build cannot open as errors.
func OpenVideoWriter(path, codec string, fps float64, width, height int) (Encoder, error) {
	w, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	if !w.IsOpened() {
		w.Close()
		os.Remove(path)
		return nil, fmt.Errorf("codec %q not supported by this OpenCV build", codec)
	}
	return w, nil
}
