package capture

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func TestFile_Unreadable(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.mp4")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.mp4")},
		{"zero length", empty},
		{"directory", dir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := OpenFile(tt.path)
			if !errors.Is(err, ErrUnreadable) {
				t.Fatalf("expected ErrUnreadable, got %v", err)
			}
			if !IsUnreadable(err) {
				t.Error("IsUnreadable should report true")
			}
			if f != nil {
				t.Error("expected nil source on failure")
			}
		})
	}
}

func TestFile_ReadFrameNotOpened(t *testing.T) {
	f := NewFile("whatever.mp4")
	if _, err := f.ReadFrame(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close on unopened file: %v", err)
	}
}

func TestFile_Playback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping codec test in short mode")
	}

	path := filepath.Join(t.TempDir(), "clip.avi")
	writer, err := gocv.VideoWriterFile(path, "MJPG", 10, 64, 48, true)
	if err != nil || !writer.IsOpened() {
		t.Skipf("MJPG encoder not available: %v", err)
	}
	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()
	for i := 0; i < 5; i++ {
		if err := writer.Write(frame); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	writer.Close()

	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	if w, h := f.Size(); w != 64 || h != 48 {
		t.Errorf("expected 64x48, got %dx%d", w, h)
	}
	if f.FPS() <= 0 {
		t.Errorf("expected positive FPS, got %v", f.FPS())
	}

	read := 0
	for {
		mat, err := f.ReadFrame()
		if errors.Is(err, ErrEndOfStream) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		mat.Close()
		read++
	}
	if read != 5 {
		t.Errorf("expected 5 frames, got %d", read)
	}
}
