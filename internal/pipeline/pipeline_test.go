package pipeline

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/repcounter/internal/counter"
	"github.com/ayusman/repcounter/internal/pose"
)

const (
	frameWidth  = 640
	frameHeight = 480
)

func newFrame(t *testing.T) *gocv.Mat {
	t.Helper()
	mat := gocv.NewMatWithSize(frameHeight, frameWidth, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { mat.Close() })
	return &mat
}

func detected(left, right float64) pose.MockResult {
	return pose.MockResult{Skeleton: pose.ArmPose(left, right, frameWidth, frameHeight), Found: true}
}

func TestProcessor_CountsRepetition(t *testing.T) {
	mock := pose.NewMockExtractor()
	mock.SetSequence([]pose.MockResult{
		detected(160, 160),
		detected(160, 160),
		detected(40, 40),
		detected(40, 40),
		detected(160, 160),
	})
	p := New(mock)
	c := counter.NewDefault()
	frame := newFrame(t)

	wantLabels := []counter.Phase{
		counter.PhaseAscending,
		counter.PhaseAscending,
		counter.PhaseWellDone,
		counter.PhaseWellDone,
		counter.PhaseReset,
	}

	var last Result
	for i, want := range wantLabels {
		res, err := p.Process(frame, c)
		if err != nil {
			t.Fatalf("frame %d: unexpected error: %v", i+1, err)
		}
		if res.StatusLabel != want {
			t.Errorf("frame %d: label = %q, want %q", i+1, res.StatusLabel, want)
		}
		if !res.Detected() {
			t.Errorf("frame %d: expected landmarks", i+1)
		}
		last = res
	}

	if last.Count != 1 {
		t.Errorf("count = %d, want 1", last.Count)
	}
	if !last.Completed {
		t.Error("expected final frame to complete a repetition")
	}
}

func TestProcessor_AsymmetricArmsUseMean(t *testing.T) {
	mock := pose.NewMockExtractor()
	// Left arm alone would be flexed, but the mean (~100) is neither.
	mock.SetSequence([]pose.MockResult{detected(170, 170), detected(40, 160)})
	p := New(mock)
	c := counter.NewDefault()
	frame := newFrame(t)

	p.Process(frame, c)
	res, err := p.Process(frame, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.StatusLabel != counter.PhaseAscending {
		t.Errorf("label = %q, want %q", res.StatusLabel, counter.PhaseAscending)
	}
	if math.Abs(res.Landmarks.AngleLeft-40) > 1.5 {
		t.Errorf("AngleLeft = %.2f, want ~40", res.Landmarks.AngleLeft)
	}
	if math.Abs(res.Landmarks.AngleRight-160) > 1.5 {
		t.Errorf("AngleRight = %.2f, want ~160", res.Landmarks.AngleRight)
	}
}

func TestProcessor_NoDetectionLeavesStateUnchanged(t *testing.T) {
	mock := pose.NewMockExtractor()
	mock.SetSequence([]pose.MockResult{
		detected(160, 160),
		detected(40, 40),
		{Found: false},
		{Found: false},
	})
	p := New(mock)
	c := counter.NewDefault()
	frame := newFrame(t)

	p.Process(frame, c)
	prior, _ := p.Process(frame, c)

	for i := 0; i < 2; i++ {
		res, err := p.Process(frame, c)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Count != prior.Count || res.StatusLabel != prior.StatusLabel {
			t.Errorf("missed frame changed state: got (%d, %q), want (%d, %q)",
				res.Count, res.StatusLabel, prior.Count, prior.StatusLabel)
		}
		if res.Landmarks != nil {
			t.Error("expected nil landmarks on missed frame")
		}
	}

	if snap := c.Snapshot(); !snap.ReachedExtended || !snap.ReachedFlexed {
		t.Errorf("missed frames must not reset phase flags, got %+v", snap)
	}
}

func TestProcessor_ExtractorError(t *testing.T) {
	mock := pose.NewMockExtractor()
	boom := errors.New("inference crashed")
	mock.SetError(boom)
	p := New(mock)
	c := counter.NewDefault()

	res, err := p.Process(newFrame(t), c)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped extractor error, got %v", err)
	}
	if res.StatusLabel != counter.PhaseWaiting || res.Landmarks != nil {
		t.Errorf("unexpected result on error: %+v", res)
	}
}

func TestProcessor_EmptyFrame(t *testing.T) {
	mock := pose.NewMockExtractor()
	p := New(mock)

	empty := gocv.NewMat()
	defer empty.Close()

	if _, err := p.Process(&empty, counter.NewDefault()); err == nil {
		t.Error("expected error for empty frame")
	}
	if mock.Calls() != 0 {
		t.Error("extractor should not be called for empty frame")
	}
}

func TestResult_JSON(t *testing.T) {
	t.Run("missing landmarks encode as null", func(t *testing.T) {
		data, err := json.Marshal(Result{Count: 2, StatusLabel: counter.PhaseReset})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if v, ok := decoded["landmarks"]; !ok || v != nil {
			t.Errorf("landmarks = %v (present %v), want null", v, ok)
		}
		if decoded["status_label"] != "reset" {
			t.Errorf("status_label = %v", decoded["status_label"])
		}
		if _, ok := decoded["Completed"]; ok {
			t.Error("Completed must not be serialized")
		}
	})

	t.Run("landmarks carry named joints and angles", func(t *testing.T) {
		res := Result{Landmarks: &Landmarks{LeftWrist: pose.Keypoint{X: 3, Y: 4}, AngleLeft: 91.5}}
		data, _ := json.Marshal(res)

		var decoded struct {
			Landmarks map[string]json.RawMessage `json:"landmarks"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		for _, key := range []string{
			"right_shoulder", "right_elbow", "right_wrist",
			"left_shoulder", "left_elbow", "left_wrist",
			"angle_r", "angle_l",
		} {
			if _, ok := decoded.Landmarks[key]; !ok {
				t.Errorf("missing key %q", key)
			}
		}
	})
}
