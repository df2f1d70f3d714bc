package stream

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/repcounter/internal/counter"
	"github.com/ayusman/repcounter/internal/pose"
	"github.com/ayusman/repcounter/internal/session"
)

type harness struct {
	manager *session.Manager
	mock    *pose.MockExtractor
	server  *httptest.Server
	frame   string
}

func newHarness(t *testing.T, cfg session.Config) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := session.NewManager(cfg, counter.DefaultThresholds(), nil, logger)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	h := &harness{
		manager: m,
		mock:    pose.NewMockExtractor(),
		frame:   "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(encodeJPEG(t, 64, 48)),
	}
	h.server = httptest.NewServer(NewHandler(m, pose.MockFactory(h.mock), logger))
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply map[string]any
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	return reply
}

func arm(deg float64) pose.MockResult {
	return pose.MockResult{Skeleton: pose.ArmPose(deg, deg, 64, 48), Found: true}
}

func TestHandler_CountsRepetition(t *testing.T) {
	h := newHarness(t, session.Config{})
	h.mock.SetSequence([]pose.MockResult{arm(170), arm(40), {Found: false}, arm(170)})
	conn := h.dial(t)

	wantLabels := []string{"ascending", "well-done", "well-done", "reset"}
	wantCounts := []float64{0, 0, 0, 1}

	var sessionID string
	for i := range wantLabels {
		send(t, conn, h.frame)
		reply := receive(t, conn)

		if reply["status_label"] != wantLabels[i] {
			t.Errorf("frame %d: expected label %q, got %v", i+1, wantLabels[i], reply["status_label"])
		}
		if reply["count"] != wantCounts[i] {
			t.Errorf("frame %d: expected count %v, got %v", i+1, wantCounts[i], reply["count"])
		}
		id, _ := reply["session_id"].(string)
		if id == "" {
			t.Fatalf("frame %d: missing session_id", i+1)
		}
		if sessionID != "" && id != sessionID {
			t.Errorf("frame %d: session id changed", i+1)
		}
		sessionID = id
	}

	if _, err := h.manager.Get(sessionID); err != nil {
		t.Errorf("session should be live while connected: %v", err)
	}
}

func TestHandler_LandmarksPayload(t *testing.T) {
	h := newHarness(t, session.Config{})
	h.mock.SetSkeleton(pose.ArmPose(90, 90, 64, 48))
	conn := h.dial(t)

	send(t, conn, h.frame)
	reply := receive(t, conn)

	lm, ok := reply["landmarks"].(map[string]any)
	if !ok {
		t.Fatalf("expected landmarks object, got %v", reply["landmarks"])
	}
	for _, key := range []string{"left_shoulder", "left_elbow", "left_wrist", "right_shoulder", "right_elbow", "right_wrist"} {
		pt, ok := lm[key].(map[string]any)
		if !ok {
			t.Errorf("missing %s", key)
			continue
		}
		if _, ok := pt["x"]; !ok {
			t.Errorf("%s has no x", key)
		}
	}
	angle, _ := lm["angle_l"].(float64)
	if angle < 80 || angle > 100 {
		t.Errorf("expected angle_l near 90, got %v", lm["angle_l"])
	}
}

func TestHandler_NoDetection(t *testing.T) {
	h := newHarness(t, session.Config{})
	conn := h.dial(t)

	send(t, conn, h.frame)
	reply := receive(t, conn)

	if v, ok := reply["landmarks"]; !ok || v != nil {
		t.Errorf("expected null landmarks, got %v", v)
	}
	if reply["status_label"] != "waiting" {
		t.Errorf("expected waiting label, got %v", reply["status_label"])
	}
}

func TestHandler_SkipsMalformedFrames(t *testing.T) {
	h := newHarness(t, session.Config{})
	h.mock.SetSkeleton(pose.ArmPose(170, 170, 64, 48))
	conn := h.dial(t)

	send(t, conn, "not a frame")
	send(t, conn, "data:image/jpeg;base64,")
	send(t, conn, h.frame)

	reply := receive(t, conn)
	if reply["status_label"] != "ascending" {
		t.Errorf("expected the first reply to be for the valid frame, got %v", reply)
	}
	if h.mock.Calls() != 1 {
		t.Errorf("expected 1 extraction, got %d", h.mock.Calls())
	}
}

func TestHandler_SkipsExtractorErrors(t *testing.T) {
	h := newHarness(t, session.Config{})
	h.mock.SetSequence([]pose.MockResult{{Err: errors.New("inference crashed")}, arm(170)})
	conn := h.dial(t)

	send(t, conn, h.frame)
	send(t, conn, h.frame)

	reply := receive(t, conn)
	if reply["status_label"] != "ascending" {
		t.Errorf("expected reply for second frame only, got %v", reply)
	}
}

func TestHandler_ResetMessage(t *testing.T) {
	h := newHarness(t, session.Config{})
	h.mock.SetSequence([]pose.MockResult{arm(170), arm(40), arm(170)})
	conn := h.dial(t)

	for i := 0; i < 3; i++ {
		send(t, conn, h.frame)
		receive(t, conn)
	}

	send(t, conn, ResetCommand)
	reply := receive(t, conn)

	if reply["count"] != float64(0) || reply["status_label"] != "waiting" {
		t.Errorf("expected reset acknowledgement, got %v", reply)
	}
	if v, ok := reply["landmarks"]; !ok || v != nil {
		t.Errorf("expected null landmarks on reset, got %v", v)
	}
}

func TestHandler_BinaryFrame(t *testing.T) {
	h := newHarness(t, session.Config{})
	h.mock.SetSkeleton(pose.ArmPose(170, 170, 64, 48))
	conn := h.dial(t)

	if err := conn.WriteMessage(websocket.BinaryMessage, encodeJPEG(t, 64, 48)); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply := receive(t, conn)
	if reply["status_label"] != "ascending" {
		t.Errorf("expected ascending, got %v", reply["status_label"])
	}
}

func TestHandler_SessionsAreIndependent(t *testing.T) {
	h := newHarness(t, session.Config{})
	h.mock.SetSequence([]pose.MockResult{arm(170), arm(40), arm(170)})

	a := h.dial(t)
	for i := 0; i < 3; i++ {
		send(t, a, h.frame)
		receive(t, a)
	}

	b := h.dial(t)
	h.mock.SetNoDetection()
	send(t, b, h.frame)
	reply := receive(t, b)

	if reply["count"] != float64(0) {
		t.Errorf("second session should start at 0, got %v", reply["count"])
	}
}

func TestHandler_SharedCounter(t *testing.T) {
	h := newHarness(t, session.Config{Shared: true})
	h.mock.SetSequence([]pose.MockResult{arm(170), arm(40), arm(170)})

	a := h.dial(t)
	for i := 0; i < 3; i++ {
		send(t, a, h.frame)
		receive(t, a)
	}

	b := h.dial(t)
	h.mock.SetNoDetection()
	send(t, b, h.frame)
	reply := receive(t, b)

	if reply["count"] != float64(1) {
		t.Errorf("shared counter should carry over, got %v", reply["count"])
	}
}

func TestHandler_ClosesSessionOnDisconnect(t *testing.T) {
	h := newHarness(t, session.Config{})
	conn := h.dial(t)

	send(t, conn, h.frame)
	receive(t, conn)
	if h.manager.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", h.manager.Len())
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for h.manager.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not closed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !h.mock.Closed() {
		t.Error("extractor should be closed after disconnect")
	}
}

func TestHandler_ExtractorUnavailable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, _ := session.NewManager(session.Config{}, counter.DefaultThresholds(), nil, logger)
	factory := func() (pose.Extractor, error) { return nil, errors.New("python missing") }
	srv := httptest.NewServer(NewHandler(m, factory, logger))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseInternalServerErr) {
		t.Errorf("expected internal error close, got %v", err)
	}
	if m.Len() != 0 {
		t.Error("no session should be opened without an extractor")
	}
}
