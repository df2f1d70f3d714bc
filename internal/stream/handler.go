package stream

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/repcounter/internal/pipeline"
	"github.com/ayusman/repcounter/internal/pose"
	"github.com/ayusman/repcounter/internal/session"
	"github.com/ayusman/repcounter/internal/store"
)

// ResetCommand is the in-band text message that zeroes the session counter.
const ResetCommand = "reset"

// maxMessageSize bounds a single frame message.
const maxMessageSize = 8 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Reply is sent for every processed frame.
type Reply struct {
	SessionID string `json:"session_id"`
	pipeline.Result
}

// Handler upgrades requests to websocket sessions.
type Handler struct {
	sessions     *session.Manager
	newExtractor pose.Factory
	logger       *slog.Logger
}

// NewHandler creates a Handler. Each connection gets its own extractor
// from factory and its own session from sessions.
func NewHandler(sessions *session.Manager, factory pose.Factory, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions:     sessions,
		newExtractor: factory,
		logger:       logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("stream: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	extractor, err := h.newExtractor()
	if err != nil {
		h.logger.Error("stream: pose extractor unavailable", "error", err)
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "pose extractor unavailable")
		conn.WriteMessage(websocket.CloseMessage, msg)
		return
	}
	defer extractor.Close()

	sess := h.sessions.Open(store.SessionKindStream)
	defer func() {
		if err := h.sessions.Close(sess.ID); err != nil {
			h.logger.Error("stream: close session", "id", sess.ID, "error", err)
		}
	}()

	proc := pipeline.New(extractor)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("stream: connection ended", "id", sess.ID, "error", err)
			}
			return
		}

		var frame gocv.Mat
		switch msgType {
		case websocket.TextMessage:
			text := string(data)
			if strings.EqualFold(strings.TrimSpace(text), ResetCommand) {
				snap, err := h.sessions.Reset(sess.ID)
				if err != nil {
					h.logger.Error("stream: reset failed", "id", sess.ID, "error", err)
					continue
				}
				reply := Reply{SessionID: sess.ID, Result: pipeline.Result{Count: snap.Count, StatusLabel: snap.Phase}}
				if err := conn.WriteJSON(reply); err != nil {
					return
				}
				continue
			}
			frame, err = DecodeFrame(text)
		case websocket.BinaryMessage:
			frame, err = DecodeImage(data)
		default:
			continue
		}
		if err != nil {
			frame.Close()
			h.logger.Debug("stream: frame skipped", "id", sess.ID, "error", err)
			continue
		}

		res, err := proc.Process(&frame, sess.Counter)
		frame.Close()
		if err != nil {
			h.logger.Debug("stream: frame processing failed", "id", sess.ID, "error", err)
			continue
		}
		sess.Observe(res)

		if err := conn.WriteJSON(Reply{SessionID: sess.ID, Result: res}); err != nil {
			h.logger.Debug("stream: write failed", "id", sess.ID, "error", err)
			return
		}
	}
}
