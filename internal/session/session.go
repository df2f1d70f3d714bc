// Package session keeps the registry of live counting sessions. Each
// streaming connection owns a counter unless shared mode is enabled, in
// which case every session feeds the same one.
package session

import (
	"sync"
	"time"

	"github.com/ayusman/repcounter/internal/counter"
	"github.com/ayusman/repcounter/internal/pipeline"
	"github.com/ayusman/repcounter/internal/store"
)

// Session is one live source of frames.
type Session struct {
	ID        string
	Kind      store.SessionKind
	Counter   *counter.Counter
	StartedAt time.Time

	manager *Manager

	mu        sync.Mutex
	frames    int
	detected  int
	completed int
}

// Info is a point-in-time view of a session.
type Info struct {
	ID          string            `json:"id"`
	Kind        store.SessionKind `json:"kind"`
	Count       int               `json:"count"`
	StatusLabel counter.Phase     `json:"status_label"`
	Frames      int               `json:"frames"`
	Detected    int               `json:"detected_frames"`
	Completed   int               `json:"completed"`
	StartedAt   time.Time         `json:"started_at"`
}

// Observe records the outcome of one processed frame and fires the
// repetition hook when the frame completed a repetition.
func (s *Session) Observe(res pipeline.Result) {
	s.mu.Lock()
	s.frames++
	if res.Detected() {
		s.detected++
	}
	if res.Completed {
		s.completed++
	}
	s.mu.Unlock()

	if res.Completed && s.manager != nil {
		s.manager.fireRepetition(s.ID, res.Count)
	}
}

// Info returns the current session state.
func (s *Session) Info() Info {
	snap := s.Counter.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{
		ID:          s.ID,
		Kind:        s.Kind,
		Count:       snap.Count,
		StatusLabel: snap.Phase,
		Frames:      s.frames,
		Detected:    s.detected,
		Completed:   s.completed,
		StartedAt:   s.StartedAt,
	}
}

// record converts the session into a store row. Repetitions counts the
// completions observed by this session, including those before a reset.
func (s *Session) record(ended time.Time) *store.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &store.Session{
		ID:             s.ID,
		Kind:           s.Kind,
		Repetitions:    s.completed,
		Frames:         s.frames,
		DetectedFrames: s.detected,
		StartedAt:      s.StartedAt,
		EndedAt:        ended,
	}
}
