package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/repcounter/internal/counter"
	"github.com/ayusman/repcounter/internal/store"
)

var (
	// ErrNotFound is returned for unknown session IDs.
	ErrNotFound = errors.New("session not found")

	// ErrNotShared is returned by ResetShared when shared mode is off.
	ErrNotShared = errors.New("shared counter is not enabled")
)

// Config holds session settings.
type Config struct {
	// Shared makes every session use one counter. Meant for a single
	// kiosk display where all sources watch the same athlete.
	Shared bool `yaml:"shared"`
}

// RepetitionFunc is called with the session ID and its new count.
type RepetitionFunc func(sessionID string, count int)

// Manager tracks live sessions.
type Manager struct {
	cfg        Config
	thresholds counter.Thresholds
	store      *store.Store
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	shared   *counter.Counter
	hooks    []RepetitionFunc
}

// NewManager creates a Manager. st may be nil, in which case closed
// sessions are not persisted.
func NewManager(cfg Config, thresholds counter.Thresholds, st *store.Store, logger *slog.Logger) (*Manager, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:        cfg,
		thresholds: thresholds,
		store:      st,
		logger:     logger,
		sessions:   make(map[string]*Session),
	}
	if cfg.Shared {
		c, err := counter.New(thresholds)
		if err != nil {
			return nil, err
		}
		m.shared = c
	}
	return m, nil
}

// Shared reports whether shared mode is enabled.
func (m *Manager) Shared() bool {
	return m.shared != nil
}

// OnRepetition registers fn to be called whenever any session completes
// a repetition. Hooks run synchronously on the frame goroutine.
func (m *Manager) OnRepetition(fn RepetitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Manager) fireRepetition(id string, count int) {
	m.mu.RLock()
	hooks := m.hooks
	m.mu.RUnlock()

	for _, fn := range hooks {
		fn(id, count)
	}
}

// Open registers a new session of the given kind.
func (m *Manager) Open(kind store.SessionKind) *Session {
	c := m.shared
	if c == nil {
		// thresholds were validated in NewManager
		c, _ = counter.New(m.thresholds)
	}

	s := &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		Counter:   c,
		StartedAt: time.Now(),
		manager:   m,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("session: opened", "id", s.ID, "kind", kind, "shared", m.Shared())
	return s
}

// Get returns the live session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns every live session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, len(sessions))
	for i, s := range sessions {
		infos[i] = s.Info()
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reset zeroes the counter used by the session. In shared mode this is
// the shared counter.
func (m *Manager) Reset(id string) (counter.Snapshot, error) {
	s, err := m.Get(id)
	if err != nil {
		return counter.Snapshot{}, err
	}
	m.logger.Info("session: counter reset", "id", id)
	return s.Counter.Reset(), nil
}

// ResetShared zeroes the shared counter.
func (m *Manager) ResetShared() (counter.Snapshot, error) {
	if m.shared == nil {
		return counter.Snapshot{}, ErrNotShared
	}
	m.logger.Info("session: shared counter reset")
	return m.shared.Reset(), nil
}

// SharedSnapshot returns the shared counter state, or false when shared
// mode is off.
func (m *Manager) SharedSnapshot() (counter.Snapshot, bool) {
	if m.shared == nil {
		return counter.Snapshot{}, false
	}
	return m.shared.Snapshot(), true
}

// Close removes the session and persists its record.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rec := s.record(time.Now())
	m.logger.Info("session: closed", "id", id,
		"repetitions", rec.Repetitions, "frames", rec.Frames, "detected", rec.DetectedFrames)

	if m.store == nil {
		return nil
	}
	if err := m.store.Sessions().Create(rec); err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	return nil
}

// CloseAll closes every live session. Persistence errors are logged.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Close(id); err != nil && !errors.Is(err, ErrNotFound) {
			m.logger.Error("session: close failed", "id", id, "error", err)
		}
	}
}
