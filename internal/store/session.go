package store

import (
	"database/sql"
	"errors"
	"time"
)

// SessionKind identifies where a session's frames came from.
type SessionKind string

const (
	SessionKindStream SessionKind = "stream"
	SessionKindBatch  SessionKind = "batch"
	SessionKindKiosk  SessionKind = "kiosk"
)

// Session is a finished counting session.
type Session struct {
	ID             string      `json:"id"`
	Kind           SessionKind `json:"kind"`
	Repetitions    int         `json:"repetitions"`
	Frames         int         `json:"frames"`
	DetectedFrames int         `json:"detected_frames"`
	StartedAt      time.Time   `json:"started_at"`
	EndedAt        time.Time   `json:"ended_at"`
}

// Totals aggregates all stored sessions.
type Totals struct {
	Sessions    int `json:"sessions"`
	Repetitions int `json:"repetitions"`
}

// SessionRepository provides access to finished sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a finished session. A zero EndedAt is set to now.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.EndedAt.IsZero() {
		sess.EndedAt = time.Now()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = sess.EndedAt
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, kind, repetitions, frames, detected_frames, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, string(sess.Kind), sess.Repetitions, sess.Frames, sess.DetectedFrames,
		sess.StartedAt, sess.EndedAt,
	)
	return err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	sess := &Session{}
	var kind string

	err := r.db.QueryRow(
		`SELECT id, kind, repetitions, frames, detected_frames, started_at, ended_at
		 FROM sessions WHERE id = ?`,
		id,
	).Scan(&sess.ID, &kind, &sess.Repetitions, &sess.Frames, &sess.DetectedFrames,
		&sess.StartedAt, &sess.EndedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	sess.Kind = SessionKind(kind)
	return sess, nil
}

// List returns the most recently ended sessions first. A limit of 0 or
// less returns every row.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, kind, repetitions, frames, detected_frames, started_at, ended_at
		 FROM sessions ORDER BY ended_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		var kind string

		err := rows.Scan(&sess.ID, &kind, &sess.Repetitions, &sess.Frames, &sess.DetectedFrames,
			&sess.StartedAt, &sess.EndedAt)
		if err != nil {
			return nil, err
		}

		sess.Kind = SessionKind(kind)
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Totals returns the number of stored sessions and their summed repetitions.
func (r *SessionRepository) Totals() (Totals, error) {
	var t Totals
	err := r.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(repetitions), 0) FROM sessions`,
	).Scan(&t.Sessions, &t.Repetitions)
	return t, err
}
