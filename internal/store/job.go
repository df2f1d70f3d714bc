package store

import (
	"database/sql"
	"errors"
	"time"
)

// JobStatus is the outcome of a batch video job.
type JobStatus string

const (
	JobStatusDone   JobStatus = "done"
	JobStatusFailed JobStatus = "failed"
)

// VideoJob records one batch run submitted through the API.
type VideoJob struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	InputName  string    `json:"input_name"`
	OutputPath string    `json:"-"`
	Codec      string    `json:"codec,omitempty"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// VideoJobRepository provides access to batch video jobs.
type VideoJobRepository struct {
	db *sql.DB
}

// VideoJobs returns the video job repository for this store.
func (s *Store) VideoJobs() *VideoJobRepository {
	return &VideoJobRepository{db: s.db}
}

// Create inserts a job record.
func (r *VideoJobRepository) Create(j *VideoJob) error {
	j.CreatedAt = time.Now()

	var sessionID any
	if j.SessionID != "" {
		sessionID = j.SessionID
	}

	_, err := r.db.Exec(
		`INSERT INTO video_jobs (id, session_id, input_name, output_path, codec, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, sessionID, j.InputName, j.OutputPath, j.Codec, string(j.Status), j.Error, j.CreatedAt,
	)
	return err
}

const jobColumns = `id, COALESCE(session_id, ''), input_name, output_path, codec, status, error, created_at`

func scanJob(row interface{ Scan(...any) error }) (*VideoJob, error) {
	j := &VideoJob{}
	var status string
	if err := row.Scan(&j.ID, &j.SessionID, &j.InputName, &j.OutputPath, &j.Codec,
		&status, &j.Error, &j.CreatedAt); err != nil {
		return nil, err
	}
	j.Status = JobStatus(status)
	return j, nil
}

// GetByID retrieves a job by its ID.
func (r *VideoJobRepository) GetByID(id string) (*VideoJob, error) {
	j, err := scanJob(r.db.QueryRow(`SELECT `+jobColumns+` FROM video_jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return j, nil
}

// List returns every job, newest first.
func (r *VideoJobRepository) List() ([]*VideoJob, error) {
	rows, err := r.db.Query(`SELECT ` + jobColumns + ` FROM video_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*VideoJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}
