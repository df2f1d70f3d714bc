package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/repcounter/internal/store"
	"github.com/ayusman/repcounter/internal/video"
)

// maxUploadMemory is the in-memory part of a multipart upload; the rest
// spills to temporary files.
const maxUploadMemory = 32 << 20

// Runner processes one video file.
type Runner interface {
	Run(ctx context.Context, input, output string) (video.Report, error)
}

// VideoHandler handles batch video uploads and job records.
type VideoHandler struct {
	runner    Runner
	store     *store.Store
	outputDir string
	jobs      chan struct{}
	logger    *slog.Logger
}

// NewVideoHandler creates a VideoHandler. maxJobs bounds concurrent runs;
// st may be nil, in which case jobs are not recorded.
func NewVideoHandler(runner Runner, st *store.Store, outputDir string, maxJobs int, logger *slog.Logger) *VideoHandler {
	if maxJobs < 1 {
		maxJobs = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoHandler{
		runner:    runner,
		store:     st,
		outputDir: outputDir,
		jobs:      make(chan struct{}, maxJobs),
		logger:    logger,
	}
}

// ServeHTTP routes /api/videos, /api/videos/{id} and /api/videos/{id}/output.
func (h *VideoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/videos")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.process(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	switch rest {
	case "":
		h.get(w, r, id)
	case "output":
		h.output(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// process handles POST /api/videos. The upload is processed within the
// request and the annotated MP4 is returned as the response body.
func (h *VideoHandler) process(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	input, err := saveUpload(file, filepath.Ext(header.Filename))
	if err != nil {
		h.logger.Error("api: failed to store upload", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}
	defer os.Remove(input)

	if err := os.MkdirAll(h.outputDir, 0o755); err != nil {
		h.logger.Error("api: failed to create output dir", "dir", h.outputDir, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to prepare output")
		return
	}

	select {
	case h.jobs <- struct{}{}:
		defer func() { <-h.jobs }()
	case <-r.Context().Done():
		return
	}

	jobID := uuid.NewString()
	output := filepath.Join(h.outputDir, jobID+".mp4")
	started := time.Now()

	rep, err := h.runner.Run(r.Context(), input, output)
	if err != nil {
		h.recordFailure(jobID, header.Filename, err)
		if errors.Is(err, context.Canceled) {
			return
		}
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, video.ErrInputUnreadable):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, video.ErrEncoderUnavailable):
			status = http.StatusServiceUnavailable
		}
		h.logger.Error("api: video job failed", "job_id", jobID, "input", header.Filename, "error", err)
		writeError(w, status, err.Error())
		return
	}

	h.recordSuccess(jobID, header.Filename, rep, started)

	filename := fmt.Sprintf("processed_%s.mp4", strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename)))
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Job-ID", jobID)
	w.Header().Set("X-Repetition-Count", strconv.Itoa(rep.Count))
	w.Header().Set("X-Output-Filename", filename)
	http.ServeFile(w, r, output)
}

func saveUpload(src io.Reader, ext string) (string, error) {
	tmp, err := os.CreateTemp("", "repcounter-upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func (h *VideoHandler) recordSuccess(jobID, inputName string, rep video.Report, started time.Time) {
	if h.store == nil {
		return
	}

	sess := &store.Session{
		ID:             uuid.NewString(),
		Kind:           store.SessionKindBatch,
		Repetitions:    rep.Count,
		Frames:         rep.Frames,
		DetectedFrames: rep.Detected,
		StartedAt:      started,
	}
	if err := h.store.Sessions().Create(sess); err != nil {
		h.logger.Error("api: failed to record batch session", "job_id", jobID, "error", err)
		sess.ID = ""
	}

	job := &store.VideoJob{
		ID:         jobID,
		SessionID:  sess.ID,
		InputName:  inputName,
		OutputPath: rep.Output,
		Codec:      rep.Codec,
		Status:     store.JobStatusDone,
	}
	if err := h.store.VideoJobs().Create(job); err != nil {
		h.logger.Error("api: failed to record job", "job_id", jobID, "error", err)
	}
}

func (h *VideoHandler) recordFailure(jobID, inputName string, runErr error) {
	if h.store == nil {
		return
	}
	job := &store.VideoJob{
		ID:        jobID,
		InputName: inputName,
		Status:    store.JobStatusFailed,
		Error:     runErr.Error(),
	}
	if err := h.store.VideoJobs().Create(job); err != nil {
		h.logger.Error("api: failed to record job", "job_id", jobID, "error", err)
	}
}

// list handles GET /api/videos.
func (h *VideoHandler) list(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusOK, []*store.VideoJob{})
		return
	}

	jobs, err := h.store.VideoJobs().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*store.VideoJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// get handles GET /api/videos/{id}.
func (h *VideoHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	job, ok := h.lookup(w, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// output handles GET /api/videos/{id}/output.
func (h *VideoHandler) output(w http.ResponseWriter, r *http.Request, id string) {
	job, ok := h.lookup(w, id)
	if !ok {
		return
	}
	if job.Status != store.JobStatusDone || job.OutputPath == "" {
		writeError(w, http.StatusNotFound, "Job has no output")
		return
	}
	if _, err := os.Stat(job.OutputPath); err != nil {
		writeError(w, http.StatusNotFound, "Output file no longer exists")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, job.OutputPath)
}

func (h *VideoHandler) lookup(w http.ResponseWriter, id string) (*store.VideoJob, bool) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return nil, false
	}

	job, err := h.store.VideoJobs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to get job")
		return nil, false
	}
	return job, true
}
