package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/antosomzi/traffic-sign-app/internal/extract"
	"github.com/antosomzi/traffic-sign-app/internal/progress"
	"github.com/antosomzi/traffic-sign-app/internal/recording"
	"github.com/antosomzi/traffic-sign-app/internal/task"
	"github.com/antosomzi/traffic-sign-app/internal/video"
)

// Deps are the collaborators the HTTP surface drives.
type Deps struct {
	Progress    extract.ProgressStore // required
	Extractor   *extract.Extractor    // required
	Coordinator *task.Coordinator     // required
	Recordings  *recording.Store      // required
	Deleter     *recording.Deleter    // required
	Videos      *video.Mirror         // optional, S3 video cleanup off when nil
	UploadDir   string                // required
}

type handler struct {
	mux *http.ServeMux

	progress    extract.ProgressStore
	extractor   *extract.Extractor
	coordinator *task.Coordinator
	recordings  *recording.Store
	deleter     *recording.Deleter
	videos      *video.Mirror
	uploadDir   string
}

func newHandler(deps *Deps) *handler {
	mux := http.NewServeMux()
	h := &handler{
		mux:         mux,
		progress:    deps.Progress,
		extractor:   deps.Extractor,
		coordinator: deps.Coordinator,
		recordings:  deps.Recordings,
		deleter:     deps.Deleter,
		videos:      deps.Videos,
		uploadDir:   deps.UploadDir,
	}

	mux.HandleFunc("GET /health", h.GetHealth)

	mux.HandleFunc("POST /upload", h.UploadRecording)
	mux.HandleFunc("GET /extract_status/{job_id}", h.GetExtractStatus)

	mux.HandleFunc("GET /recordings", h.ListRecordings)
	mux.HandleFunc("POST /rerun/{id}", h.RerunRecording)
	mux.HandleFunc("DELETE /recordings/{id}", h.DeleteRecording)

	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}

	respondJSON(w, http.StatusOK, response{Status: "ok"})
}

// UploadRecording accepts a recording archive and replies with a job id
// immediately; saving and extraction continue in the background and are
// observable through GET /extract_status/{job_id}.
func (h *handler) UploadRecording(w http.ResponseWriter, r *http.Request) {
	type response struct {
		JobID string `json:"job_id"`
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file in request")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		respondError(w, http.StatusBadRequest, "No file selected")
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".zip") {
		respondError(w, http.StatusBadRequest, "Invalid file type. Only ZIP allowed.")
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read file: %v", err))
		return
	}

	// Reject duplicates before any disk or queue work happens. The
	// extractor re-checks before promotion; this check just fails fast.
	root, err := archiveRoot(content)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Uploaded file is not a valid ZIP archive or cannot be inspected.")
		return
	}
	if h.recordings.Exists(root) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Recording with ID '%s' already exists.", root))
		return
	}

	jobID := uuid.New().String()
	savePath := filepath.Join(h.uploadDir, jobID+"_"+filepath.Base(header.Filename))

	// The job record must exist before the client can poll for it.
	ctx := r.Context()
	if err = h.progress.Set(ctx, jobID, &progress.Record{Phase: progress.PhaseReading}); err != nil {
		slog.Error("couldn't create progress record", "job_id", jobID, "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	err = h.progress.Update(ctx, jobID, func(rec *progress.Record) {
		rec.Phase = progress.PhaseWriting
	})
	if err != nil {
		slog.Error("couldn't update progress record", "job_id", jobID, "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	go h.saveAndExtract(jobID, savePath, content)

	respondJSON(w, http.StatusOK, response{JobID: jobID})
}

// saveAndExtract finishes an upload after the HTTP reply: archive to
// disk, extraction, and queuing of the pipeline task.
func (h *handler) saveAndExtract(jobID, savePath string, content []byte) {
	ctx := context.Background()

	err := os.MkdirAll(h.uploadDir, 0o777)
	if err == nil {
		err = os.WriteFile(savePath, content, 0o666)
	}
	if err != nil {
		saveErr := err
		_ = h.progress.Update(ctx, jobID, func(rec *progress.Record) {
			rec.Phase = progress.PhaseError
			rec.ErrorMessage = fmt.Sprintf("Save failed: %v", saveErr)
		})
		return
	}

	err = h.progress.Update(ctx, jobID, func(rec *progress.Record) {
		rec.Phase = progress.PhaseExtracting
	})
	if err != nil {
		slog.Error("couldn't update progress record", "job_id", jobID, "err", err)
		return
	}

	recordingID, err := h.extractor.Extract(ctx, jobID, savePath)
	if err != nil {
		// The extractor has already mirrored the failure into the
		// progress record for pollers.
		slog.Error("extraction failed", "job_id", jobID, "err", err)
		return
	}

	if err = h.coordinator.Enqueue(ctx, recordingID); err != nil {
		slog.Warn("couldn't queue pipeline task", "recording_id", recordingID, "err", err)
		return
	}
	slog.Info("pipeline task queued", "recording_id", recordingID)
}

func (h *handler) GetExtractStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	rec, err := h.progress.Get(r.Context(), jobID)
	if err != nil {
		slog.Error("couldn't read progress record", "job_id", jobID, "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "Unknown job_id")
		return
	}

	respondJSON(w, http.StatusOK, progress.ReportFromRecord(rec))
}

func (h *handler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Recordings []*recording.ListEntry `json:"recordings"`
	}

	entries, err := h.recordings.List()
	if err != nil {
		slog.Error("couldn't list recordings", "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, response{Recordings: entries})
}

type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *handler) RerunRecording(w http.ResponseWriter, r *http.Request) {
	recordingID := r.PathValue("id")
	discard := r.URL.Query().Get("discard_results") == "true"

	err := h.coordinator.Rerun(r.Context(), &task.RerunParams{
		RecordingID:    recordingID,
		DiscardResults: discard,
	})
	if err != nil {
		switch {
		case errors.Is(err, task.ErrNotFound):
			respondJSON(w, http.StatusNotFound, actionResponse{Message: "Recording not found."})
		case errors.Is(err, task.ErrProcessing):
			respondJSON(w, http.StatusBadRequest, actionResponse{Message: "Recording is currently processing."})
		default:
			respondJSON(w, http.StatusInternalServerError, actionResponse{Message: fmt.Sprintf("Failed to queue pipeline: %v", err)})
		}
		return
	}

	respondJSON(w, http.StatusOK, actionResponse{
		Success: true,
		Message: "Pipeline re-run has been queued successfully.",
	})
}

func (h *handler) DeleteRecording(w http.ResponseWriter, r *http.Request) {
	recordingID := r.PathValue("id")

	// Capture the S3 key before the directory and its side-car go away.
	videoKey := ""
	if h.videos != nil && h.recordings.Exists(recordingID) {
		videoKey = recording.ReadStatus(h.recordings.Path(recordingID)).VideoS3Key
	}

	err := h.deleter.Delete(recordingID)
	if err != nil {
		switch {
		case errors.Is(err, recording.ErrNotFound):
			respondJSON(w, http.StatusNotFound, actionResponse{Message: "Recording not found."})
		case errors.Is(err, recording.ErrDeletionBlocked):
			respondJSON(w, http.StatusBadRequest, actionResponse{Message: "Cannot delete recording while it is queued or processing."})
		default:
			respondJSON(w, http.StatusInternalServerError, actionResponse{Message: fmt.Sprintf("Failed to delete recording: %v", err)})
		}
		return
	}

	if videoKey != "" {
		// The recording is already gone, so a leaked object only
		// costs storage. Log and move on.
		if err := h.videos.Delete(r.Context(), videoKey); err != nil {
			slog.Warn("couldn't delete offloaded video", "recording_id", recordingID, "key", videoKey, "err", err)
		}
	}

	respondJSON(w, http.StatusOK, actionResponse{
		Success: true,
		Message: "Recording deleted successfully.",
	})
}

// archiveRoot returns the top path segment of the archive's first
// meaningful entry, skipping junk entries zip tools synthesize.
func archiveRoot(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}
	for _, f := range zr.File {
		if extract.IsJunkEntry(f.Name) {
			continue
		}
		name := strings.Trim(f.Name, "/")
		if name == "" {
			continue
		}
		top, _, _ := strings.Cut(name, "/")
		return top, nil
	}
	return "", errors.New("archive is empty")
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	type response struct {
		Error string `json:"error"`
	}

	respondJSON(w, status, response{Error: message})
}
