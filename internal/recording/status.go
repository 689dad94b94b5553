// Package recording manages validated recordings on shared storage and
// their status.json side-car documents.
package recording

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Status is the processing state of a recording.
type Status string

const (
	StatusValidated  Status = "validated"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

const statusFileName = "status.json"

// StatusRecord is the durable per-recording state document.
// The web layer reads and writes the same file directly, so fields this
// package does not own (video_s3_key, camera_folder, validation flags and
// anything added later) must survive every rewrite.
type StatusRecord struct {
	Status       Status         `json:"status"`
	Message      string         `json:"message"`
	Timestamp    time.Time      `json:"timestamp"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`

	VideoS3Key       string `json:"video_s3_key,omitempty"`
	CameraFolder     string `json:"camera_folder,omitempty"`
	ValidationStatus string `json:"validation_status,omitempty"`
	ValidatedBy      string `json:"validated_by,omitempty"`
	ValidatedAt      string `json:"validated_at,omitempty"`
}

// ReadStatus reads the side-car document under recordingPath.
// A missing or unreadable file is reported as a validated record,
// matching how pollers treat recordings that predate the document.
func ReadStatus(recordingPath string) *StatusRecord {
	data, err := os.ReadFile(filepath.Join(recordingPath, statusFileName))
	if err != nil {
		return &StatusRecord{Status: StatusValidated}
	}

	var r StatusRecord
	if err = json.Unmarshal(data, &r); err != nil {
		return &StatusRecord{Status: StatusValidated}
	}
	if r.Status == "" {
		r.Status = StatusValidated
	}
	return &r
}

// WriteStatus rewrites the owned fields of the side-car document and
// preserves every other field verbatim (read-merge-write, never a blind
// overwrite). errorDetails may be nil; passing nil clears any stale
// details from a previous error.
func WriteStatus(recordingPath string, status Status, message string, errorDetails map[string]any) error {
	statusFile := filepath.Join(recordingPath, statusFileName)

	merged := map[string]json.RawMessage{}
	if data, err := os.ReadFile(statusFile); err == nil {
		// A corrupt document is replaced rather than propagated.
		_ = json.Unmarshal(data, &merged)
	}

	setField := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		merged[key] = raw
		return nil
	}

	if err := setField("status", status); err != nil {
		return fmt.Errorf("recording.WriteStatus: %w", err)
	}
	if err := setField("message", message); err != nil {
		return fmt.Errorf("recording.WriteStatus: %w", err)
	}
	if err := setField("timestamp", time.Now()); err != nil {
		return fmt.Errorf("recording.WriteStatus: %w", err)
	}
	delete(merged, "error_details")
	if errorDetails != nil {
		if err := setField("error_details", errorDetails); err != nil {
			return fmt.Errorf("recording.WriteStatus: %w", err)
		}
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("recording.WriteStatus: %w", err)
	}
	if err = os.WriteFile(statusFile, data, 0o666); err != nil {
		return fmt.Errorf("recording.WriteStatus: %w", err)
	}
	return nil
}

// WriteVideoFields records where a recording's offloaded video lives,
// leaving the processing state fields untouched. Same read-merge-write
// contract as WriteStatus.
func WriteVideoFields(recordingPath, videoS3Key, cameraFolder string) error {
	statusFile := filepath.Join(recordingPath, statusFileName)

	merged := map[string]json.RawMessage{}
	if data, err := os.ReadFile(statusFile); err == nil {
		_ = json.Unmarshal(data, &merged)
	}

	key, err := json.Marshal(videoS3Key)
	if err != nil {
		return fmt.Errorf("recording.WriteVideoFields: %w", err)
	}
	merged["video_s3_key"] = key
	folder, err := json.Marshal(cameraFolder)
	if err != nil {
		return fmt.Errorf("recording.WriteVideoFields: %w", err)
	}
	merged["camera_folder"] = folder

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("recording.WriteVideoFields: %w", err)
	}
	if err = os.WriteFile(statusFile, data, 0o666); err != nil {
		return fmt.Errorf("recording.WriteVideoFields: %w", err)
	}
	return nil
}
