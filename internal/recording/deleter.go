package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound = errors.New("recording not found")

	// ErrDeletionBlocked is returned while a recording is processing or
	// queued for processing; deleting it out from under a worker would
	// leave the pipeline writing into a removed tree.
	ErrDeletionBlocked = errors.New("recording cannot be deleted in its current state")
)

// Deleter removes recordings and their leftover uploaded archives.
// Recordings are deleted entirely or not at all.
type Deleter struct {
	Recordings *Store // required

	// UploadDir is scanned for stale uploaded archives that name the
	// recording; removal failures there are not fatal.
	UploadDir string
}

func (d *Deleter) Delete(recordingID string) error {
	path := d.Recordings.Path(recordingID)
	if !d.Recordings.Exists(recordingID) {
		return fmt.Errorf("recording.Deleter: %w", ErrNotFound)
	}

	status := ReadStatus(path)
	if status.Status == StatusProcessing || status.Status == StatusValidated {
		return fmt.Errorf("recording.Deleter: %s: %w", status.Status, ErrDeletionBlocked)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("recording.Deleter: %w", err)
	}

	if d.UploadDir != "" {
		entries, err := os.ReadDir(d.UploadDir)
		if err == nil {
			for _, e := range entries {
				if strings.Contains(e.Name(), recordingID) {
					_ = os.Remove(filepath.Join(d.UploadDir, e.Name()))
				}
			}
		}
	}

	return nil
}
