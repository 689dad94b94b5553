package recording

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store locates recordings under a single root directory on shared storage.
type Store struct {
	Root string // required
}

// Path returns the directory a recording with the given id lives in.
func (s *Store) Path(recordingID string) string {
	return filepath.Join(s.Root, recordingID)
}

// Exists reports whether a recording with the given id has been promoted.
func (s *Store) Exists(recordingID string) bool {
	info, err := os.Stat(s.Path(recordingID))
	return err == nil && info.IsDir()
}

// Size walks the recording directory and sums regular file sizes.
// Unreadable entries are skipped rather than failing the walk.
func (s *Store) Size(recordingID string) int64 {
	var total int64
	_ = filepath.Walk(s.Path(recordingID), func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// ListEntry pairs a recording id with its current status document.
type ListEntry struct {
	RecordingID string        `json:"recording_id"`
	Status      *StatusRecord `json:"status"`
}

// List returns every recording under the root with its status record.
func (s *Store) List() ([]*ListEntry, error) {
	dirEntries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("recording.Store: %w", err)
	}

	entries := make([]*ListEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		if !e.IsDir() {
			continue
		}
		entries = append(entries, &ListEntry{
			RecordingID: e.Name(),
			Status:      ReadStatus(s.Path(e.Name())),
		})
	}
	return entries, nil
}
