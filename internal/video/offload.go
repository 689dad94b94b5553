package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/antosomzi/traffic-sign-app/internal/recording"
)

// ErrNoVideo means the recording's camera folder holds no video file.
var ErrNoVideo = errors.New("no video file to offload")

// Uploader is the S3 side of the offload direction.
type Uploader interface {
	Upload(ctx context.Context, localPath, recordingID string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
}

var _ Uploader = (*Mirror)(nil)

// Offloader moves recording videos off shared storage into S3 and
// records the key and camera folder in the status side-car, closing the
// loop Mirror.Fetch consumes before a pipeline run.
type Offloader struct {
	Recordings *recording.Store // required
	Videos     Uploader         // required

	// KeepLocal leaves the local copy in place after a successful upload.
	KeepLocal bool
}

// Offload uploads the recording's video and returns its S3 key.
// A recording whose side-car already names a live S3 object is skipped;
// a stale key (object gone from the bucket) is re-uploaded.
func (o *Offloader) Offload(ctx context.Context, recordingID string) (string, error) {
	if !o.Recordings.Exists(recordingID) {
		return "", fmt.Errorf("video.Offloader: %w", recording.ErrNotFound)
	}
	recordingPath := o.Recordings.Path(recordingID)

	status := recording.ReadStatus(recordingPath)
	if status.VideoS3Key != "" {
		ok, err := o.Videos.Exists(ctx, status.VideoS3Key)
		if err != nil {
			return "", fmt.Errorf("video.Offloader: %w", err)
		}
		if ok {
			return status.VideoS3Key, nil
		}
	}

	dir := findCameraFolder(recordingPath)
	if dir == "" {
		return "", fmt.Errorf("video.Offloader: %w", ErrNoCameraFolder)
	}
	localPath := findVideoFile(dir)
	if localPath == "" {
		return "", fmt.Errorf("video.Offloader: %w", ErrNoVideo)
	}

	key, err := o.Videos.Upload(ctx, localPath, recordingID)
	if err != nil {
		return "", fmt.Errorf("video.Offloader: %w", err)
	}

	// The side-car stores the camera folder relative to the recording so
	// Fetch can restore the video after the recording moves hosts.
	rel, err := filepath.Rel(recordingPath, dir)
	if err != nil {
		rel = ""
	}
	if err = recording.WriteVideoFields(recordingPath, key, rel); err != nil {
		return "", err
	}

	if !o.KeepLocal {
		if err = os.Remove(localPath); err != nil {
			return "", fmt.Errorf("video.Offloader: %w", err)
		}
	}

	return key, nil
}

func findVideoFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".mp4", ".avi", ".mov":
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}
