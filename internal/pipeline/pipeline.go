// Package pipeline executes the ML pipeline for a recording, either on
// the worker host or on the shared GPU instance, and owns the status
// record through the run: processing while it works, completed or error
// with a user-facing message when it finishes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/antosomzi/traffic-sign-app/internal/recording"
	"github.com/antosomzi/traffic-sign-app/internal/video"
)

var (
	ErrNotFound = errors.New("recording not found")

	// ErrExplained marks a failure whose user-facing explanation has
	// already been written to the status record. Callers further out
	// must not overwrite it with a generic message.
	ErrExplained = errors.New("failure already explained in status record")
)

// noSignsMessage is what users see when a run produces no result file.
// The usual cause is a recording without recognizable signs, not an
// infrastructure fault, so the technical cause stays out of it.
const noSignsMessage = "No traffic signs detected in this recording. " +
	"The video may not contain any recognizable traffic signs or the recording quality may be insufficient."

// ArtifactPath is where a finished run leaves its export inside a
// recording directory.
func ArtifactPath(recordingPath string) string {
	return filepath.Join(recordingPath, "result_pipeline_stable", "s7_export_csv", "supports.csv")
}

// Runner runs the pipeline for one recording.
type Runner interface {
	Run(ctx context.Context, recordingID string) error
}

// Dispatcher processes queued run tasks: it restores the recording's
// offloaded video, hands off to the configured runner, and turns
// unexplained failures into a generic error status.
type Dispatcher struct {
	Recordings *recording.Store // required
	Runner     Runner           // required
	Videos     *video.Mirror    // optional, S3 video mirroring off when nil
}

func (d *Dispatcher) Process(ctx context.Context, recordingID string) error {
	if !d.Recordings.Exists(recordingID) {
		return fmt.Errorf("pipeline.Dispatcher: %w", ErrNotFound)
	}
	recordingPath := d.Recordings.Path(recordingID)

	localVideo := ""
	if d.Videos != nil {
		v, err := d.Videos.Fetch(ctx, recordingPath)
		if err != nil {
			// The video may already be on shared storage.
			slog.Warn("couldn't fetch offloaded video", "recording_id", recordingID, "err", err)
		} else {
			localVideo = v
		}
		defer func() { d.Videos.Cleanup(localVideo) }()
	}

	err := d.Runner.Run(ctx, recordingID)
	if err != nil {
		if errors.Is(err, ErrExplained) {
			return fmt.Errorf("pipeline.Dispatcher: %w", err)
		}
		writeErr := recording.WriteStatus(recordingPath, recording.StatusError, fmt.Sprintf("Unexpected error: %v", err), nil)
		if writeErr != nil {
			slog.Error("couldn't write error status", "recording_id", recordingID, "err", writeErr)
		}
		return fmt.Errorf("pipeline.Dispatcher: %w", err)
	}
	return nil
}

// waitForFile polls for the path until it appears, the wait ceiling
// passes, or the context is canceled.
func waitForFile(ctx context.Context, path string, interval, max time.Duration) bool {
	deadline := time.Now().Add(max)
	for {
		if _, err := os.Stat(path); err == nil {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		t := time.NewTimer(interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return false
		}
		t.Stop()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
