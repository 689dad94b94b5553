package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/antosomzi/traffic-sign-app/internal/recording"
)

var (
	ErrNotFound = errors.New("recording not found")

	// ErrProcessing means the recording already has a run in flight.
	// Only one state transition may be in flight per recording.
	ErrProcessing = errors.New("recording is currently processing")
)

// resultDirName is where a pipeline run leaves its artifacts inside a
// recording directory.
const resultDirName = "result_pipeline_stable"

// Coordinator owns the per-recording processing state transition.
// Its side effects are confined to the status record and the queue; it
// never executes the pipeline itself.
type Coordinator struct {
	Broker     Broker           // required
	Recordings *recording.Store // required
}

// CanStart reports whether a processing run may be started for the
// recording. It is false only while a run is already in flight.
func (c *Coordinator) CanStart(recordingID string) bool {
	status := recording.ReadStatus(c.Recordings.Path(recordingID))
	return status.Status != recording.StatusProcessing
}

// Enqueue queues a processing task for a validated recording.
func (c *Coordinator) Enqueue(ctx context.Context, recordingID string) error {
	if !c.Recordings.Exists(recordingID) {
		return fmt.Errorf("task.Coordinator: %w", ErrNotFound)
	}
	if !c.CanStart(recordingID) {
		return fmt.Errorf("task.Coordinator: %w", ErrProcessing)
	}

	err := c.Broker.SendRunTask(ctx, &RunTask{RecordingID: recordingID})
	if err != nil {
		return fmt.Errorf("task.Coordinator: %w", err)
	}
	return nil
}

// RerunParams configure a re-queue of an existing recording.
type RerunParams struct {
	RecordingID string

	// DiscardResults removes the previous run's artifacts before queuing.
	DiscardResults bool
}

// Rerun resets a non-processing recording to validated and queues it
// again. If the publish fails, the previous status is restored so pollers
// stay accurate.
func (c *Coordinator) Rerun(ctx context.Context, params *RerunParams) error {
	path := c.Recordings.Path(params.RecordingID)
	if !c.Recordings.Exists(params.RecordingID) {
		return fmt.Errorf("task.Coordinator: %w", ErrNotFound)
	}

	previous := recording.ReadStatus(path)
	if previous.Status == recording.StatusProcessing {
		return fmt.Errorf("task.Coordinator: %w", ErrProcessing)
	}

	if params.DiscardResults {
		if err := os.RemoveAll(filepath.Join(path, resultDirName)); err != nil {
			return fmt.Errorf("task.Coordinator: %w", err)
		}
	}

	err := recording.WriteStatus(path, recording.StatusValidated, "Recording re-queued for processing.", nil)
	if err != nil {
		return fmt.Errorf("task.Coordinator: %w", err)
	}

	err = c.Broker.SendRunTask(ctx, &RunTask{RecordingID: params.RecordingID})
	if err != nil {
		_ = recording.WriteStatus(path, previous.Status, previous.Message, previous.ErrorDetails)
		return fmt.Errorf("task.Coordinator: %w", err)
	}
	return nil
}
