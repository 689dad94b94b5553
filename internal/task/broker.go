// Package task decouples "archive accepted" from "pipeline runs": the
// coordinator queues processing tasks and guards the per-recording state
// transition, while workers consume the queue and dispatch to a runner.
package task

import (
	"context"
)

// QueueName is the queue processing tasks travel on.
const QueueName = "pipeline.run"

// RunTask asks a worker to run the pipeline for one recording.
type RunTask struct {
	RecordingID string `json:"recording_id"`
}

// Broker carries run tasks from the coordinator to the workers.
type Broker interface {
	SendRunTask(ctx context.Context, t *RunTask) error
}
