package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/antosomzi/traffic-sign-app/internal/gpu"
	"github.com/antosomzi/traffic-sign-app/internal/recording"
)

// RemoteOrchestrator drives the shared GPU instance through one run.
type RemoteOrchestrator interface {
	Run(ctx context.Context, recordingID string) *gpu.Result
}

var _ RemoteOrchestrator = (*gpu.Orchestrator)(nil)

// GPURunner runs the pipeline on the shared GPU instance.
type GPURunner struct {
	Recordings   *recording.Store   // required
	Orchestrator RemoteOrchestrator // required

	// The GPU instance writes results through NFS; attribute caching
	// means they surface on the worker's mount with a delay.
	SettleDelay time.Duration
}

var _ Runner = (*GPURunner)(nil)

func (r *GPURunner) Run(ctx context.Context, recordingID string) error {
	recordingPath := r.Recordings.Path(recordingID)

	err := recording.WriteStatus(recordingPath, recording.StatusProcessing, "GPU instance is not ready yet, please wait...", nil)
	if err != nil {
		return fmt.Errorf("pipeline.GPURunner: %w", err)
	}

	result := r.Orchestrator.Run(ctx, recordingID)
	if !result.OK {
		writeErr := recording.WriteStatus(recordingPath, recording.StatusError, fmt.Sprintf("GPU pipeline failed: %s", result.Message), result.Details)
		if writeErr != nil {
			return fmt.Errorf("pipeline.GPURunner: %w", writeErr)
		}
		return fmt.Errorf("pipeline.GPURunner: %w: %s", ErrExplained, result.Message)
	}

	sleepCtx(ctx, r.SettleDelay)

	artifact := ArtifactPath(recordingPath)
	if !waitForFile(ctx, artifact, time.Second, 0) {
		writeErr := recording.WriteStatus(recordingPath, recording.StatusError, noSignsMessage, nil)
		if writeErr != nil {
			return fmt.Errorf("pipeline.GPURunner: %w", writeErr)
		}
		return fmt.Errorf("pipeline.GPURunner: %w: expected output file not found: %s", ErrExplained, artifact)
	}

	err = recording.WriteStatus(recordingPath, recording.StatusCompleted, fmt.Sprintf("Pipeline completed on GPU instance %s", result.InstanceID), nil)
	if err != nil {
		return fmt.Errorf("pipeline.GPURunner: %w", err)
	}
	return nil
}
