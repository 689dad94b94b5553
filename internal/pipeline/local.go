package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/antosomzi/traffic-sign-app/internal/recording"
)

// LocalRunner runs the pipeline script on the worker host itself.
type LocalRunner struct {
	Recordings *recording.Store // required
	Script     string           // required, pipeline entrypoint

	// The script hands the recording to a pipeline that writes its
	// export asynchronously, so the artifact may trail the exit.
	ArtifactPollInterval time.Duration
	ArtifactWaitMax      time.Duration
}

var _ Runner = (*LocalRunner)(nil)

func (r *LocalRunner) Run(ctx context.Context, recordingID string) error {
	recordingPath := r.Recordings.Path(recordingID)

	err := recording.WriteStatus(recordingPath, recording.StatusProcessing, "ML pipeline in progress (local)...", nil)
	if err != nil {
		return fmt.Errorf("pipeline.LocalRunner: %w", err)
	}

	cmd := exec.CommandContext(ctx, "bash", r.Script, recordingPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("pipeline.LocalRunner: %w", err)
		}

		details := map[string]any{
			"exit_code": exitErr.ExitCode(),
			"output":    head(string(output), 2000),
		}
		writeErr := recording.WriteStatus(recordingPath, recording.StatusError, fmt.Sprintf("Pipeline execution error: %v", err), details)
		if writeErr != nil {
			return fmt.Errorf("pipeline.LocalRunner: %w", writeErr)
		}
		return fmt.Errorf("pipeline.LocalRunner: %w: %v", ErrExplained, err)
	}

	interval := r.ArtifactPollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	max := r.ArtifactWaitMax
	if max <= 0 {
		max = time.Hour
	}

	artifact := ArtifactPath(recordingPath)
	if !waitForFile(ctx, artifact, interval, max) {
		writeErr := recording.WriteStatus(recordingPath, recording.StatusError, noSignsMessage, nil)
		if writeErr != nil {
			return fmt.Errorf("pipeline.LocalRunner: %w", writeErr)
		}
		return fmt.Errorf("pipeline.LocalRunner: %w: expected output file not found: %s", ErrExplained, artifact)
	}

	err = recording.WriteStatus(recordingPath, recording.StatusCompleted, "Processing completed successfully.", nil)
	if err != nil {
		return fmt.Errorf("pipeline.LocalRunner: %w", err)
	}
	return nil
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
