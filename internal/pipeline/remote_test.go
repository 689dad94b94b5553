package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/antosomzi/traffic-sign-app/internal/gpu"
	"github.com/antosomzi/traffic-sign-app/internal/recording"
)

var _ RemoteOrchestrator = (*stubOrchestrator)(nil)

type stubOrchestrator struct {
	result *gpu.Result
}

func (o *stubOrchestrator) Run(_ context.Context, _ string) *gpu.Result {
	return o.result
}

func newGPURunner(t *testing.T, result *gpu.Result) *GPURunner {
	t.Helper()
	return &GPURunner{
		Recordings:   &recording.Store{Root: t.TempDir()},
		Orchestrator: &stubOrchestrator{result: result},
		SettleDelay:  0,
	}
}

func writeArtifact(t *testing.T, recordingPath string) {
	t.Helper()
	artifact := ArtifactPath(recordingPath)
	if err := os.MkdirAll(filepath.Dir(artifact), 0o777); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(artifact, []byte("id,lat,lon\n"), 0o666); err != nil {
		t.Fatal(err)
	}
}

func TestGPURunSuccess(t *testing.T) {
	r := newGPURunner(t, &gpu.Result{
		OK:         true,
		InstanceID: "i-0123",
		Message:    "Pipeline execution completed successfully",
		Details:    map[string]any{},
	})
	path := addRecording(t, r.Recordings, "rec")
	writeArtifact(t, path)

	if err := r.Run(context.Background(), "rec"); err != nil {
		t.Fatal(err)
	}

	status := recording.ReadStatus(path)
	if status.Status != recording.StatusCompleted {
		t.Errorf("got status %q, want completed", status.Status)
	}
	if status.Message != "Pipeline completed on GPU instance i-0123" {
		t.Errorf("got message %q", status.Message)
	}
}

func TestGPURunFailureCarriesDetails(t *testing.T) {
	r := newGPURunner(t, &gpu.Result{
		InstanceID: "i-0123",
		Message:    "Pipeline failed (exit 2)",
		Details: map[string]any{
			"error_type": "pipeline_execution_failed",
			"exit_code":  2,
		},
	})
	path := addRecording(t, r.Recordings, "rec")

	err := r.Run(context.Background(), "rec")
	if !errors.Is(err, ErrExplained) {
		t.Fatalf("got %v, want ErrExplained", err)
	}

	status := recording.ReadStatus(path)
	if status.Status != recording.StatusError {
		t.Errorf("got status %q, want error", status.Status)
	}
	if status.Message != "GPU pipeline failed: Pipeline failed (exit 2)" {
		t.Errorf("got message %q", status.Message)
	}
	if status.ErrorDetails["exit_code"] != float64(2) {
		t.Errorf("got exit_code %v, want 2", status.ErrorDetails["exit_code"])
	}
	if status.ErrorDetails["error_type"] != "pipeline_execution_failed" {
		t.Errorf("got error_type %v", status.ErrorDetails["error_type"])
	}
}

func TestGPURunMissingArtifact(t *testing.T) {
	r := newGPURunner(t, &gpu.Result{
		OK:         true,
		InstanceID: "i-0123",
		Details:    map[string]any{},
	})
	path := addRecording(t, r.Recordings, "rec")

	err := r.Run(context.Background(), "rec")
	if !errors.Is(err, ErrExplained) {
		t.Fatalf("got %v, want ErrExplained", err)
	}
	if got := recording.ReadStatus(path); got.Message != noSignsMessage {
		t.Errorf("got message %q, want the no-signs explanation", got.Message)
	}
}
