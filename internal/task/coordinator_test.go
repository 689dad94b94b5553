package task

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/antosomzi/traffic-sign-app/internal/recording"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *StubBroker) {
	t.Helper()
	broker := &StubBroker{}
	c := &Coordinator{
		Broker:     broker,
		Recordings: &recording.Store{Root: t.TempDir()},
	}
	return c, broker
}

func makeRecording(t *testing.T, c *Coordinator, id string, status recording.Status) string {
	t.Helper()
	path := c.Recordings.Path(id)
	if err := os.MkdirAll(path, 0o777); err != nil {
		t.Fatal(err)
	}
	if err := recording.WriteStatus(path, status, "", nil); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEnqueueValidatedRecording(t *testing.T) {
	c, broker := newTestCoordinator(t)
	makeRecording(t, c, "rec", recording.StatusValidated)

	if err := c.Enqueue(context.Background(), "rec"); err != nil {
		t.Fatal(err)
	}
	if len(broker.Sent) != 1 || broker.Sent[0].RecordingID != "rec" {
		t.Errorf("got sent tasks %v, want one for rec", broker.Sent)
	}
}

func TestEnqueueRefusesProcessingRecording(t *testing.T) {
	c, broker := newTestCoordinator(t)
	makeRecording(t, c, "rec", recording.StatusProcessing)

	err := c.Enqueue(context.Background(), "rec")
	if !errors.Is(err, ErrProcessing) {
		t.Fatalf("got %v, want ErrProcessing", err)
	}
	if len(broker.Sent) != 0 {
		t.Errorf("no task should be sent, got %v", broker.Sent)
	}
}

func TestEnqueueUnknownRecording(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if err := c.Enqueue(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestCanStart(t *testing.T) {
	tests := []struct {
		status recording.Status
		want   bool
	}{
		{recording.StatusValidated, true},
		{recording.StatusCompleted, true},
		{recording.StatusError, true},
		{recording.StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			c, _ := newTestCoordinator(t)
			makeRecording(t, c, "rec", tt.status)
			if got := c.CanStart("rec"); got != tt.want {
				t.Errorf("CanStart with status %s = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestRerunResetsStatusAndQueues(t *testing.T) {
	c, broker := newTestCoordinator(t)
	path := makeRecording(t, c, "rec", recording.StatusError)

	err := c.Rerun(context.Background(), &RerunParams{RecordingID: "rec"})
	if err != nil {
		t.Fatal(err)
	}

	if got := recording.ReadStatus(path); got.Status != recording.StatusValidated {
		t.Errorf("got status %q, want validated", got.Status)
	}
	if len(broker.Sent) != 1 {
		t.Errorf("got %d sent tasks, want 1", len(broker.Sent))
	}
}

func TestRerunDiscardsResults(t *testing.T) {
	c, _ := newTestCoordinator(t)
	path := makeRecording(t, c, "rec", recording.StatusCompleted)
	resultDir := filepath.Join(path, resultDirName)
	if err := os.MkdirAll(filepath.Join(resultDir, "s7_export_csv"), 0o777); err != nil {
		t.Fatal(err)
	}

	err := c.Rerun(context.Background(), &RerunParams{RecordingID: "rec", DiscardResults: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(resultDir); !os.IsNotExist(err) {
		t.Error("previous result artifacts should be discarded")
	}
}

func TestRerunRefusesProcessing(t *testing.T) {
	c, _ := newTestCoordinator(t)
	makeRecording(t, c, "rec", recording.StatusProcessing)

	err := c.Rerun(context.Background(), &RerunParams{RecordingID: "rec"})
	if !errors.Is(err, ErrProcessing) {
		t.Errorf("got %v, want ErrProcessing", err)
	}
}

func TestRerunRestoresStatusWhenPublishFails(t *testing.T) {
	c, broker := newTestCoordinator(t)
	path := makeRecording(t, c, "rec", recording.StatusError)
	broker.SendErr = errBrokerDown

	err := c.Rerun(context.Background(), &RerunParams{RecordingID: "rec"})
	if !errors.Is(err, errBrokerDown) {
		t.Fatalf("got %v, want broker error", err)
	}
	if got := recording.ReadStatus(path); got.Status != recording.StatusError {
		t.Errorf("got status %q, want error restored", got.Status)
	}
}
