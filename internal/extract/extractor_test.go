package extract

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/antosomzi/traffic-sign-app/internal/progress"
	"github.com/antosomzi/traffic-sign-app/internal/recording"
)

func writeArchive(t *testing.T, dir string, entries map[string]string) string {
	t.Helper()

	archivePath := filepath.Join(dir, "upload.zip")
	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err = w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err = zw.Close(); err != nil {
		t.Fatal(err)
	}
	return archivePath
}

func newTestExtractor(t *testing.T) (*Extractor, *stubProgressStore) {
	t.Helper()

	store := newStubProgressStore()
	e := &Extractor{
		Progress:    store,
		Validator:   &Validator{},
		Recordings:  &recording.Store{Root: t.TempDir()},
		ScratchRoot: t.TempDir(),
		UpdateEvery: 1,
	}
	return e, store
}

func startJob(t *testing.T, store *stubProgressStore, jobID string) {
	t.Helper()
	err := store.Set(context.Background(), jobID, &progress.Record{Phase: progress.PhaseExtracting})
	if err != nil {
		t.Fatal(err)
	}
}

func TestExtractWellFormedArchive(t *testing.T) {
	e, store := newTestExtractor(t)
	startJob(t, store, "job1")

	archive := writeArchive(t, t.TempDir(), map[string]string{
		"rec_2025/123/860000123456789/camera/rec_2025_cam.mp4":   "video bytes",
		"rec_2025/123/860000123456789/location/rec_2025_loc.csv": "lat,lon\n",
	})

	recordingID, err := e.Extract(context.Background(), "job1", archive)
	if err != nil {
		t.Fatal(err)
	}
	if recordingID != "rec_2025" {
		t.Errorf("got recording id %q, want rec_2025", recordingID)
	}

	got := store.last("job1")
	if got.Phase != progress.PhaseDone {
		t.Errorf("got phase %q, want done", got.Phase)
	}
	if got.RecordingID != "rec_2025" {
		t.Errorf("got progress recording id %q, want rec_2025", got.RecordingID)
	}
	if got.ExtractSize <= 0 {
		t.Errorf("got extract size %d, want > 0", got.ExtractSize)
	}
	if got.ExtractedFiles != got.TotalFiles {
		t.Errorf("got %d extracted of %d total at done", got.ExtractedFiles, got.TotalFiles)
	}

	status := recording.ReadStatus(e.Recordings.Path("rec_2025"))
	if status.Status != recording.StatusValidated {
		t.Errorf("got status %q, want validated", status.Status)
	}
	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Error("uploaded archive should be removed after a successful intake")
	}
}

func TestExtractMultiRootArchive(t *testing.T) {
	e, store := newTestExtractor(t)
	startJob(t, store, "job1")

	archive := writeArchive(t, t.TempDir(), map[string]string{
		"rec_a/123/860/camera/a.mp4": "a",
		"rec_b/123/860/camera/b.mp4": "b",
	})

	_, err := e.Extract(context.Background(), "job1", archive)
	if !errors.Is(err, ErrNotSingleRoot) {
		t.Fatalf("got %v, want ErrNotSingleRoot", err)
	}

	got := store.last("job1")
	if got.Phase != progress.PhaseError {
		t.Errorf("got phase %q, want error", got.Phase)
	}
	if got.ErrorDetails["zip_structure"] == nil {
		t.Error("want zip_structure detail naming the roots found")
	}

	for _, id := range []string{"rec_a", "rec_b"} {
		if e.Recordings.Exists(id) {
			t.Errorf("recording %s must not exist after a failed intake", id)
		}
	}
	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Error("uploaded archive should be removed after a failed intake")
	}
}

func TestExtractUnsafePath(t *testing.T) {
	e, store := newTestExtractor(t)
	startJob(t, store, "job1")

	escape := filepath.Join(e.ScratchRoot, "..", "escaped.txt")
	archive := writeArchive(t, t.TempDir(), map[string]string{
		"rec/../../../escaped.txt": "outside",
	})

	_, err := e.Extract(context.Background(), "job1", archive)
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("got %v, want ErrUnsafePath", err)
	}
	if _, err := os.Stat(escape); !os.IsNotExist(err) {
		t.Error("an entry escaped the scratch sandbox")
	}
}

func TestExtractInvalidStructure(t *testing.T) {
	e, store := newTestExtractor(t)
	startJob(t, store, "job1")

	// camera folder present but empty of videos, location folder absent
	archive := writeArchive(t, t.TempDir(), map[string]string{
		"rec/123/860/camera/notes.txt": "no video here",
	})

	_, err := e.Extract(context.Background(), "job1", archive)
	if !errors.Is(err, ErrInvalidStructure) {
		t.Fatalf("got %v, want ErrInvalidStructure", err)
	}

	got := store.last("job1")
	if got.ErrorMessage != "Invalid archive structure." {
		t.Errorf("got error message %q", got.ErrorMessage)
	}
	if got.ErrorDetails["missing_folders"] == nil {
		t.Errorf("want missing_folders in error details, got %v", got.ErrorDetails)
	}
	if e.Recordings.Exists("rec") {
		t.Error("invalid recording must not be promoted")
	}
}

func TestExtractDuplicateRecording(t *testing.T) {
	e, store := newTestExtractor(t)
	startJob(t, store, "job1")

	if err := os.MkdirAll(e.Recordings.Path("rec"), 0o777); err != nil {
		t.Fatal(err)
	}

	archive := writeArchive(t, t.TempDir(), map[string]string{
		"rec/123/860/camera/a.mp4":   "a",
		"rec/123/860/location/a.csv": "a",
	})

	_, err := e.Extract(context.Background(), "job1", archive)
	if !errors.Is(err, ErrDuplicateRecording) {
		t.Fatalf("got %v, want ErrDuplicateRecording", err)
	}

	// The pre-existing recording is never overwritten.
	entries, err := os.ReadDir(e.Recordings.Path("rec"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("existing recording was modified: %v", entries)
	}
}

func TestExtractBadArchive(t *testing.T) {
	e, store := newTestExtractor(t)
	startJob(t, store, "job1")

	archive := filepath.Join(t.TempDir(), "broken.zip")
	if err := os.WriteFile(archive, []byte("this is not a zip"), 0o666); err != nil {
		t.Fatal(err)
	}

	_, err := e.Extract(context.Background(), "job1", archive)
	if !errors.Is(err, ErrBadArchive) {
		t.Fatalf("got %v, want ErrBadArchive", err)
	}
	if got := store.last("job1"); got.ErrorMessage != "Uploaded file is not a valid ZIP archive." {
		t.Errorf("got error message %q", got.ErrorMessage)
	}
}

func TestExtractFiltersJunkEntries(t *testing.T) {
	e, store := newTestExtractor(t)
	startJob(t, store, "job1")

	archive := writeArchive(t, t.TempDir(), map[string]string{
		"rec/123/860/camera/a.mp4":     "a",
		"rec/123/860/location/a.csv":   "a",
		"__MACOSX/rec/._a.mp4":         "junk",
		"rec/123/860/camera/.DS_Store": "junk",
		"rec/123/860/camera/._a.mp4":   "junk",
	})

	if _, err := e.Extract(context.Background(), "job1", archive); err != nil {
		t.Fatal(err)
	}

	if got, want := store.last("job1").TotalFiles, 2; got != want {
		t.Errorf("got %d total files, want %d junk-filtered", got, want)
	}
	cameraDir := filepath.Join(e.Recordings.Path("rec"), "123", "860", "camera")
	entries, err := os.ReadDir(cameraDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if entry.Name() == ".DS_Store" || entry.Name() == "._a.mp4" {
			t.Errorf("junk file %s reached the promoted recording", entry.Name())
		}
	}
}

func TestExtractProgressIsMonotonic(t *testing.T) {
	e, store := newTestExtractor(t)
	startJob(t, store, "job1")

	entries := map[string]string{}
	entries["rec/123/860/location/a.csv"] = "a"
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		entries["rec/123/860/camera/"+n+".mp4"] = n
	}
	archive := writeArchive(t, t.TempDir(), entries)

	if _, err := e.Extract(context.Background(), "job1", archive); err != nil {
		t.Fatal(err)
	}

	last := 0
	for _, r := range store.history {
		if r.ExtractedFiles < last {
			t.Fatalf("extracted_files decreased from %d to %d", last, r.ExtractedFiles)
		}
		last = r.ExtractedFiles
	}
}

func TestExtractCollapsesRootWrapper(t *testing.T) {
	e, store := newTestExtractor(t)
	startJob(t, store, "job1")

	archive := writeArchive(t, t.TempDir(), map[string]string{
		"rec/123/860/camera/a.mp4":   "a",
		"rec/123/860/location/a.csv": "a",
	})

	recordingID, err := e.Extract(context.Background(), "job1", archive)
	if err != nil {
		t.Fatal(err)
	}
	if recordingID != "rec" {
		t.Fatalf("got recording id %q, want rec", recordingID)
	}

	// The archive's own root wrapper is flattened away: the device folder
	// sits directly under the promoted recording, not under rec/rec.
	if _, err := os.Stat(filepath.Join(e.Recordings.Path("rec"), "123", "860", "camera", "a.mp4")); err != nil {
		t.Errorf("expected flattened layout: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.Recordings.Path("rec"), "rec")); !os.IsNotExist(err) {
		t.Error("promoted recording still wraps its contents in a duplicate root directory")
	}
}
