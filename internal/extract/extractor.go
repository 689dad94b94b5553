// Package extract turns uploaded recording archives into validated
// recordings: staged extraction into scratch space, structural validation,
// and atomic promotion into the permanent store.
package extract

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/antosomzi/traffic-sign-app/internal/progress"
	"github.com/antosomzi/traffic-sign-app/internal/recording"
)

var (
	ErrBadArchive         = errors.New("not a valid zip archive")
	ErrNotSingleRoot      = errors.New("archive does not contain exactly one root folder")
	ErrUnsafePath         = errors.New("unsafe file path in archive")
	ErrInvalidStructure   = errors.New("invalid archive structure")
	ErrDuplicateRecording = errors.New("recording already exists")
)

// ProgressStore is the subset of the progress store the extractor mirrors
// its state transitions into.
type ProgressStore interface {
	Get(ctx context.Context, jobID string) (*progress.Record, error)
	Set(ctx context.Context, jobID string, r *progress.Record) error
	Update(ctx context.Context, jobID string, fn func(*progress.Record)) error
}

// Extractor is the archive intake engine.
//
// Every failure category (bad archive, multi-root, unsafe path, validation,
// duplicate id) terminates only the one job: the error record is written to
// the progress store, the uploaded archive and scratch directory are
// removed, and the worker keeps running.
type Extractor struct {
	Progress   ProgressStore    // required
	Validator  *Validator       // required
	Recordings *recording.Store // required

	// ScratchRoot holds job-scoped extraction directories until promotion.
	ScratchRoot string // required

	// UpdateEvery batches progress writes during extraction.
	// Zero means every 10 files. The final entry is always written.
	UpdateEvery int
}

func (e *Extractor) updateEvery() int {
	if e.UpdateEvery <= 0 {
		return 10
	}
	return e.UpdateEvery
}

// Extract runs the full intake for one uploaded archive and returns the
// resolved recording id on success.
func (e *Extractor) Extract(ctx context.Context, jobID, archivePath string) (string, error) {
	scratch := filepath.Join(e.ScratchRoot, jobID)

	done := false
	defer func() {
		// No partial artifacts survive a failed job.
		if !done {
			_ = os.Remove(archivePath)
			_ = os.RemoveAll(scratch)
		}
	}()

	rec, err := e.Progress.Get(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("extract.Extractor: %w", err)
	}
	if rec == nil {
		// The record expired before extraction started; nothing to report to.
		return "", fmt.Errorf("extract.Extractor: job %s not found", jobID)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", e.fail(ctx, jobID, "Uploaded file is not a valid ZIP archive.", nil, ErrBadArchive)
	}
	defer zr.Close()

	var members []*zip.File
	for _, f := range zr.File {
		if !IsJunkEntry(f.Name) {
			members = append(members, f)
		}
	}

	totalFiles := len(members)
	err = e.Progress.Update(ctx, jobID, func(r *progress.Record) {
		r.Phase = progress.PhaseRunning
		r.TotalFiles = totalFiles
		r.ExtractedFiles = 0
	})
	if err != nil {
		return "", fmt.Errorf("extract.Extractor: %w", err)
	}

	root, err := singleRoot(members)
	if err != nil {
		details := map[string]any{"zip_structure": err.Error()}
		return "", e.fail(ctx, jobID, "Archive must contain exactly one root folder.", details, ErrNotSingleRoot)
	}

	if err = os.MkdirAll(scratch, 0o777); err != nil {
		return "", e.fail(ctx, jobID, "Error during extraction: "+err.Error(), nil, err)
	}

	extracted := 0
	for _, member := range members {
		dest := filepath.Join(scratch, member.Name)
		// Zip-slip guard: the resolved destination must stay inside the
		// job's scratch directory. Checked before anything is written.
		if dest != scratch && !strings.HasPrefix(dest, scratch+string(os.PathSeparator)) {
			return "", e.fail(ctx, jobID, "Unsafe file path detected in archive.", nil, ErrUnsafePath)
		}

		if err = extractMember(member, dest); err != nil {
			return "", e.fail(ctx, jobID, "Error during extraction: "+err.Error(), nil, err)
		}

		extracted++
		if extracted%e.updateEvery() == 0 || extracted == totalFiles {
			n := extracted
			err = e.Progress.Update(ctx, jobID, func(r *progress.Record) {
				r.ExtractedFiles = n
			})
			if err != nil {
				return "", fmt.Errorf("extract.Extractor: %w", err)
			}
		}
	}

	// Archives built by naive zip tools wrap their contents in a
	// duplicate same-named directory; flatten one level with a
	// rename-swap so validation sees the device folder at the top.
	inner := filepath.Join(scratch, root)
	if info, statErr := os.Stat(inner); statErr == nil && info.IsDir() {
		flat := scratch + "__flat"
		if err = os.Rename(inner, flat); err != nil {
			return "", e.fail(ctx, jobID, "Error during extraction: "+err.Error(), nil, err)
		}
		if err = os.RemoveAll(scratch); err != nil {
			return "", e.fail(ctx, jobID, "Error during extraction: "+err.Error(), nil, err)
		}
		if err = os.Rename(flat, scratch); err != nil {
			return "", e.fail(ctx, jobID, "Error during extraction: "+err.Error(), nil, err)
		}
	}

	// The zip library itself can synthesize junk files that the entry
	// filter never saw.
	CleanJunkFiles(scratch)

	ok, validationErrors := e.Validator.ValidateStructure(scratch, root)
	if !ok {
		return "", e.fail(ctx, jobID, "Invalid archive structure.", validationErrors, ErrInvalidStructure)
	}

	// Promotion is existence-check-then-move. A concurrent upload of the
	// same archive can race here; the loser gets a duplicate error.
	if e.Recordings.Exists(root) {
		msg := fmt.Sprintf("Recording with ID '%s' already exists.", root)
		return "", e.fail(ctx, jobID, msg, nil, ErrDuplicateRecording)
	}
	finalPath := e.Recordings.Path(root)
	if err = os.MkdirAll(filepath.Dir(finalPath), 0o777); err != nil {
		return "", e.fail(ctx, jobID, "Error during extraction: "+err.Error(), nil, err)
	}
	if err = os.Rename(scratch, finalPath); err != nil {
		return "", e.fail(ctx, jobID, "Error during extraction: "+err.Error(), nil, err)
	}

	err = recording.WriteStatus(finalPath, recording.StatusValidated, "Upload and validation successful, awaiting processing.", nil)
	if err != nil {
		return "", e.fail(ctx, jobID, "Error during extraction: "+err.Error(), nil, err)
	}

	size := e.Recordings.Size(root)
	err = e.Progress.Update(ctx, jobID, func(r *progress.Record) {
		r.Phase = progress.PhaseDone
		r.ExtractedFiles = totalFiles
		r.ExtractSize = size
		r.RecordingID = root
	})
	if err != nil {
		return "", fmt.Errorf("extract.Extractor: %w", err)
	}

	done = true
	_ = os.Remove(archivePath)
	return root, nil
}

// fail mirrors an error into the progress store and wraps the cause.
func (e *Extractor) fail(ctx context.Context, jobID, message string, details map[string]any, cause error) error {
	_ = e.Progress.Update(ctx, jobID, func(r *progress.Record) {
		r.Phase = progress.PhaseError
		r.ErrorMessage = message
		r.ErrorDetails = details
	})
	return fmt.Errorf("extract.Extractor: %w", cause)
}

// singleRoot returns the archive's one top-level path segment, or an error
// naming every root found.
func singleRoot(members []*zip.File) (string, error) {
	roots := map[string]struct{}{}
	for _, m := range members {
		name := strings.Trim(m.Name, "/")
		if name == "" {
			continue
		}
		top, _, _ := strings.Cut(name, "/")
		roots[top] = struct{}{}
	}

	if len(roots) == 1 {
		for root := range roots {
			return root, nil
		}
	}

	names := make([]string, 0, len(roots))
	for root := range roots {
		names = append(names, root)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "", errors.New("archive is empty")
	}
	return "", fmt.Errorf("multiple root folders: %s", strings.Join(names, ", "))
}

func extractMember(member *zip.File, dest string) error {
	if member.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o777)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o777); err != nil {
		return err
	}

	src, err := member.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
