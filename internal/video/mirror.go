// Package video mirrors recording videos between shared storage and S3.
// Videos are too large to keep on shared storage permanently, so the web
// layer offloads them to S3 after validation and the pipeline pulls a
// local copy back just for the duration of a run.
package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/antosomzi/traffic-sign-app/internal/recording"
)

// ErrNoCameraFolder means a recording references an offloaded video but
// has no camera folder to restore it into.
var ErrNoCameraFolder = errors.New("camera folder not found")

// ErrVideoMissing means the status record references an S3 key that no
// longer holds an object.
var ErrVideoMissing = errors.New("offloaded video missing from s3")

// Mirror moves a recording's video between S3 and its camera folder.
type Mirror struct {
	S3     *s3.Client // required
	Bucket string     // required
	Prefix string     // key prefix for uploaded videos, e.g. "videos/"
}

// Fetch restores the recording's offloaded video next to its other
// camera files and returns the local path. It returns "" without error
// when the status record references no offloaded video.
func (m *Mirror) Fetch(ctx context.Context, recordingPath string) (string, error) {
	status := recording.ReadStatus(recordingPath)
	if status.VideoS3Key == "" {
		return "", nil
	}

	dir := cameraFolder(recordingPath, status.CameraFolder)
	if dir == "" {
		return "", fmt.Errorf("video.Mirror: %w", ErrNoCameraFolder)
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return "", fmt.Errorf("video.Mirror: %w", err)
	}

	localPath := filepath.Join(dir, path.Base(status.VideoS3Key))
	f, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("video.Mirror: %w", err)
	}
	defer f.Close()

	if err = m.downloadContent(ctx, f, status.VideoS3Key); err != nil {
		_ = os.Remove(localPath)
		if apiErr := smithy.APIError(nil); errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return "", fmt.Errorf("video.Mirror: %w", ErrVideoMissing)
		}
		return "", fmt.Errorf("video.Mirror: %w", err)
	}

	return localPath, nil
}

// Cleanup removes a video fetched for a run. The video lives on in S3,
// so a failed removal is not worth failing the run over.
func (m *Mirror) Cleanup(localPath string) {
	if localPath == "" {
		return
	}
	_ = os.Remove(localPath)
}

// Upload offloads a local video to S3 and returns its key.
func (m *Mirror) Upload(ctx context.Context, localPath, recordingID string) (string, error) {
	key := m.Prefix + recordingID + "/" + filepath.Base(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("video.Mirror: %w", err)
	}
	defer f.Close()

	uploader := manager.NewUploader(m.S3, func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
	})
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &m.Bucket,
		Key:    &key,
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("video.Mirror: %w", err)
	}

	return key, nil
}

// Delete removes an offloaded video from S3.
func (m *Mirror) Delete(ctx context.Context, key string) error {
	_, err := m.S3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &m.Bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("video.Mirror: %w", err)
	}
	return nil
}

// Exists reports whether an offloaded video is present in S3.
func (m *Mirror) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.S3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &m.Bucket,
		Key:    &key,
	})
	if err != nil {
		if apiErr := smithy.APIError(nil); errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			return false, nil
		}
		return false, fmt.Errorf("video.Mirror: %w", err)
	}
	return true, nil
}

// cameraFolder resolves the directory the video belongs in. The status
// record usually carries the relative path; older records predate the
// field, so fall back to walking the recording for a camera directory.
func cameraFolder(recordingPath, relative string) string {
	if relative != "" {
		return filepath.Join(recordingPath, relative)
	}
	return findCameraFolder(recordingPath)
}

func findCameraFolder(recordingPath string) string {
	var found string
	_ = filepath.Walk(recordingPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if found == "" && info.IsDir() && filepath.Base(p) == "camera" {
			found = p
		}
		return nil
	})
	return found
}

// uploadPartSize should be greater than or equal 5MB.
// See github.com/aws/aws-sdk-go-v2/feature/s3/manager.
const uploadPartSize = 10 * 1024 * 1024 // 10MB

// downloadPartSize should be greater than or equal 5MB.
const downloadPartSize = 10 * 1024 * 1024 // 10MB

func (m *Mirror) downloadContent(ctx context.Context, w io.Writer, key string) error {
	downloader := manager.NewDownloader(m.S3, func(d *manager.Downloader) {
		d.PartSize = int64(downloadPartSize)
		d.Concurrency = 1
	})

	// fakeWriterAt needs manager.Downloader.Concurrency set to 1.
	_, err := downloader.Download(ctx, fakeWriterAt{w}, &s3.GetObjectInput{
		Bucket: &m.Bucket,
		Key:    &key,
	})
	if err != nil {
		return err
	}

	return nil
}

// fakeWriterAt wraps an io.Writer to provide a fake WriteAt method.
// This method simply calls w.Write ignoring the offset parameter.
// It can be used with github.com/aws/aws-sdk-go-v2/feature/s3/manager.Downloader.Download
// if its concurrency is set to 1 because this guarantees the sequential writes.
type fakeWriterAt struct {
	w io.Writer // required
}

func (writerAt fakeWriterAt) WriteAt(p []byte, _ int64) (n int, err error) {
	return writerAt.w.Write(p)
}
