package video

import (
	"context"
)

// StubUploader implements Uploader.
type StubUploader struct {
	Key       string // returned by Upload
	UploadErr error
	ExistsOK  bool
	ExistsErr error

	uploads []string // local paths passed to Upload
	checked []string // keys passed to Exists
}

var _ Uploader = (*StubUploader)(nil)

func (u *StubUploader) Upload(_ context.Context, localPath, _ string) (string, error) {
	if u.UploadErr != nil {
		return "", u.UploadErr
	}
	u.uploads = append(u.uploads, localPath)
	return u.Key, nil
}

func (u *StubUploader) Exists(_ context.Context, key string) (bool, error) {
	if u.ExistsErr != nil {
		return false, u.ExistsErr
	}
	u.checked = append(u.checked, key)
	return u.ExistsOK, nil
}
