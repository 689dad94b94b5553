package pipeline

import (
	"context"
)

var _ Runner = (*StubRunner)(nil)

type StubRunner struct {
	Err error

	ran []string
}

func (r *StubRunner) Run(_ context.Context, recordingID string) error {
	r.ran = append(r.ran, recordingID)
	return r.Err
}
