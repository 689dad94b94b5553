package extract

import (
	"context"

	"github.com/antosomzi/traffic-sign-app/internal/progress"
)

// stubProgressStore is an in-memory ProgressStore that records every write
// so tests can assert on the sequence of progress updates.
type stubProgressStore struct {
	records map[string]*progress.Record
	history []progress.Record
}

func newStubProgressStore() *stubProgressStore {
	return &stubProgressStore{records: map[string]*progress.Record{}}
}

func (s *stubProgressStore) Get(_ context.Context, jobID string) (*progress.Record, error) {
	r, ok := s.records[jobID]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (s *stubProgressStore) Set(_ context.Context, jobID string, r *progress.Record) error {
	copied := *r
	s.records[jobID] = &copied
	s.history = append(s.history, copied)
	return nil
}

func (s *stubProgressStore) Update(ctx context.Context, jobID string, fn func(*progress.Record)) error {
	r, ok := s.records[jobID]
	if !ok {
		return nil
	}
	fn(r)
	s.history = append(s.history, *r)
	return nil
}

func (s *stubProgressStore) last(jobID string) *progress.Record {
	return s.records[jobID]
}
