package server

import (
	"context"
	"sync"

	"github.com/antosomzi/traffic-sign-app/internal/extract"
	"github.com/antosomzi/traffic-sign-app/internal/progress"
)

var _ extract.ProgressStore = (*stubProgressStore)(nil)

type stubProgressStore struct {
	mu      sync.Mutex
	records map[string]progress.Record
}

func newStubProgressStore() *stubProgressStore {
	return &stubProgressStore{records: map[string]progress.Record{}}
}

func (s *stubProgressStore) Get(_ context.Context, jobID string) (*progress.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *stubProgressStore) Set(_ context.Context, jobID string, r *progress.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[jobID] = *r
	return nil
}

func (s *stubProgressStore) Update(_ context.Context, jobID string, fn func(*progress.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobID]
	if !ok {
		return nil
	}
	fn(&r)
	s.records[jobID] = r
	return nil
}
