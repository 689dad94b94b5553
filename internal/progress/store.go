package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "extraction:"

// Store keeps extraction job records in Redis with a fixed TTL.
type Store struct {
	Redis *redis.Client // required

	// TTL is applied on every Set. Zero means DefaultTTL.
	TTL time.Duration
}

func (s *Store) ttl() time.Duration {
	if s.TTL == 0 {
		return DefaultTTL
	}
	return s.TTL
}

// Get returns the record for jobID, or nil if it is absent or expired.
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	data, err := s.Redis.Get(ctx, keyPrefix+jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("progress.Store: %w", err)
	}

	var r Record
	if err = json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("progress.Store: %w", err)
	}
	return &r, nil
}

// Set writes the record for jobID and refreshes its TTL.
func (s *Store) Set(ctx context.Context, jobID string, r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("progress.Store: %w", err)
	}

	err = s.Redis.Set(ctx, keyPrefix+jobID, data, s.ttl()).Err()
	if err != nil {
		return fmt.Errorf("progress.Store: %w", err)
	}
	return nil
}

// Update applies fn to the current record and writes it back.
// It is a no-op if the record is absent (expired or never created).
// Concurrent updates are not serialized; the single extraction goroutine
// is the only writer after upload time.
func (s *Store) Update(ctx context.Context, jobID string, fn func(*Record)) error {
	r, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	fn(r)
	return s.Set(ctx, jobID, r)
}
