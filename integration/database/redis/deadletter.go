package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cfgdb/cfgdb/core/deadletter"
)

// keyPrefix namespaces dead-letter lists in a shared Redis instance.
const keyPrefix = "deadletter:"

// DeadLetterStore files fatally failed commands in Redis, one list per
// command kind, newest first. Records survive process restarts and are read
// back by operator tooling; nothing in the pipeline retries them.
type DeadLetterStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ deadletter.Store = (*DeadLetterStore)(nil)

// DeadLetterOption configures a DeadLetterStore.
type DeadLetterOption func(*DeadLetterStore)

// WithRecordTTL expires a kind's list the given duration after its most
// recent discard. Zero keeps records forever.
func WithRecordTTL(ttl time.Duration) DeadLetterOption {
	return func(s *DeadLetterStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewDeadLetterStore creates a store over an established Redis client.
func NewDeadLetterStore(client *redis.Client, opts ...DeadLetterOption) *DeadLetterStore {
	s := &DeadLetterStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func recordKey(kind string) string {
	return keyPrefix + kind
}

// Discard implements deadletter.Store.
func (s *DeadLetterStore) Discard(ctx context.Context, rec deadletter.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode dead-letter record: %w", err)
	}
	key := recordKey(rec.Kind())
	if err := s.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to store dead-letter record: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("failed to set dead-letter record TTL: %w", err)
		}
	}
	return nil
}

// Records returns up to n of the most recently discarded records for the
// given command kind.
func (s *DeadLetterStore) Records(ctx context.Context, kind string, n int64) ([]deadletter.Record, error) {
	raw, err := s.client.LRange(ctx, recordKey(kind), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead-letter records for %q: %w", kind, err)
	}

	records := make([]deadletter.Record, 0, len(raw))
	for _, item := range raw {
		var rec deadletter.Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode dead-letter record for %q: %w", kind, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Len returns the number of discarded records for the given command kind.
func (s *DeadLetterStore) Len(ctx context.Context, kind string) (int64, error) {
	n, err := s.client.LLen(ctx, recordKey(kind)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count dead-letter records for %q: %w", kind, err)
	}
	return n, nil
}
