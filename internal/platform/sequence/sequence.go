// Package sequence issues the monotonic counters behind human-facing
// document numbers (job numbers, sample numbers, NCR numbers). Numbers are
// lab-visible and auditable, so they come from a shared counter rather than
// time-based tricks.
package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Sequence returns the next value for a named counter, starting at 1.
type Sequence interface {
	Next(ctx context.Context, name string) (int64, error)
}

// RedisSequence backs counters with Redis INCR so multiple instances hand
// out non-colliding numbers.
type RedisSequence struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client) *RedisSequence {
	return &RedisSequence{client: client, prefix: "limsd:seq:"}
}

func (s *RedisSequence) Next(ctx context.Context, name string) (int64, error) {
	n, err := s.client.Incr(ctx, s.prefix+name).Result()
	if err != nil {
		return 0, fmt.Errorf("sequence %s: %w", name, err)
	}
	return n, nil
}

// MemorySequence is the single-process fallback used in tests and when no
// Redis URL is configured.
type MemorySequence struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemory() *MemorySequence {
	return &MemorySequence{counters: make(map[string]int64)}
}

func (s *MemorySequence) Next(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name]++
	return s.counters[name], nil
}

// Document number formats. Year is part of the counter name so numbering
// restarts each year, matching lab convention.

func JobNumber(year int, n int64) string {
	return fmt.Sprintf("J-%d-%04d", year, n)
}

func SampleNumber(jobNumber string, index int) string {
	return fmt.Sprintf("%s-%02d", jobNumber, index)
}

func NCRNumber(year int, n int64) string {
	return fmt.Sprintf("NCR-%d-%04d", year, n)
}
