// internal/idempotency/store.go

// Package idempotency records which lifecycle events have already been notified, so
// replays and concurrent handlers of the same write dispatch at most once.
package idempotency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idem"

// Key identifies one logical event on one document.
type Key struct {
	Collection string
	DocumentID string
	EventType  string
	Identity   string
}

func (k Key) String() string {
	return strings.Join([]string{keyPrefix, k.Collection, k.DocumentID, k.EventType, k.Identity}, ":")
}

// Store is backed by Redis SETNX; the first Claim of a key wins.
type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Seen reports whether the key has been claimed.
func (s *Store) Seen(ctx context.Context, key Key) (bool, error) {
	n, err := s.rdb.Exists(ctx, key.String()).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Claim atomically marks the key. It returns false if another caller claimed it first.
func (s *Store) Claim(ctx context.Context, key Key) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key.String(), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency claim %s: %w", key, err)
	}
	return ok, nil
}

// Release drops a claim so a retried job can dispatch again.
func (s *Store) Release(ctx context.Context, key Key) error {
	if err := s.rdb.Del(ctx, key.String()).Err(); err != nil {
		return fmt.Errorf("idempotency release %s: %w", key, err)
	}
	return nil
}
