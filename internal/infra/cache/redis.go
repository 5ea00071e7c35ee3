// Package cache provides Redis-based caching for quick custody status reads.
// The cache is never the source of truth; the registry is.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CustodyStatus is the cached view of a subject's custody state, shaped for
// the presentation layer.
type CustodyStatus struct {
	SubjectID          string `json:"subject_id"`
	InJail             bool   `json:"in_jail"`
	RemainingMinutes   int    `json:"remaining_minutes"`
	FormattedRemaining string `json:"formatted_remaining"`
	ServedMinutes      int    `json:"served_minutes"`
	FineTotal          int64  `json:"fine_total"`
	LastSync           int64  `json:"last_sync"` // Unix timestamp
}

// StatusCache provides fast access to custody status snapshots.
type StatusCache struct {
	client     *redis.Client
	expiration time.Duration
}

// New creates a status cache. Returns nil when addr is empty (Redis not
// configured); callers must treat a nil cache as a no-op.
func New(addr string) (*StatusCache, error) {
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &StatusCache{
		client:     client,
		expiration: 30 * time.Second,
	}, nil
}

// SetStatus caches a subject's custody status.
func (c *StatusCache) SetStatus(ctx context.Context, status CustodyStatus) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal custody status: %w", err)
	}

	return c.client.Set(ctx, c.statusKey(status.SubjectID), data, c.expiration).Err()
}

// GetStatus retrieves a cached custody status. The second return is false on
// a miss.
func (c *StatusCache) GetStatus(ctx context.Context, subjectID string) (CustodyStatus, bool) {
	if c == nil {
		return CustodyStatus{}, false
	}

	data, err := c.client.Get(ctx, c.statusKey(subjectID)).Result()
	if err != nil {
		return CustodyStatus{}, false // Cache miss or error
	}

	var status CustodyStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return CustodyStatus{}, false
	}
	return status, true
}

// Invalidate drops a subject's cached status, typically on release.
func (c *StatusCache) Invalidate(ctx context.Context, subjectID string) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, c.statusKey(subjectID)).Err()
}

// Close releases the underlying connection.
func (c *StatusCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func (c *StatusCache) statusKey(subjectID string) string {
	return "custody:status:" + subjectID
}
