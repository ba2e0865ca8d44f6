// Package cache defines the narrow string key/value contract that token caches are built on,
// plus an in-memory implementation. Distributed and secret-vault backed implementations live
// in the sub-packages.
package cache

import (
	"context"
	"time"
)

// DistributedCache is a string key/value store with per-entry time to live.
//
// Get reports found=false for missing or expired entries and must not return an error for
// a plain miss. Delete is idempotent. Implementations must be safe for concurrent use.
type DistributedCache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
