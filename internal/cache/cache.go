// Package cache stores encoded FeatureCollections so repeated map requests
// skip the transform and binning work.
package cache

import (
	"context"
	"time"
)

type Interface interface {
	// Get returns the value and whether the key existed.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// DelPrefix removes every key starting with prefix and returns the count.
	DelPrefix(ctx context.Context, prefix string) (int, error)
}
