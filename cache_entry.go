package concur

import "time"

// cacheEntry pairs a cached value with its absolute expiration time.
type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e cacheEntry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}
