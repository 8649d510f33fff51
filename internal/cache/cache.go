// Package cache provides a typed TTL cache over ristretto and a read-through
// decorator for the persistence collaborator.
package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)
}

// Ristretto is a Cache backed by a ristretto admission cache. Every entry
// costs 1, so maxItems bounds the entry count.
type Ristretto[T any] struct {
	c   *ristretto.Cache
	ttl time.Duration
}

func NewRistretto[T any](maxItems int64, ttl time.Duration) (*Ristretto[T], error) {
	if maxItems <= 0 {
		maxItems = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxItems * 10, // number of keys to track frequency of
		MaxCost:            maxItems,
		BufferItems:        64, // number of keys per Get buffer
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &Ristretto[T]{c: c, ttl: ttl}, nil
}

func (r *Ristretto[T]) Get(key string) (T, bool) {
	var zero T
	v, ok := r.c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Set stores data and waits for the write buffer to drain so the value is
// visible to the next Get. Ristretto may still reject the entry.
func (r *Ristretto[T]) Set(key string, data T) {
	if r.ttl > 0 {
		r.c.SetWithTTL(key, data, 1, r.ttl)
	} else {
		r.c.Set(key, data, 1)
	}
	r.c.Wait()
}

func (r *Ristretto[T]) Delete(key string) {
	r.c.Del(key)
}

func (r *Ristretto[T]) Close() {
	r.c.Close()
}
