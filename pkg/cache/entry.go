package cache

import (
	"time"

	"github.com/Sternrassler/feature-harvester/pkg/service"
)

// CacheEntry represents a cached layer descriptor.
type CacheEntry struct {
	// Descriptor is the probed layer description
	Descriptor *service.Descriptor `json:"descriptor"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this descriptor
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
