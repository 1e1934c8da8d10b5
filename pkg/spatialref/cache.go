package spatialref

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var spatialRefResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "harvest_spatialref_resolutions_total",
	Help: "Spatial reference resolutions by source and result",
}, []string{"source", "result"})

// Resolver turns a cache key's input into a spatial reference.
type Resolver struct {
	WKID func(int) (*SpatialReference, error)
	WKT  func(string) (*SpatialReference, error)
}

// DefaultResolver uses the built-in code table and WKT parser.
func DefaultResolver() Resolver {
	return Resolver{WKID: ResolveWKID, WKT: ResolveWKT}
}

type result struct {
	sr  *SpatialReference
	err error
}

// Cache is a compute-once-per-key cache of resolved spatial references.
// Concurrent first lookups of the same key share one resolution, and every
// caller observes the same *SpatialReference for a key. Failed resolutions are
// cached too, so a bad definition is not re-parsed on every lookup.
type Cache struct {
	resolver Resolver
	entries  sync.Map // key -> result
	group    singleflight.Group
}

// NewCache creates an empty cache with the given resolver.
func NewCache(resolver Resolver) *Cache {
	if resolver.WKID == nil {
		resolver.WKID = ResolveWKID
	}
	if resolver.WKT == nil {
		resolver.WKT = ResolveWKT
	}
	return &Cache{resolver: resolver}
}

var shared = NewCache(DefaultResolver())

// Shared returns the process-wide cache.
func Shared() *Cache {
	return shared
}

// ByWKID resolves a well-known code.
func (c *Cache) ByWKID(wkid int) (*SpatialReference, error) {
	return c.get("wkid:"+strconv.Itoa(wkid), "wkid", func() (*SpatialReference, error) {
		return c.resolver.WKID(wkid)
	})
}

// ByWKT resolves a raw definition text.
func (c *Cache) ByWKT(wkt string) (*SpatialReference, error) {
	return c.get("wkt:"+wkt, "wkt", func() (*SpatialReference, error) {
		return c.resolver.WKT(wkt)
	})
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *Cache) get(key, source string, resolve func() (*SpatialReference, error)) (*SpatialReference, error) {
	if v, ok := c.entries.Load(key); ok {
		r := v.(result)
		return r.sr, r.err
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		// a flight that finished between Load and Do has already stored the key
		if v, ok := c.entries.Load(key); ok {
			return v, nil
		}
		sr, err := resolve()
		label := "ok"
		if err != nil {
			label = "error"
		}
		spatialRefResolutionsTotal.WithLabelValues(source, label).Inc()
		r := result{sr: sr, err: err}
		c.entries.Store(key, r)
		return r, nil
	})
	r := v.(result)
	return r.sr, r.err
}
