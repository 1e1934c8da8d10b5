package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Sternrassler/feature-harvester/pkg/query"
	"github.com/Sternrassler/feature-harvester/pkg/service"
)

// volatileParams never take part in a key.
var volatileParams = map[string]bool{
	"f":     true,
	"token": true,
}

// CacheKey identifies a cached descriptor.
type CacheKey struct {
	// LayerURL is the layer endpoint, query parameters included
	LayerURL string

	// Where is the caller's filter
	Where string
}

// KeyFor builds the key of a harvest query.
func KeyFor(q service.Query) CacheKey {
	return CacheKey{LayerURL: q.LayerURL, Where: q.Where}
}

// String generates a deterministic cache key string.
// Format: harvest:descriptor:host/path:param=val:where=clause
//
// Example:
//
//	harvest:descriptor:gis.example.com/arcgis/rest/services/Roads/FeatureServer/2:where=1=1
func (k CacheKey) String() string {
	parts := []string{"harvest", "descriptor"}

	layer := strings.TrimSpace(k.LayerURL)
	var params url.Values
	if u, err := url.Parse(layer); err == nil && u.Host != "" {
		layer = strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
		params = u.Query()
	} else {
		layer = strings.TrimRight(layer, "/")
	}
	parts = append(parts, layer)

	// Add query params (sorted for determinism)
	keys := make([]string, 0, len(params))
	for key := range params {
		if volatileParams[strings.ToLower(key)] {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, params.Get(key)))
	}

	parts = append(parts, "where="+strings.TrimSpace(query.NormalizeWhere(k.Where)))

	return strings.Join(parts, ":")
}
