// Package cache stores probed layer descriptors in Redis so that repeated
// harvests of the same layer and filter skip the metadata and count calls.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//	store := cache.NewDescriptorStore(manager, 10*time.Minute)
//
//	prober, err := service.NewProber(service.ProberConfig{
//		Getter: transport,
//		Store:  store,
//	})
//
// # Keys
//
// Keys are derived from the layer URL (scheme-less, trailing slash trimmed),
// its non-volatile query parameters and the normalised where clause:
//
//	harvest:descriptor:host/arcgis/rest/services/Parcels/FeatureServer/0:where=1=1
//
// Tokens and the f parameter never take part in the key.
//
// # Metrics
//
//   - harvest_cache_hits_total{layer="redis"} - Cache hits
//   - harvest_cache_misses_total - Cache misses
//   - harvest_cache_written_bytes_total{layer="redis"} - Bytes written
//   - harvest_cache_errors_total{operation} - Cache operation errors
//
// Cache failures never fail a harvest; the prober logs them and probes the
// service directly.
package cache
