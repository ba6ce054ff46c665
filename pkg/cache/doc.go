// Package cache provides a Redis-backed cache of resolved media locations.
//
// Resolving an item costs one call to the resolution API. When the same
// listing is downloaded again, the cache lets the resolver skip that call
// for items whose location is still fresh.
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create cache manager with a one hour TTL
//	manager := cache.NewManager(redisClient, time.Hour)
//
//	// Get from cache
//	src, err := manager.Get(ctx, 112233)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - call the resolution API
//	}
//
//	// Store a successful resolution
//	if err := manager.Set(ctx, 112233, src); err != nil {
//		return err
//	}
//
// Only successful resolutions are ever stored. Resolved locations are
// usually signed and short lived, so keep the TTL below the signature
// lifetime of the media host.
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - xmly_cache_hits_total - Cache hits
//   - xmly_cache_misses_total - Cache misses
//   - xmly_cache_errors_total{operation} - Cache operation errors
package cache
