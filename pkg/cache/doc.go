// Package cache provides a Redis-backed page cache for paging sources.
//
// The cache stores successful pages only, keyed by source name, source
// generation, load type, anchor key, load size and placeholder flag. Entries
// are JSON-encoded and zstd-compressed. Failed loads are never cached.
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Wrap a source
//	cached := cache.NewSource[Key, Item](src, cache.NewManager(redisClient), cache.SourceConfig[Key]{
//		Name:      "items",
//		EncodeKey: Key.String,
//		TTL:       time.Minute,
//	})
//
//	// Load through the cache
//	res, status := cached.LoadWithStatus(ctx, params)
//
// # Invalidation
//
// Invalidate bumps the source generation. Pages cached under earlier
// generations are never read again and age out through their TTL:
//
//	if err := cached.Invalidate(ctx); err != nil {
//		return err
//	}
//
// # Degradation
//
// A Redis failure while reading the generation or an entry falls back to a
// direct load of the wrapped source; write failures are logged and ignored.
//
// # Conditional Responses
//
// ETag, SetResponseHeaders and NotModified let HTTP handlers answer repeated
// requests for an unchanged page with 304 Not Modified.
//
// # Metrics
//
// The cache exports Prometheus metrics:
//
//   - keypage_cache_hits_total{layer="redis"} - Cache hits
//   - keypage_cache_misses_total - Cache misses
//   - keypage_cache_stored_bytes_total{layer="redis"} - Compressed bytes written
//   - keypage_cache_invalidations_total - Generation bumps
//   - keypage_304_responses_total - Conditional request successes
//   - keypage_cache_errors_total{operation} - Cache operation errors
package cache
